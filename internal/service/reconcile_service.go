package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/cache"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/ingest"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/reconcile"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/storage"
)

// Run sources recorded in reconcile_runs.
const (
	SourceCSV    = "csv"
	SourceMySQL  = "mysql"
	SourceManual = "manual"
)

const defaultRunListLimit = 20

// ErrSalesSourceNotConfigured is returned by SyncSales without a sales source.
func ErrSalesSourceNotConfigured() *domain.PassError {
	return domain.NewPassError(domain.ErrorTypeConfig,
		"La sincronización con la fuente de ventas no está configurada. Usa la carga de CSV.").
		WithDetail("requiresCSV", true)
}

// ReconcileService runs the reconciliation passes and records each run.
type ReconcileService struct {
	engine  *reconcile.Engine
	runs    repository.RunRepository
	cache   cache.ReportCache
	archive *storage.Archiver
	sales   repository.SalesSource
	now     func() time.Time
}

// ReconcileOption configures a ReconcileService.
type ReconcileOption func(*ReconcileService)

func WithReportCache(c cache.ReportCache) ReconcileOption {
	return func(s *ReconcileService) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithArchiver(a *storage.Archiver) ReconcileOption {
	return func(s *ReconcileService) {
		if a != nil {
			s.archive = a
		}
	}
}

// WithSalesSource enables SyncSales.
func WithSalesSource(src repository.SalesSource) ReconcileOption {
	return func(s *ReconcileService) { s.sales = src }
}

func NewReconcileService(engine *reconcile.Engine, runs repository.RunRepository, opts ...ReconcileOption) *ReconcileService {
	s := &ReconcileService{
		engine:  engine,
		runs:    runs,
		cache:   cache.NewNoopReportCache(),
		archive: storage.NewArchiver(nil),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasSalesSource reports whether sales can be pulled without a CSV.
func (s *ReconcileService) HasSalesSource() bool { return s.sales != nil }

// UploadSales parses a sales CSV and applies it to the cohort.
func (s *ReconcileService) UploadSales(ctx context.Context, week domain.Week, node, filename string, data []byte) (*domain.SalesResult, error) {
	if err := week.Validate(); err != nil {
		return nil, invalidWeek(err)
	}
	if err := ingest.CheckExtension(filename, ".csv"); err != nil {
		return nil, err
	}
	rows, err := ingest.ParseSales(bytes.NewReader(data), filename, week)
	if err != nil {
		return nil, err
	}
	s.archive.Archive(ctx, storage.KindSales, week, filename, data)

	return s.reconcileSales(ctx, week, node, SourceCSV, rows)
}

// SyncSales pulls the extract from the configured sales source.
func (s *ReconcileService) SyncSales(ctx context.Context, week domain.Week, node string) (*domain.SalesResult, error) {
	if s.sales == nil {
		return nil, ErrSalesSourceNotConfigured()
	}
	if err := week.Validate(); err != nil {
		return nil, invalidWeek(err)
	}
	node = s.node(node)

	rows, err := s.sales.FetchSales(ctx, week, node)
	if err != nil {
		return nil, fmt.Errorf("fetch sales: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.NewPassError(domain.ErrorTypeNoValidRecords,
			fmt.Sprintf("La fuente de ventas no devolvió registros para la semana %d, nodo %s.", int(week), node))
	}
	return s.reconcileSales(ctx, week, node, SourceMySQL, rows)
}

func (s *ReconcileService) reconcileSales(ctx context.Context, week domain.Week, node, source string, rows []domain.SalesRow) (*domain.SalesResult, error) {
	node = s.node(node)
	var result *domain.SalesResult
	err := s.track(ctx, domain.PassSales, week, node, source, func(run *domain.ReconcileRun) error {
		var err error
		result, err = s.engine.ReconcileSales(ctx, week, node, rows)
		if err != nil {
			return err
		}
		run.Updated = result.Updated
		run.Inserted = result.Inserted
		run.Zeroed = result.NoSales
		run.Failed = result.Failed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStock runs the stock pass for the cohort.
func (s *ReconcileService) UpdateStock(ctx context.Context, week domain.Week, node string) (*domain.StockResult, error) {
	node = s.node(node)
	var result *domain.StockResult
	err := s.track(ctx, domain.PassStock, week, node, SourceManual, func(run *domain.ReconcileRun) error {
		var err error
		result, err = s.engine.ReconcileStock(ctx, week, node)
		if err != nil {
			return err
		}
		run.Updated = result.Updated
		run.Inserted = result.Inserted
		run.Zeroed = result.NotFound + result.NullUpdated
		run.Failed = result.Failed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Sweep fills the null derived fields of the cohort.
func (s *ReconcileService) Sweep(ctx context.Context, week domain.Week, node string) (*domain.SweepResult, error) {
	node = s.node(node)
	var result *domain.SweepResult
	err := s.track(ctx, domain.PassSweep, week, node, SourceManual, func(run *domain.ReconcileRun) error {
		var err error
		result, err = s.engine.Sweep(ctx, week, node)
		if err != nil {
			return err
		}
		run.Updated = result.Updated
		run.Failed = result.Failed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RelativeErrors writes the legacy relative error for a week.
func (s *ReconcileService) RelativeErrors(ctx context.Context, week domain.Week, node string) (*domain.RelativeErrorResult, error) {
	result, err := s.engine.RelativeErrors(ctx, week, node)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, week)
	return result, nil
}

// Runs lists the latest tracked runs.
func (s *ReconcileService) Runs(ctx context.Context, week domain.Week, node string, limit int) ([]domain.ReconcileRun, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	return s.runs.List(ctx, week, node, limit)
}

// track records a run around fn. Tracking failures are logged and never
// change the outcome of the pass.
func (s *ReconcileService) track(ctx context.Context, pass domain.PassKind, week domain.Week, node, source string, fn func(run *domain.ReconcileRun) error) error {
	if err := week.Validate(); err != nil {
		return invalidWeek(err)
	}
	logger := log.With().Str("pass", string(pass)).Int("week", int(week)).Str("node", node).Logger()

	run := &domain.ReconcileRun{
		Pass:      pass,
		Week:      week,
		Node:      node,
		Source:    source,
		Status:    domain.RunStatusPending,
		StartedAt: s.now().UTC(),
	}
	tracked := true
	if err := s.runs.Create(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("failed to record run start")
		tracked = false
	}

	err := fn(run)

	completed := s.now().UTC()
	run.CompletedAt = &completed
	run.DurationMS = completed.Sub(run.StartedAt).Milliseconds()
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = domain.Ptr(err.Error())
	} else {
		run.Status = domain.RunStatusCompleted
		s.invalidate(ctx, week)
	}

	if tracked {
		if uerr := s.runs.Update(context.WithoutCancel(ctx), run); uerr != nil {
			logger.Warn().Err(uerr).Str("run_id", run.ID).Msg("failed to record run result")
		}
	}
	return err
}

func (s *ReconcileService) invalidate(ctx context.Context, week domain.Week) {
	if err := s.cache.InvalidateWeek(ctx, week); err != nil {
		log.Warn().Err(err).Int("week", int(week)).Msg("failed to invalidate plan report cache")
	}
}

func (s *ReconcileService) node(node string) string {
	if node == "" {
		return s.engine.DefaultNode()
	}
	return node
}

func invalidWeek(err error) *domain.PassError {
	return &domain.PassError{
		Type:    domain.ErrorTypeInvalidRequest,
		Message: "Semana inválida. Formato esperado: YYYYWW (ej: 202601)",
		Err:     err,
	}
}
