package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository"
)

const (
	DefaultNode    = "Mercadolibre_Chile"
	DefaultCountry = "Chile"
)

// Engine runs the reconciliation passes over a Record Store.
type Engine struct {
	records     repository.DemandRepository
	stock       repository.StockSnapshotRepository
	locker      CohortLocker
	batchSize   int
	defaultNode string
	country     string
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func WithDefaultNode(node string) Option {
	return func(e *Engine) {
		if node != "" {
			e.defaultNode = node
		}
	}
}

func WithCountry(country string) Option {
	return func(e *Engine) {
		if country != "" {
			e.country = country
		}
	}
}

func WithLocker(l CohortLocker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithClock replaces time.Now for record timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine. stock may be nil when only the sales pass
// is used.
func NewEngine(records repository.DemandRepository, stock repository.StockSnapshotRepository, opts ...Option) *Engine {
	e := &Engine{
		records:     records,
		stock:       stock,
		locker:      NoopLocker{},
		batchSize:   DefaultBatchSize,
		defaultNode: DefaultNode,
		country:     DefaultCountry,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultNode is the node used when a request leaves it empty.
func (e *Engine) DefaultNode() string { return e.defaultNode }

func (e *Engine) batcher(name string) Batcher {
	return Batcher{Size: e.batchSize, Name: name}
}

func (e *Engine) resolveCohort(week domain.Week, node string) (string, error) {
	if err := week.Validate(); err != nil {
		return "", &domain.PassError{
			Type:    domain.ErrorTypeInvalidRequest,
			Message: "Semana inválida. Formato esperado: YYYYWW (ej: 202601)",
			Err:     err,
		}
	}
	if node == "" {
		node = e.defaultNode
	}
	return node, nil
}

// withCohort runs fn holding the cohort lock.
func (e *Engine) withCohort(ctx context.Context, week domain.Week, node string, fn func() error) error {
	unlock, err := e.locker.Lock(ctx, week, node)
	if err != nil {
		if errors.Is(err, domain.ErrCohortBusy) {
			return &domain.PassError{
				Type:    domain.ErrorTypeCohortBusy,
				Message: fmt.Sprintf("Ya hay un proceso en curso para la semana %d, nodo %s. Intenta nuevamente en unos minutos.", int(week), node),
				Err:     err,
			}
		}
		return fmt.Errorf("lock cohort %d/%s: %w", int(week), node, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Int("week", int(week)).Str("node", node).Msg("failed to release cohort lock")
		}
	}()
	return fn()
}

// patchItem is one id-addressed write.
type patchItem struct {
	id      int64
	account string
	sku     string
	patch   domain.Patch
}

func newPatchItem(r *domain.DemandRecord, patch domain.Patch) patchItem {
	return patchItem{id: r.ID, account: r.Account, sku: r.SKU, patch: patch}
}

func patchKey(p patchItem) string { return domain.SalesKey(p.account, p.sku) }

func (e *Engine) writePatch(ctx context.Context, p patchItem) error {
	n, err := e.records.Update(ctx, domain.RecordFilter{ID: p.id}, p.patch)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %d: %w", p.id, domain.ErrNotFound)
	}
	return nil
}

func recordKey(r domain.DemandRecord) string { return r.SalesKey() }
