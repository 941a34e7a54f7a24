package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/cache"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/ingest"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/storage"
)

const (
	reportSalesWeeks = 5
	reportPlanWeeks  = 5
	// AllFilter is the "no filter" value sent by the report UI.
	AllFilter = "Todos"
)

// EditRequest is a batch of plan edits made by one user. A change that
// names a catalog scenario without values takes them from the catalog.
type EditRequest struct {
	Changes []domain.PlanChange `json:"changes"`
	// ReferenceWeek anchors the edit session; the earliest change week
	// when unset.
	ReferenceWeek domain.Week `json:"referenceWeek,omitempty"`
	User          string      `json:"user"`
	UserAgent     string      `json:"userAgent,omitempty"`
	IPAddress     string      `json:"ipAddress,omitempty"`
}

func (r EditRequest) reference() domain.Week {
	if r.ReferenceWeek != 0 {
		return r.ReferenceWeek
	}
	var ref domain.Week
	for _, c := range r.Changes {
		if c.Valid() && c.Week.Validate() == nil && (ref == 0 || c.Week < ref) {
			ref = c.Week
		}
	}
	return ref
}

// PlanService covers plan uploads, the plan report and manual edits.
type PlanService struct {
	demand      repository.DemandRepository
	scenarios   repository.ScenarioRepository
	audit       repository.AuditRepository
	cache       cache.ReportCache
	archive     *storage.Archiver
	defaultNode string
	now         func() time.Time
}

func NewPlanService(store *repository.Store, reportCache cache.ReportCache, archive *storage.Archiver, defaultNode string) *PlanService {
	if reportCache == nil {
		reportCache = cache.NewNoopReportCache()
	}
	if archive == nil {
		archive = storage.NewArchiver(nil)
	}
	return &PlanService{
		demand:      store.Demand,
		scenarios:   store.Scenarios,
		audit:       store.Audit,
		cache:       reportCache,
		archive:     archive,
		defaultNode: defaultNode,
		now:         time.Now,
	}
}

// UploadPlan upserts every row of a plan CSV. A row whose upsert fails is
// retried as a plain insert before being reported.
func (s *PlanService) UploadPlan(ctx context.Context, week domain.Week, node, filename string, data []byte) (*domain.PlanUploadResult, error) {
	if err := week.Validate(); err != nil {
		return nil, invalidWeek(err)
	}
	if err := ingest.CheckExtension(filename, ".csv"); err != nil {
		return nil, err
	}
	if node == "" {
		node = s.defaultNode
	}

	rows, err := ingest.ParsePlan(bytes.NewReader(data), filename, week, node)
	if err != nil {
		return nil, err
	}
	s.archive.Archive(ctx, storage.KindPlan, week, filename, data)

	result := &domain.PlanUploadResult{}
	weeks := map[domain.Week]struct{}{}
	for _, row := range rows {
		rec := row.Record()
		existing, err := s.demand.Count(ctx, identityFilter(rec.Week, rec.Node, rec.Account, rec.SKU))
		if err != nil {
			return nil, fmt.Errorf("count plan row %d: %w", row.Line, err)
		}

		if err := s.demand.Upsert(ctx, []domain.DemandRecord{rec}); err != nil {
			log.Warn().Err(err).Int("line", row.Line).Str("sku", rec.SKU).Msg("plan upsert failed, retrying as insert")
			if ierr := s.demand.Insert(ctx, []domain.DemandRecord{rec}); ierr != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("Fila %d: %v", row.Line, ierr))
				continue
			}
			existing = 0
		}

		action := domain.ActionInserted
		if existing > 0 {
			result.Updated++
			action = domain.ActionUpdated
		} else {
			result.Inserted++
		}
		if len(result.Details) < domain.MaxResultDetails {
			result.Details = append(result.Details, domain.RowDetail{SKU: rec.SKU, Account: rec.Account, Action: action})
		}
		weeks[rec.Week] = struct{}{}
	}
	result.Total = result.Inserted + result.Updated
	if len(result.Errors) > domain.MaxResultErrors {
		result.Errors = result.Errors[:domain.MaxResultErrors]
	}

	for w := range weeks {
		s.invalidate(ctx, w)
	}
	log.Info().
		Int("week", int(week)).
		Str("node", node).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("failed", len(rows)-result.Total).
		Msg("plan upload finished")
	return result, nil
}

// UploadScenarios loads a scenario catalog CSV.
func (s *PlanService) UploadScenarios(ctx context.Context, filename string, data []byte) (*domain.ScenarioUploadResult, error) {
	if err := ingest.CheckExtension(filename, ".csv"); err != nil {
		return nil, err
	}
	file, err := ingest.ParseScenarios(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	s.archive.Archive(ctx, storage.KindScenarios, domain.WeekOf(s.now()), filename, data)

	result := &domain.ScenarioUploadResult{
		LineErrors:     file.LineErrors,
		TotalProcessed: len(file.Entries),
	}
	for _, entry := range file.Entries {
		if err := s.scenarios.Upsert(ctx, entry); err != nil {
			result.DBErrors = append(result.DBErrors, fmt.Sprintf("%s/%s: %v", entry.SKU, entry.Scenario, err))
			continue
		}
		result.Inserted++
	}

	if result.Inserted > 0 {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate plan report cache")
		}
	}
	log.Info().
		Int("inserted", result.Inserted).
		Int("line_errors", len(result.LineErrors)).
		Int("db_errors", len(result.DBErrors)).
		Msg("scenario catalog upload finished")
	return result, nil
}

// Report builds the plan grid around week. Empty node or account, or
// AllFilter, select everything.
func (s *PlanService) Report(ctx context.Context, week domain.Week, node, account string) (*domain.PlanReport, error) {
	if week < domain.MinReportWeek || week > domain.MaxReportWeek || week.Validate() != nil {
		return nil, domain.NewPassError(domain.ErrorTypeInvalidRequest, "Semana inválida. Formato esperado: YYYYWW (ej: 202601)")
	}
	if node == AllFilter {
		node = ""
	}
	if account == AllFilter {
		account = ""
	}

	if report, ok, err := s.cache.Get(ctx, week, node, account); err == nil && ok {
		return report, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("plan report: cache get failed")
	}

	salesWeeks := make([]domain.Week, reportSalesWeeks)
	for i := range salesWeeks {
		salesWeeks[i] = week.Add(i - reportSalesWeeks)
	}
	planWeeks := make([]domain.Week, reportPlanWeeks)
	for i := range planWeeks {
		planWeeks[i] = week.Add(i)
	}

	records, err := s.demand.Select(ctx, domain.RecordFilter{Weeks: append(append([]domain.Week{}, salesWeeks...), planWeeks...)})
	if err != nil {
		return nil, fmt.Errorf("select report window: %w", err)
	}

	nodes, accounts := map[string]struct{}{}, map[string]struct{}{}
	rows := map[string]*domain.ReportRow{}
	for i := range records {
		rec := &records[i]
		nodes[rec.Node] = struct{}{}
		accounts[rec.Account] = struct{}{}
		if (node != "" && rec.Node != node) || (account != "" && rec.Account != account) {
			continue
		}

		key := domain.ItemKey(rec.Node, rec.Account, rec.SKU)
		row, ok := rows[key]
		if !ok {
			row = &domain.ReportRow{
				Node:          rec.Node,
				Account:       rec.Account,
				SKU:           rec.SKU,
				SalesWeeks:    salesWeeks,
				ActualSales:   make([]*float64, reportSalesWeeks),
				PlanWeeks:     planWeeks,
				PlannedDemand: make([]*float64, reportPlanWeeks),
			}
			rows[key] = row
		}
		if idx := weekIndex(salesWeeks, rec.Week); idx >= 0 {
			row.ActualSales[idx] = rec.ActualSales
		}
		if idx := weekIndex(planWeeks, rec.Week); idx >= 0 {
			row.PlannedDemand[idx] = rec.PlannedDemand
			switch idx {
			case 2:
				row.ListPrice2, row.Action2 = rec.ListPrice, rec.Action
			case 4:
				row.ListPrice4, row.Action4 = rec.ListPrice, rec.Action
			}
		}
	}

	report := &domain.PlanReport{
		Week:               week,
		Rows:               sortedRows(rows),
		AppliedScenarios:   map[string]domain.AppliedScenario{},
		AvailableScenarios: domain.CatalogScenarios,
		Nodes:              sortedKeys(nodes),
		Accounts:           sortedKeys(accounts),
	}

	report.ScenariosBySKU, report.TotalScenarios = s.scenarioCatalog(ctx)

	history, err := s.audit.ListByWeek(ctx, week)
	if err != nil {
		log.Error().Err(err).Msg("plan report: failed to load change history")
	}
	for _, h := range history {
		key := domain.ItemKey(h.Node, h.Account, h.SKU)
		if _, seen := report.AppliedScenarios[key]; seen {
			continue
		}
		report.AppliedScenarios[key] = domain.AppliedScenario{Scenario: h.AppliedScenario, User: h.User, At: h.CreatedAt}
	}

	if err := s.cache.Set(ctx, report, node, account); err != nil {
		log.Warn().Err(err).Msg("plan report: cache set failed")
	}
	return report, nil
}

// SaveChanges applies manual edits and records each one in the change history.
func (s *PlanService) SaveChanges(ctx context.Context, req EditRequest) (*domain.EditResult, error) {
	if len(req.Changes) == 0 {
		return nil, domain.NewPassError(domain.ErrorTypeInvalidRequest, "Se requiere un array de cambios")
	}
	if req.User == "" {
		return nil, domain.NewPassError(domain.ErrorTypeInvalidRequest, "Se requiere el usuario")
	}

	result := &domain.EditResult{Errors: []string{}}
	session := s.stage(ctx, req, result)

	weeks := map[domain.Week]struct{}{}
	for _, c := range session.Changes() {
		if c.Empty() {
			continue
		}

		filter := identityFilter(c.Week, c.Node, c.Account, c.SKU)
		current, err := s.demand.Select(ctx, filter)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error buscando %s: %v", c.SKU, err))
			continue
		}
		if len(current) == 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("No existe registro para %s semana %d", c.SKU, int(c.Week)))
			continue
		}

		if _, err := s.demand.Update(ctx, filter, c.Patch()); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error actualizando %s semana %d: %v", c.SKU, int(c.Week), err))
			continue
		}
		result.Updated++
		weeks[c.Week] = struct{}{}

		entry, err := domain.NewAuditEntry(c, &current[0], req.User)
		if err != nil {
			log.Error().Err(err).Str("sku", c.SKU).Msg("failed to build audit entry")
			continue
		}
		if req.IPAddress != "" {
			entry.IPAddress = domain.Ptr(req.IPAddress)
		}
		if req.UserAgent != "" {
			entry.UserAgent = domain.Ptr(req.UserAgent)
		}
		if err := s.audit.Append(ctx, entry); err != nil {
			log.Error().Err(err).Str("sku", c.SKU).Int("week", int(c.Week)).Msg("failed to record plan change")
		}
	}

	for w := range weeks {
		s.invalidate(ctx, w)
	}
	log.Info().Str("user", req.User).Int("updated", result.Updated).Int("errors", len(result.Errors)).Msg("plan changes saved")
	return result, nil
}

// stage collects the request into an edit session. Edits to the same item
// and week merge, the latest value of each field winning.
func (s *PlanService) stage(ctx context.Context, req EditRequest, result *domain.EditResult) *domain.EditSession {
	session := domain.NewEditSession(req.reference())
	var catalog map[string]map[domain.ScenarioName]domain.ScenarioValue

	for _, c := range req.Changes {
		if !c.Valid() {
			result.Errors = append(result.Errors, "Registro inválido: faltan campos clave")
			continue
		}
		if err := c.Week.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Semana inválida para %s: %d", c.SKU, int(c.Week)))
			continue
		}
		k := session.Stage(c)
		if !c.Empty() || !domain.ValidScenario(c.AppliedScenario) {
			continue
		}

		if catalog == nil {
			catalog, _ = s.scenarioCatalog(ctx)
		}
		name := domain.ScenarioName(c.AppliedScenario)
		if err := session.ApplyScenario(k, name, catalog[domain.ItemKey(c.Node, c.Account, c.SKU)]); err != nil {
			session.Discard(k)
			result.Errors = append(result.Errors, fmt.Sprintf("Escenario %s no disponible para %s semana %d", name, c.SKU, int(c.Week)))
		}
	}
	return session
}

// scenarioCatalog groups the catalog by item and returns the entry count.
// A failed read is logged and yields an empty catalog.
func (s *PlanService) scenarioCatalog(ctx context.Context) (map[string]map[domain.ScenarioName]domain.ScenarioValue, int) {
	out := map[string]map[domain.ScenarioName]domain.ScenarioValue{}
	entries, err := s.scenarios.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load scenario catalog")
		return out, 0
	}
	for _, e := range entries {
		key := domain.ItemKey(e.Node, e.Account, e.SKU)
		if out[key] == nil {
			out[key] = map[domain.ScenarioName]domain.ScenarioValue{}
		}
		out[key][e.Scenario] = domain.ScenarioValue{Quantity: e.Quantity, Price: e.Price}
	}
	return out, len(entries)
}

// Detail returns the most recently updated record of an item in a week,
// or nil when there is none.
func (s *PlanService) Detail(ctx context.Context, node, account, sku string, week domain.Week) (*domain.Detail, error) {
	if node == "" || account == "" || sku == "" || week == 0 {
		return nil, domain.NewPassError(domain.ErrorTypeInvalidRequest, "Parámetros nodo, cuenta, sku y semana son requeridos")
	}
	records, err := s.demand.Select(ctx, identityFilter(week, node, account, sku))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	latest := &records[0]
	for i := range records[1:] {
		if records[i+1].UpdatedAt.After(latest.UpdatedAt) {
			latest = &records[i+1]
		}
	}
	return &domain.Detail{
		Node:          node,
		Account:       account,
		SKU:           sku,
		Week:          week,
		Availability:  latest.Availability,
		StartingStock: latest.StartingStock,
		Action:        latest.Action,
		PlannedDemand: latest.PlannedDemand,
		ActualSales:   latest.ActualSales,
		UpdatedAt:     latest.UpdatedAt,
	}, nil
}

func (s *PlanService) invalidate(ctx context.Context, week domain.Week) {
	if err := s.cache.InvalidateWeek(ctx, week); err != nil {
		log.Warn().Err(err).Int("week", int(week)).Msg("failed to invalidate plan report cache")
	}
}

func identityFilter(week domain.Week, node, account, sku string) domain.RecordFilter {
	return domain.RecordFilter{Week: week, Node: node, Account: account, SKU: sku}
}

func weekIndex(weeks []domain.Week, w domain.Week) int {
	for i, candidate := range weeks {
		if candidate == w {
			return i
		}
	}
	return -1
}

func sortedRows(rows map[string]*domain.ReportRow) []domain.ReportRow {
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.ReportRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, *rows[k])
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
