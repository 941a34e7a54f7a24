package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

const (
	recentDateRows = 10
	maxDateHints   = 5
)

// ReconcileStock loads the stock snapshot taken on the Monday of week into
// the (week, node) cohort and recomputes the stock-driven lost sales.
func (e *Engine) ReconcileStock(ctx context.Context, week domain.Week, node string) (*domain.StockResult, error) {
	node, err := e.resolveCohort(week, node)
	if err != nil {
		return nil, err
	}
	if e.stock == nil {
		return nil, domain.NewPassError(domain.ErrorTypeConfig, "Fuente de stock no configurada")
	}

	var result *domain.StockResult
	err = e.withCohort(ctx, week, node, func() error {
		result, err = e.reconcileStock(ctx, week, node)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) reconcileStock(ctx context.Context, week domain.Week, node string) (*domain.StockResult, error) {
	start := e.now()
	logger := log.With().Int("week", int(week)).Str("node", node).Str("pass", string(domain.PassStock)).Logger()

	monday := week.Monday()
	isoDate, dmyDate := domain.FormatISODate(monday), domain.FormatDMYDate(monday)
	logger.Debug().Str("monday", isoDate).Msg("resolved snapshot date")

	snapshot, err := e.loadSnapshot(ctx, week, isoDate, dmyDate)
	if err != nil {
		return nil, err
	}

	result := &domain.StockResult{
		Week:       week,
		Node:       node,
		MondayDate: snapshot[0].SnapshotDate,
		TotalStock: len(snapshot),
	}

	positions := make(map[string]domain.StockPosition, len(snapshot))
	for _, s := range snapshot {
		sku := strings.TrimSpace(s.SKU)
		if sku == "" {
			continue
		}
		positions[sku] = domain.StockPosition{Stock: finite(s.Stock), Client: s.Client}
	}

	plan, err := e.records.Select(ctx, domain.CohortFilter(week, node))
	if err != nil {
		return nil, fmt.Errorf("select cohort: %w", err)
	}
	planned := make(map[string]struct{}, len(plan))
	items := make([]patchItem, 0, len(plan))
	for i := range plan {
		rec := &plan[i]
		if rec.SKU != "" {
			planned[rec.SKU] = struct{}{}
		}
		stock := 0.0
		if pos, ok := positions[rec.SKU]; ok {
			stock = pos.Stock
		}
		items = append(items, newPatchItem(rec, domain.Patch{domain.FieldStartingStock: stock}))
	}

	report := Run(ctx, e.batcher("stock.starting_stock"), items, patchKey, e.writePatch)
	for i, item := range items {
		if !report.OK[i] {
			continue
		}
		if _, matched := positions[item.sku]; matched {
			result.Updated++
		} else {
			result.NotFound++
		}
	}
	e.collectStock(result, report)

	inserts := e.stockOnlyRecords(week, node, positions, planned)
	inserted := RunBulk(ctx, e.batcher("stock.insert"), inserts, recordKey, e.records.Insert)
	result.Inserted = inserted.Succeeded
	e.collectStock(result, inserted)
	logger.Debug().Int("count", len(inserts)).Msg("stocked skus without plan")

	if result.NullUpdated, err = e.zeroNullStock(ctx, result, week, node); err != nil {
		return nil, err
	}

	if err := e.computeStockLoss(ctx, result); err != nil {
		return nil, err
	}

	swept, err := e.sweep(ctx, week, node, domain.DerivedFields)
	if err != nil {
		return nil, fmt.Errorf("null sweep: %w", err)
	}
	result.NullSwept = swept.Updated
	result.Failed += swept.Failed
	result.Errors = append(result.Errors, swept.Errors...)

	result.Duration = e.now().Sub(start)
	logger.Info().
		Str("monday", result.MondayDate).
		Int("updated", result.Updated).
		Int("inserted", result.Inserted).
		Int("not_found", result.NotFound).
		Int("null_updated", result.NullUpdated).
		Int("calculated", result.Calculated).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("stock reconciliation finished")
	return result, nil
}

// loadSnapshot reads the snapshot for the Monday, trying the ISO date
// first and the day-month-year form second.
func (e *Engine) loadSnapshot(ctx context.Context, week domain.Week, isoDate, dmyDate string) ([]domain.StockSnapshot, error) {
	if err := e.stock.Probe(ctx); err != nil {
		return nil, &domain.PassError{
			Type:    domain.ErrorTypeTable,
			Message: fmt.Sprintf("Error accediendo a la tabla de stock: %v. Verifica que la tabla exista.", err),
			Err:     err,
		}
	}

	var snapshot []domain.StockSnapshot
	for _, date := range []string{isoDate, dmyDate} {
		rows, err := e.stock.ListByDate(ctx, date, e.country)
		if err != nil {
			return nil, fmt.Errorf("query stock snapshot %s: %w", date, err)
		}
		if len(rows) > 0 {
			snapshot = rows
			break
		}
	}
	if len(snapshot) > 0 {
		return snapshot, nil
	}

	available := e.availableDates(ctx)
	msg := fmt.Sprintf("No hay datos de stock cargados para el lunes de la semana %d. Fechas buscadas: %s (formato ISO), %s (formato DD-MM-YYYY).",
		int(week), isoDate, dmyDate)
	if len(available) > 0 {
		msg += " Fechas con datos disponibles: " + strings.Join(available, ", ") + "."
	} else {
		msg += fmt.Sprintf(" La tabla de stock no tiene datos para %s.", e.country)
	}

	return nil, domain.NewPassError(domain.ErrorTypeNoStockData, msg).
		WithDetail("mondayDateISO", isoDate).
		WithDetail("mondayDateDMY", dmyDate).
		WithDetail("availableDates", available)
}

// availableDates lists up to five distinct dates among the latest rows.
// Failures are logged and yield no hints.
func (e *Engine) availableDates(ctx context.Context) []string {
	dates, err := e.stock.RecentDates(ctx, e.country, recentDateRows)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list available stock dates")
		return []string{}
	}
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, maxDateHints)
	for _, d := range dates {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
		if len(out) == maxDateHints {
			break
		}
	}
	return out
}

// stockOnlyRecords builds zero-forecast records for stocked skus missing
// from the plan, in sku order.
func (e *Engine) stockOnlyRecords(week domain.Week, node string, positions map[string]domain.StockPosition, planned map[string]struct{}) []domain.DemandRecord {
	skus := make([]string, 0)
	for sku, pos := range positions {
		if _, ok := planned[sku]; ok || pos.Stock <= 0 {
			continue
		}
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	now := e.now()
	zero := func() *float64 { return domain.Ptr(0.0) }
	records := make([]domain.DemandRecord, 0, len(skus))
	for _, sku := range skus {
		pos := positions[sku]
		records = append(records, domain.DemandRecord{
			Week:              week,
			Node:              node,
			Account:           pos.Client,
			SKU:               sku,
			Forecast:          zero(),
			PlannedDemand:     zero(),
			ListPrice:         zero(),
			Action:            domain.Ptr("0"),
			Notes:             domain.Ptr(domain.StockOnlyNote),
			ActualSales:       zero(),
			AvgPrice:          zero(),
			Availability:      zero(),
			Error:             zero(),
			ErrorAbs:          zero(),
			LostSaleValuation: zero(),
			StartingStock:     domain.Ptr(pos.Stock),
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}
	return records
}

// zeroNullStock sets starting_stock to 0 where it is still null. A failed
// bulk update falls back to per-record writes.
func (e *Engine) zeroNullStock(ctx context.Context, result *domain.StockResult, week domain.Week, node string) (int, error) {
	logger := log.With().Int("week", int(week)).Str("node", node).Str("pass", string(domain.PassStock)).Logger()
	filter := domain.RecordFilter{Week: week, Node: node, AnyNull: []domain.Field{domain.FieldStartingStock}}
	patch := domain.Patch{domain.FieldStartingStock: 0.0}

	count, err := e.records.Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count null starting stock: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	n, err := e.records.Update(ctx, filter, patch)
	if err == nil {
		return int(n), nil
	}
	logger.Warn().Err(err).Int64("count", count).Msg("bulk null stock update failed, updating one by one")

	records, err := e.records.Select(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("select null starting stock: %w", err)
	}
	items := make([]patchItem, 0, len(records))
	for i := range records {
		items = append(items, newPatchItem(&records[i], patch))
	}
	report := Run(ctx, e.batcher("stock.null_stock"), items, patchKey, e.writePatch)
	e.collectStock(result, report)
	return report.Succeeded, nil
}

// computeStockLoss recomputes the stock-driven lost sale of every record.
func (e *Engine) computeStockLoss(ctx context.Context, result *domain.StockResult) error {
	all, err := e.records.Select(ctx, domain.CohortFilter(result.Week, result.Node))
	if err != nil {
		return fmt.Errorf("reload cohort for stock loss: %w", err)
	}
	items := make([]patchItem, 0, len(all))
	for i := range all {
		items = append(items, newPatchItem(&all[i], StockLossOf(&all[i]).Patch()))
	}
	report := Run(ctx, e.batcher("stock.loss"), items, patchKey, e.writePatch)
	result.Calculated = report.Succeeded
	e.collectStock(result, report)
	return nil
}

func (e *Engine) collectStock(result *domain.StockResult, r Report) {
	result.Failed += r.Failed
	result.Errors = append(result.Errors, r.Errors...)
}
