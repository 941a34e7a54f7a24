package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// ReconcileSales applies a sales extract to the (week, node) cohort.
//
// Matched records get the reported sales and fresh metrics, unmatched rows
// become new zero-plan records and records absent from the extract are
// marked as no sale. The whole cohort is then recomputed from the stored
// values and swept for nulls.
func (e *Engine) ReconcileSales(ctx context.Context, week domain.Week, node string, rows []domain.SalesRow) (*domain.SalesResult, error) {
	node, err := e.resolveCohort(week, node)
	if err != nil {
		return nil, err
	}

	var result *domain.SalesResult
	err = e.withCohort(ctx, week, node, func() error {
		result, err = e.reconcileSales(ctx, week, node, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) reconcileSales(ctx context.Context, week domain.Week, node string, rows []domain.SalesRow) (*domain.SalesResult, error) {
	start := e.now()
	result := &domain.SalesResult{Week: week, Node: node}
	logger := log.With().Int("week", int(week)).Str("node", node).Str("pass", string(domain.PassSales)).Logger()

	existing, err := e.records.Select(ctx, domain.CohortFilter(week, node))
	if err != nil {
		return nil, fmt.Errorf("select cohort: %w", err)
	}
	byKey := make(map[string]*domain.DemandRecord, len(existing))
	for i := range existing {
		byKey[existing[i].SalesKey()] = &existing[i]
	}
	logger.Debug().Int("count", len(existing)).Msg("loaded cohort")

	sales := dedupeSales(rows)

	// expected holds the metrics written in this pass, to compare with the
	// final recompute.
	expected := make(map[string]SalesMetrics, len(existing)+len(sales))
	touched := make(map[string]struct{}, len(sales))

	var (
		updates []patchItem
		inserts []domain.DemandRecord
	)
	now := e.now()
	for _, row := range sales {
		key := domain.SalesKey(row.Account, row.SKU)
		touched[key] = struct{}{}

		if rec, ok := byKey[key]; ok {
			m := ComputeSalesMetrics(row.Units, domain.Float(rec.PlannedDemand), row.AvgPrice, domain.Float(rec.ListPrice))
			patch := m.Patch()
			patch[domain.FieldActualSales] = row.Units
			patch[domain.FieldAvgPrice] = row.AvgPrice
			if row.Availability != nil {
				patch[domain.FieldAvailability] = *row.Availability
			}
			updates = append(updates, newPatchItem(rec, patch))
			expected[key] = m
			continue
		}

		m := ComputeSalesMetrics(row.Units, 0, row.AvgPrice, row.AvgPrice)
		inserts = append(inserts, domain.DemandRecord{
			Week:              week,
			Node:              node,
			Account:           row.Account,
			SKU:               row.SKU,
			Forecast:          domain.Ptr(0.0),
			PlannedDemand:     domain.Ptr(0.0),
			ListPrice:         domain.Ptr(row.AvgPrice),
			ActualSales:       domain.Ptr(row.Units),
			AvgPrice:          domain.Ptr(row.AvgPrice),
			Availability:      row.Availability,
			Error:             domain.Ptr(float64(m.Error)),
			ErrorAbs:          domain.Ptr(float64(m.ErrorAbs)),
			LostSaleValuation: domain.Ptr(float64(m.Valuation)),
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		expected[key] = m
	}
	logger.Debug().Int("update", len(updates)).Int("insert", len(inserts)).Msg("partitioned extract")

	updated := Run(ctx, e.batcher("sales.update"), updates, patchKey, e.writePatch)
	result.Updated = updated.Succeeded
	for i, item := range updates {
		if !updated.OK[i] {
			delete(expected, patchKey(item))
			continue
		}
		result.AddDetail(domain.RowDetail{SKU: item.sku, Account: item.account, Action: domain.ActionUpdated})
	}
	e.collect(result, updated)

	inserted := RunBulk(ctx, e.batcher("sales.insert"), inserts, recordKey, e.records.Insert)
	result.Inserted = inserted.Succeeded
	for i, rec := range inserts {
		if !inserted.OK[i] {
			delete(expected, rec.SalesKey())
			continue
		}
		result.AddDetail(domain.RowDetail{SKU: rec.SKU, Account: rec.Account, Action: domain.ActionInserted})
	}
	e.collect(result, inserted)

	var zeroes []patchItem
	for i := range existing {
		rec := &existing[i]
		key := rec.SalesKey()
		if _, ok := touched[key]; ok {
			continue
		}
		m := ComputeSalesMetrics(0, domain.Float(rec.PlannedDemand), 0, domain.Float(rec.ListPrice))
		patch := m.Patch()
		patch[domain.FieldActualSales] = 0.0
		patch[domain.FieldAvgPrice] = 0.0
		zeroes = append(zeroes, newPatchItem(rec, patch))
		expected[key] = m
	}
	zeroed := Run(ctx, e.batcher("sales.no_sale"), zeroes, patchKey, e.writePatch)
	result.NoSales = zeroed.Succeeded
	for i, item := range zeroes {
		if !zeroed.OK[i] {
			delete(expected, patchKey(item))
			continue
		}
		result.AddDetail(domain.RowDetail{SKU: item.sku, Account: item.account, Action: domain.ActionNoSale})
	}
	e.collect(result, zeroed)

	if err := e.recomputeSales(ctx, result, expected); err != nil {
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
		Int("updated", result.Updated).
		Int("inserted", result.Inserted).
		Int("no_sales", result.NoSales).
		Int("recalculated", result.Recalculated).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("sales reconciliation finished")
	return result, nil
}

// recomputeSales re-reads the cohort and rewrites the three sales metrics
// from the persisted values. Its output is authoritative. expected holds
// only the records whose earlier write in this pass succeeded.
func (e *Engine) recomputeSales(ctx context.Context, result *domain.SalesResult, expected map[string]SalesMetrics) error {
	logger := log.With().Int("week", int(result.Week)).Str("node", result.Node).Str("pass", string(domain.PassSales)).Logger()

	all, err := e.records.Select(ctx, domain.CohortFilter(result.Week, result.Node))
	if err != nil {
		return fmt.Errorf("reload cohort for recompute: %w", err)
	}

	items := make([]patchItem, 0, len(all))
	for i := range all {
		rec := &all[i]
		m := SalesMetricsOf(rec)
		if want, ok := expected[rec.SalesKey()]; ok && want != m {
			result.Drift++
		}
		items = append(items, newPatchItem(rec, m.Patch()))
	}
	if result.Drift > 0 {
		logger.Warn().Int("count", result.Drift).Msg("recompute differs from values written earlier in the pass")
	}

	report := Run(ctx, e.batcher("sales.recompute"), items, patchKey, e.writePatch)
	result.Recalculated = report.Succeeded
	e.collect(result, report)
	return nil
}

func (e *Engine) collect(result *domain.SalesResult, r Report) {
	result.Failed += r.Failed
	result.Errors = append(result.Errors, r.Errors...)
}

// dedupeSales drops rows without account or sku. When a key repeats the
// last row wins, keeping the position of the first.
func dedupeSales(rows []domain.SalesRow) []domain.SalesRow {
	out := make([]domain.SalesRow, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		row.Account = strings.TrimSpace(row.Account)
		row.SKU = strings.TrimSpace(row.SKU)
		if row.Account == "" || row.SKU == "" {
			continue
		}
		key := domain.SalesKey(row.Account, row.SKU)
		if i, ok := index[key]; ok {
			out[i] = row
			continue
		}
		index[key] = len(out)
		out = append(out, row)
	}
	return out
}
