package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// RelativeErrors writes the legacy relative error on records of week (and
// node, when given) that have actual sales. The sales pass overwrites these
// values the next time it runs.
func (e *Engine) RelativeErrors(ctx context.Context, week domain.Week, node string) (*domain.RelativeErrorResult, error) {
	if err := week.Validate(); err != nil {
		return nil, &domain.PassError{Type: domain.ErrorTypeInvalidRequest, Message: "Semana no especificada", Err: err}
	}

	records, err := e.records.Select(ctx, domain.RecordFilter{
		Week:    week,
		Node:    node,
		NotNull: []domain.Field{domain.FieldActualSales},
	})
	if err != nil {
		return nil, fmt.Errorf("select records with sales: %w", err)
	}
	if len(records) == 0 {
		return nil, domain.NewPassError(domain.ErrorTypeNoValidRecords, "No hay registros con venta real para calcular errores")
	}

	items := make([]patchItem, 0, len(records))
	abs := make([]float64, 0, len(records))
	for i := range records {
		errVal, errAbs := RelativeError(domain.Float(records[i].ActualSales), domain.Float(records[i].PlannedDemand))
		items = append(items, newPatchItem(&records[i], domain.Patch{
			domain.FieldError:    errVal,
			domain.FieldErrorAbs: errAbs,
		}))
		abs = append(abs, errAbs)
	}

	report := Run(ctx, e.batcher("relative_error"), items, patchKey, e.writePatch)
	result := &domain.RelativeErrorResult{Processed: report.Succeeded}
	total := 0.0
	for i, ok := range report.OK {
		if ok {
			total += abs[i]
		}
	}
	if result.Processed > 0 {
		result.AvgError = total / float64(result.Processed)
	}

	log.Info().
		Int("week", int(week)).
		Str("node", node).
		Int("count", result.Processed).
		Float64("avg_error", result.AvgError).
		Msg("relative errors calculated")
	return result, nil
}
