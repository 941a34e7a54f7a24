package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// Sweep writes the default into every null derived field of the cohort.
func (e *Engine) Sweep(ctx context.Context, week domain.Week, node string) (*domain.SweepResult, error) {
	node, err := e.resolveCohort(week, node)
	if err != nil {
		return nil, err
	}

	var result domain.SweepResult
	err = e.withCohort(ctx, week, node, func() error {
		result, err = e.sweep(ctx, week, node, domain.DerivedFields)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// sweep patches exactly the null fields of set on each cohort record.
// Records with nothing null are not written, so a second run is a no-op.
func (e *Engine) sweep(ctx context.Context, week domain.Week, node string, set domain.FieldSet) (domain.SweepResult, error) {
	records, err := e.records.Select(ctx, domain.RecordFilter{Week: week, Node: node, AnyNull: set.Fields})
	if err != nil {
		return domain.SweepResult{}, fmt.Errorf("select null fields: %w", err)
	}

	items := make([]patchItem, 0, len(records))
	for i := range records {
		patch := set.NullPatch(&records[i])
		if len(patch) == 0 {
			continue
		}
		items = append(items, newPatchItem(&records[i], patch))
	}

	report := Run(ctx, e.batcher("sweep"), items, patchKey, e.writePatch)
	result := domain.SweepResult{
		Scanned: len(records),
		Updated: report.Succeeded,
		Failed:  report.Failed,
		Errors:  report.Errors,
	}

	log.Info().
		Int("week", int(week)).
		Str("node", node).
		Str("pass", string(domain.PassSweep)).
		Int("count", result.Updated).
		Int("failed", result.Failed).
		Msg("null sweep finished")
	return result, nil
}
