package reconcile

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// DefaultBatchSize is the number of writes in flight per batch.
const DefaultBatchSize = 50

// Batcher splits work into consecutive batches. Writes inside a batch run
// concurrently; the next batch starts only when the previous one settled.
type Batcher struct {
	Size int
	Name string
}

// Report tallies the outcome of a dispatch.
type Report struct {
	Total     int
	Succeeded int
	Failed    int
	Errors    []domain.ItemError
	// OK flags, in input order, which items were written.
	OK []bool
}

func (r *Report) merge(o Report) {
	r.Total += o.Total
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
	r.Errors = append(r.Errors, o.Errors...)
	r.OK = append(r.OK, o.OK...)
}

func (b Batcher) size() int {
	if b.Size < 1 {
		return DefaultBatchSize
	}
	return b.Size
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = DefaultBatchSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// Run writes every item with fn. A failing item never stops its siblings
// or later batches. When ctx is cancelled the remaining items are reported
// as failed with the context error.
func Run[T any](ctx context.Context, b Batcher, items []T, key func(T) string, fn func(context.Context, T) error) Report {
	report := Report{Total: len(items), OK: make([]bool, len(items))}
	size := b.size()

	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}

		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				report.Failed++
				report.Errors = append(report.Errors, domain.ItemError{Key: key(items[i]), Err: err})
			}
			return report
		}

		var (
			g  errgroup.Group
			mu sync.Mutex
		)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				err := fn(ctx, items[i])
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failed++
					report.Errors = append(report.Errors, domain.ItemError{Key: key(items[i]), Err: err})
					return nil
				}
				report.Succeeded++
				report.OK[i] = true
				return nil
			})
		}
		_ = g.Wait()

		log.Debug().
			Str("pass", b.Name).
			Int("processed", end).
			Int("total", len(items)).
			Msg("batch settled")
	}
	return report
}

// RunBulk writes items one chunk per call. A failed chunk counts all its
// items as failed.
func RunBulk[T any](ctx context.Context, b Batcher, items []T, key func(T) string, fn func(context.Context, []T) error) Report {
	report := Report{}
	processed := 0
	for _, chunk := range Chunk(items, b.size()) {
		part := Report{Total: len(chunk), OK: make([]bool, len(chunk))}
		err := ctx.Err()
		if err == nil {
			err = fn(ctx, chunk)
		}
		if err != nil {
			part.Failed = len(chunk)
			for _, item := range chunk {
				part.Errors = append(part.Errors, domain.ItemError{Key: key(item), Err: err})
			}
		} else {
			part.Succeeded = len(chunk)
			for i := range part.OK {
				part.OK[i] = true
			}
		}
		report.merge(part)
		processed += len(chunk)

		log.Debug().
			Str("pass", b.Name).
			Int("processed", processed).
			Int("total", len(items)).
			Msg("bulk batch settled")
	}
	return report
}
