package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// Unlock releases a cohort lock.
type Unlock func(ctx context.Context) error

// CohortLocker serialises passes over the same (week, node) cohort.
// Lock returns domain.ErrCohortBusy when another pass holds the cohort.
type CohortLocker interface {
	Lock(ctx context.Context, week domain.Week, node string) (Unlock, error)
}

// CohortKey is the lock key of a cohort.
func CohortKey(week domain.Week, node string) string {
	return fmt.Sprintf("plan-demanda:cohort:%d:%s", int(week), node)
}

// NoopLocker never blocks.
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, domain.Week, string) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}

// LocalLocker guards cohorts within a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]struct{}{}}
}

func (l *LocalLocker) Lock(_ context.Context, week domain.Week, node string) (Unlock, error) {
	key := CohortKey(week, node)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, domain.ErrCohortBusy
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
