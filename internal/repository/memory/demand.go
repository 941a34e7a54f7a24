// Package memory holds in-process repositories used by tests and by
// STORE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// DemandStore is an in-memory Record Store.
type DemandStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]*domain.DemandRecord
	now     func() time.Time

	// FailUpdate, when set, is consulted before every update; a non-nil
	// error aborts that update without touching any row.
	FailUpdate func(filter domain.RecordFilter) error
	// FailInsert does the same for bulk inserts.
	FailInsert func(records []domain.DemandRecord) error
	// FailSelect is consulted before every read, Count included.
	FailSelect func(filter domain.RecordFilter) error

	writes int64
}

// NewDemandStore creates an empty store.
func NewDemandStore() *DemandStore {
	return &DemandStore{records: map[int64]*domain.DemandRecord{}, now: time.Now}
}

// Writes is the number of rows changed by Update since the last reset.
func (s *DemandStore) Writes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// ResetWrites zeroes the write counter.
func (s *DemandStore) ResetWrites() {
	s.mu.Lock()
	s.writes = 0
	s.mu.Unlock()
}

// Seed inserts records as-is, assigning ids. Existing timestamps are kept.
func (s *DemandStore) Seed(records ...domain.DemandRecord) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		s.nextID++
		r.ID = s.nextID
		rec := r
		s.records[rec.ID] = &rec
		ids = append(ids, rec.ID)
	}
	return ids
}

// Get returns a copy of the record with id.
func (s *DemandStore) Get(id int64) (domain.DemandRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return domain.DemandRecord{}, false
	}
	return *r, true
}

// Find returns the record of a (week, node, account, sku) identity.
func (s *DemandStore) Find(week domain.Week, node, account, sku string) (domain.DemandRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.Week == week && r.Node == node && r.Account == account && r.SKU == sku {
			return *r, true
		}
	}
	return domain.DemandRecord{}, false
}

func (s *DemandStore) Select(ctx context.Context, filter domain.RecordFilter) ([]domain.DemandRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailSelect != nil {
		if err := s.FailSelect(filter); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DemandRecord, 0)
	for _, r := range s.records {
		if filter.Matches(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *DemandStore) Update(ctx context.Context, filter domain.RecordFilter, patch domain.Patch) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := patch.Validate(); err != nil {
		return 0, err
	}
	if s.FailUpdate != nil {
		if err := s.FailUpdate(filter); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for _, r := range s.records {
		if filter.Matches(r) {
			patch.Apply(r, now)
			n++
		}
	}
	s.writes += n
	return n, nil
}

func (s *DemandStore) Insert(ctx context.Context, records []domain.DemandRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailInsert != nil {
		if err := s.FailInsert(records); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, r := range records {
		key := identity(&r)
		if _, dup := seen[key]; dup || s.findLocked(&r) != nil {
			return fmt.Errorf("duplicate key value violates unique constraint (%s)", key)
		}
		seen[key] = struct{}{}
	}
	now := s.now()
	for _, r := range records {
		s.insertLocked(r, now)
	}
	return nil
}

func (s *DemandStore) Upsert(ctx context.Context, records []domain.DemandRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, r := range records {
		if existing := s.findLocked(&r); existing != nil {
			existing.Forecast = r.Forecast
			existing.PlannedDemand = r.PlannedDemand
			existing.ListPrice = r.ListPrice
			existing.Action = r.Action
			existing.Notes = r.Notes
			existing.UpdatedAt = now
			continue
		}
		s.insertLocked(r, now)
	}
	return nil
}

func (s *DemandStore) Count(ctx context.Context, filter domain.RecordFilter) (int64, error) {
	records, err := s.Select(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

func (s *DemandStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *DemandStore) insertLocked(r domain.DemandRecord, now time.Time) {
	s.nextID++
	r.ID = s.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	s.records[r.ID] = &r
}

func (s *DemandStore) findLocked(r *domain.DemandRecord) *domain.DemandRecord {
	key := identity(r)
	for _, existing := range s.records {
		if identity(existing) == key {
			return existing
		}
	}
	return nil
}

func identity(r *domain.DemandRecord) string {
	return fmt.Sprintf("%d|%s|%s|%s", int(r.Week), r.Node, r.Account, r.SKU)
}
