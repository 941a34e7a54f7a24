package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository"
)

// StockStore holds stock snapshots in memory.
type StockStore struct {
	mu   sync.RWMutex
	rows []domain.StockSnapshot

	// ProbeErr, when set, is returned by Probe.
	ProbeErr error
}

func NewStockStore(rows ...domain.StockSnapshot) *StockStore {
	return &StockStore{rows: append([]domain.StockSnapshot(nil), rows...)}
}

func (s *StockStore) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.ProbeErr
}

func (s *StockStore) ListByDate(ctx context.Context, date, country string) ([]domain.StockSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StockSnapshot, 0)
	for _, r := range s.rows {
		if r.SnapshotDate == date && r.Country == country {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *StockStore) RecentDates(ctx context.Context, country string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	dates := make([]string, 0, len(s.rows))
	for _, r := range s.rows {
		if r.Country == country {
			dates = append(dates, r.SnapshotDate)
		}
	}
	s.mu.RUnlock()

	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if limit > 0 && len(dates) > limit {
		dates = dates[:limit]
	}
	return dates, nil
}

func (s *StockStore) ReplaceSnapshot(ctx context.Context, date, country string, rows []domain.StockSnapshot) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	for _, r := range s.rows {
		if r.SnapshotDate != date || r.Country != country {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	for _, r := range rows {
		r.SnapshotDate = date
		r.Country = country
		s.rows = append(s.rows, r)
	}
	return len(rows), nil
}

// ScenarioStore holds the scenario catalog in memory.
type ScenarioStore struct {
	mu      sync.RWMutex
	entries map[string]domain.ScenarioEntry
}

func NewScenarioStore() *ScenarioStore {
	return &ScenarioStore{entries: map[string]domain.ScenarioEntry{}}
}

func (s *ScenarioStore) Upsert(ctx context.Context, entry domain.ScenarioEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[domain.ItemKey(entry.Node, entry.Account, entry.SKU)+"|"+string(entry.Scenario)] = entry
	return nil
}

func (s *ScenarioStore) List(ctx context.Context) ([]domain.ScenarioEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.ScenarioEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.entries[k])
	}
	return out, nil
}

// AuditStore holds plan change history in memory.
type AuditStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries []domain.AuditEntry
	now     func() time.Time
}

func NewAuditStore() *AuditStore {
	return &AuditStore{now: time.Now}
}

func (s *AuditStore) Append(ctx context.Context, entry domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *AuditStore) ListByWeek(ctx context.Context, week domain.Week) ([]domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, 0)
	for _, e := range s.entries {
		if e.Week == week {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// RunStore holds reconcile runs in memory.
type RunStore struct {
	mu     sync.RWMutex
	nextID int64
	runs   []domain.ReconcileRun
}

func NewRunStore() *RunStore { return &RunStore{} }

func (s *RunStore) Create(ctx context.Context, run *domain.ReconcileRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		s.nextID++
		run.ID = strconv.FormatInt(s.nextID, 10)
	}
	s.runs = append(s.runs, *run)
	return nil
}

func (s *RunStore) Update(ctx context.Context, run *domain.ReconcileRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = *run
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *RunStore) List(ctx context.Context, week domain.Week, node string, limit int) ([]domain.ReconcileRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ReconcileRun, 0)
	for i := len(s.runs) - 1; i >= 0; i-- {
		r := s.runs[i]
		if (week != 0 && r.Week != week) || (node != "" && r.Node != node) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// NewStore bundles fresh in-memory repositories.
func NewStore() *repository.Store {
	return &repository.Store{
		Demand:    NewDemandStore(),
		Stock:     NewStockStore(),
		Scenarios: NewScenarioStore(),
		Audit:     NewAuditStore(),
		Runs:      NewRunStore(),
		Close:     func() error { return nil },
	}
}
