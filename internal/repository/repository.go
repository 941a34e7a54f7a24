// internal/repository/repository.go
package repository

import (
	"context"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// DemandRepository is the Record Store over plan_demanda.
type DemandRepository interface {
	Select(ctx context.Context, filter domain.RecordFilter) ([]domain.DemandRecord, error)
	// Update patches every row matching filter and returns how many changed.
	Update(ctx context.Context, filter domain.RecordFilter, patch domain.Patch) (int64, error)
	Insert(ctx context.Context, records []domain.DemandRecord) error
	// Upsert inserts or updates the planning columns keyed on
	// (week, node, account, sku).
	Upsert(ctx context.Context, records []domain.DemandRecord) error
	Count(ctx context.Context, filter domain.RecordFilter) (int64, error)
	Ping(ctx context.Context) error
}

// StockSnapshotRepository reads and loads stock_snapshots.
type StockSnapshotRepository interface {
	// Probe fails when the snapshot table cannot be read.
	Probe(ctx context.Context) error
	ListByDate(ctx context.Context, date, country string) ([]domain.StockSnapshot, error)
	// RecentDates returns the snapshot dates of the latest rows, newest
	// first, duplicates included.
	RecentDates(ctx context.Context, country string, limit int) ([]string, error)
	// ReplaceSnapshot swaps all rows of (date, country) for rows.
	ReplaceSnapshot(ctx context.Context, date, country string, rows []domain.StockSnapshot) (int, error)
}

// ScenarioRepository stores the scenario catalog.
type ScenarioRepository interface {
	Upsert(ctx context.Context, entry domain.ScenarioEntry) error
	List(ctx context.Context) ([]domain.ScenarioEntry, error)
}

// AuditRepository stores plan_change_history.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	// ListByWeek returns the entries of a week, newest first.
	ListByWeek(ctx context.Context, week domain.Week) ([]domain.AuditEntry, error)
}

// RunRepository stores reconcile_runs.
type RunRepository interface {
	Create(ctx context.Context, run *domain.ReconcileRun) error
	Update(ctx context.Context, run *domain.ReconcileRun) error
	List(ctx context.Context, week domain.Week, node string, limit int) ([]domain.ReconcileRun, error)
}

// SalesSource pulls a sales extract from an external system.
type SalesSource interface {
	FetchSales(ctx context.Context, week domain.Week, node string) ([]domain.SalesRow, error)
	Ping(ctx context.Context) error
	Close() error
}

// Store bundles the repositories of one backing database.
type Store struct {
	Demand    DemandRepository
	Stock     StockSnapshotRepository
	Scenarios ScenarioRepository
	Audit     AuditRepository
	Runs      RunRepository
	Close     func() error
}
