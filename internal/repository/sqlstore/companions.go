package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

const (
	stockTable     = "stock_snapshots"
	scenarioTable  = "scenario_catalog"
	auditTable     = "plan_change_history"
	runsTable      = "reconcile_runs"
	stockChunkSize = 500
)

// StockRepository reads and loads stock_snapshots.
type StockRepository struct {
	db *DB
}

func NewStockRepository(db *DB) *StockRepository {
	return &StockRepository{db: db}
}

func (r *StockRepository) Probe(ctx context.Context) error {
	var n int64
	return storeError(stockTable, "probe", r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM stock_snapshots WHERE 1 = 0"))
}

func (r *StockRepository) ListByDate(ctx context.Context, date, country string) ([]domain.StockSnapshot, error) {
	query := r.db.Rebind(`
		SELECT sku, stock, client, snapshot_date, country
		FROM stock_snapshots
		WHERE snapshot_date = ? AND country = ?
	`)
	rows := make([]domain.StockSnapshot, 0)
	if err := r.db.SelectContext(ctx, &rows, query, date, country); err != nil {
		return nil, storeError(stockTable, "select", err)
	}
	return rows, nil
}

func (r *StockRepository) RecentDates(ctx context.Context, country string, limit int) ([]string, error) {
	query := r.db.Rebind(`
		SELECT snapshot_date
		FROM stock_snapshots
		WHERE country = ?
		ORDER BY snapshot_date DESC
		LIMIT ?
	`)
	dates := make([]string, 0, limit)
	if err := r.db.SelectContext(ctx, &dates, query, country, limit); err != nil {
		return nil, storeError(stockTable, "select", err)
	}
	return dates, nil
}

func (r *StockRepository) ReplaceSnapshot(ctx context.Context, date, country string, rows []domain.StockSnapshot) (int, error) {
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		del := tx.Rebind("DELETE FROM stock_snapshots WHERE snapshot_date = ? AND country = ?")
		if _, err := tx.ExecContext(ctx, del, date, country); err != nil {
			return storeError(stockTable, "delete", err)
		}

		for start := 0; start < len(rows); start += stockChunkSize {
			end := min(start+stockChunkSize, len(rows))
			chunk := make([]domain.StockSnapshot, 0, end-start)
			for _, row := range rows[start:end] {
				row.SnapshotDate = date
				row.Country = country
				chunk = append(chunk, row)
			}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO stock_snapshots (sku, stock, client, snapshot_date, country)
				VALUES (:sku, :stock, :client, :snapshot_date, :country)
			`, chunk); err != nil {
				return storeError(stockTable, "insert", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ScenarioRepository stores scenario_catalog.
type ScenarioRepository struct {
	db  *DB
	now func() time.Time
}

func NewScenarioRepository(db *DB) *ScenarioRepository {
	return &ScenarioRepository{db: db, now: time.Now}
}

func (r *ScenarioRepository) Upsert(ctx context.Context, entry domain.ScenarioEntry) error {
	query := r.db.Rebind(`
		INSERT INTO scenario_catalog (node, account, sku, scenario, quantity, price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (node, account, sku, scenario) DO UPDATE SET
			quantity = excluded.quantity,
			price = excluded.price,
			updated_at = excluded.updated_at
	`)
	_, err := r.db.ExecContext(ctx, query,
		entry.Node, entry.Account, entry.SKU, string(entry.Scenario), entry.Quantity, entry.Price, r.now().UTC())
	return storeError(scenarioTable, "upsert", err)
}

func (r *ScenarioRepository) List(ctx context.Context) ([]domain.ScenarioEntry, error) {
	entries := make([]domain.ScenarioEntry, 0)
	err := r.db.SelectContext(ctx, &entries, `
		SELECT node, account, sku, scenario, quantity, price
		FROM scenario_catalog
		ORDER BY node, account, sku, scenario
	`)
	if err != nil {
		return nil, storeError(scenarioTable, "select", err)
	}
	return entries, nil
}

// AuditRepository stores plan_change_history.
type AuditRepository struct {
	db  *DB
	now func() time.Time
}

func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db, now: time.Now}
}

func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO plan_change_history (
			node, account, sku, week, field, old_value, new_value, details,
			applied_scenario, user_name, ip_address, user_agent, created_at
		) VALUES (
			:node, :account, :sku, :week, :field, :old_value, :new_value, :details,
			:applied_scenario, :user_name, :ip_address, :user_agent, :created_at
		)
	`, entry)
	return storeError(auditTable, "insert", err)
}

func (r *AuditRepository) ListByWeek(ctx context.Context, week domain.Week) ([]domain.AuditEntry, error) {
	query := r.db.Rebind(`
		SELECT id, node, account, sku, week, field, old_value, new_value, details,
		       applied_scenario, user_name, ip_address, user_agent, created_at
		FROM plan_change_history
		WHERE week = ?
		ORDER BY created_at DESC, id DESC
	`)
	entries := make([]domain.AuditEntry, 0)
	if err := r.db.SelectContext(ctx, &entries, query, int(week)); err != nil {
		return nil, storeError(auditTable, "select", err)
	}
	return entries, nil
}

// RunRepository handles database operations for reconcile run tracking
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run, assigning a new id when it has none.
func (r *RunRepository) Create(ctx context.Context, run *domain.ReconcileRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO reconcile_runs (
			id, pass, week, node, source, status, updated, inserted,
			zeroed, failed, duration_ms, error_message, started_at, completed_at
		) VALUES (
			:id, :pass, :week, :node, :source, :status, :updated, :inserted,
			:zeroed, :failed, :duration_ms, :error_message, :started_at, :completed_at
		)
	`, run)
	return storeError(runsTable, "insert", err)
}

// Update writes the final state of a run.
func (r *RunRepository) Update(ctx context.Context, run *domain.ReconcileRun) error {
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE reconcile_runs
		SET status = :status, updated = :updated, inserted = :inserted, zeroed = :zeroed,
		    failed = :failed, duration_ms = :duration_ms, error_message = :error_message,
		    completed_at = :completed_at
		WHERE id = :id
	`, run)
	if err != nil {
		return storeError(runsTable, "update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, domain.ErrNotFound)
	}
	return nil
}

// List returns the latest runs, optionally narrowed to a week and node.
func (r *RunRepository) List(ctx context.Context, week domain.Week, node string, limit int) ([]domain.ReconcileRun, error) {
	query := `
		SELECT id, pass, week, node, source, status, updated, inserted, zeroed,
		       failed, duration_ms, error_message, started_at, completed_at
		FROM reconcile_runs
		WHERE 1 = 1`
	var args []any
	if week != 0 {
		query += " AND week = ?"
		args = append(args, int(week))
	}
	if node != "" {
		query += " AND node = ?"
		args = append(args, node)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	runs := make([]domain.ReconcileRun, 0)
	if err := r.db.SelectContext(ctx, &runs, r.db.Rebind(query), args...); err != nil {
		return nil, storeError(runsTable, "select", err)
	}
	return runs, nil
}
