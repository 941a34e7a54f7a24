package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

const demandTable = "plan_demanda"

const selectRecordColumns = `id, week, node, account, sku,
	forecast, planned_demand, list_price, action_tag, notes,
	actual_sales, avg_price, availability,
	error, error_abs, lost_sale_valuation, starting_stock,
	lost_sale_stock_units, lost_sale_stock_valuation, fill_rate,
	last_po_date, fill_rate_loss, delisting, delisting_loss, price_variation_prev,
	over_sale_prev, stock_week_1, over_sale_prev_2, over_sale_loss,
	lost_sale_unexplained, over_sale_valuation, fill_rate_valuation, delisting_valuation,
	created_at, updated_at`

const insertRecordQuery = `
	INSERT INTO plan_demanda (
		week, node, account, sku,
		forecast, planned_demand, list_price, action_tag, notes,
		actual_sales, avg_price, availability,
		error, error_abs, lost_sale_valuation, starting_stock,
		lost_sale_stock_units, lost_sale_stock_valuation, fill_rate,
		created_at, updated_at
	) VALUES (
		:week, :node, :account, :sku,
		:forecast, :planned_demand, :list_price, :action_tag, :notes,
		:actual_sales, :avg_price, :availability,
		:error, :error_abs, :lost_sale_valuation, :starting_stock,
		:lost_sale_stock_units, :lost_sale_stock_valuation, :fill_rate,
		:created_at, :updated_at
	)`

const upsertPlanQuery = `
	INSERT INTO plan_demanda (
		week, node, account, sku,
		forecast, planned_demand, list_price, action_tag, notes,
		created_at, updated_at
	) VALUES (
		:week, :node, :account, :sku,
		:forecast, :planned_demand, :list_price, :action_tag, :notes,
		:created_at, :updated_at
	)
	ON CONFLICT (week, node, account, sku) DO UPDATE SET
		forecast = excluded.forecast,
		planned_demand = excluded.planned_demand,
		list_price = excluded.list_price,
		action_tag = excluded.action_tag,
		notes = excluded.notes,
		updated_at = excluded.updated_at`

// DemandRepository is the SQL Record Store over plan_demanda.
type DemandRepository struct {
	db  *DB
	now func() time.Time
}

func NewDemandRepository(db *DB) *DemandRepository {
	return &DemandRepository{db: db, now: time.Now}
}

func (r *DemandRepository) Select(ctx context.Context, filter domain.RecordFilter) ([]domain.DemandRecord, error) {
	where, args, err := recordWhere(filter)
	if err != nil {
		return nil, err
	}
	query := r.db.Rebind("SELECT " + selectRecordColumns + " FROM plan_demanda" + where + " ORDER BY id")

	records := make([]domain.DemandRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, storeError(demandTable, "select", err)
	}
	return records, nil
}

func (r *DemandRepository) Update(ctx context.Context, filter domain.RecordFilter, patch domain.Patch) (int64, error) {
	if len(patch) == 0 {
		return 0, nil
	}
	if err := patch.Validate(); err != nil {
		return 0, err
	}
	where, whereArgs, err := recordWhere(filter)
	if err != nil {
		return 0, err
	}
	if where == "" {
		return 0, fmt.Errorf("update %s: refusing to patch without a filter", demandTable)
	}

	fields := patch.Fields()
	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1+len(whereArgs))
	for _, f := range fields {
		sets = append(sets, string(f)+" = ?")
		args = append(args, patch[f])
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now().UTC())
	args = append(args, whereArgs...)

	query := r.db.Rebind("UPDATE plan_demanda SET " + strings.Join(sets, ", ") + where)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeError(demandTable, "update", err)
	}
	return res.RowsAffected()
}

func (r *DemandRepository) Insert(ctx context.Context, records []domain.DemandRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := r.stamped(records)
	if _, err := r.db.NamedExecContext(ctx, insertRecordQuery, rows); err != nil {
		return storeError(demandTable, "insert", err)
	}
	return nil
}

// Upsert writes the planning columns of each record in one transaction.
func (r *DemandRepository) Upsert(ctx context.Context, records []domain.DemandRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := r.stamped(records)
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range rows {
			if _, err := tx.NamedExecContext(ctx, upsertPlanQuery, rows[i]); err != nil {
				return storeError(demandTable, "upsert", err)
			}
		}
		return nil
	})
}

func (r *DemandRepository) Count(ctx context.Context, filter domain.RecordFilter) (int64, error) {
	where, args, err := recordWhere(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.db.GetContext(ctx, &n, r.db.Rebind("SELECT COUNT(*) FROM plan_demanda"+where), args...); err != nil {
		return 0, storeError(demandTable, "count", err)
	}
	return n, nil
}

func (r *DemandRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return err
	}
	var n int64
	return storeError(demandTable, "probe", r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM plan_demanda WHERE 1 = 0"))
}

func (r *DemandRepository) stamped(records []domain.DemandRecord) []domain.DemandRecord {
	now := r.now().UTC()
	rows := make([]domain.DemandRecord, len(records))
	for i, rec := range records {
		rec.CreatedAt = now
		rec.UpdatedAt = now
		rows[i] = rec
	}
	return rows
}

// recordWhere renders a filter as a WHERE clause with ? placeholders.
func recordWhere(f domain.RecordFilter) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)

	if f.ID != 0 {
		clauses = append(clauses, "id = ?")
		args = append(args, f.ID)
	}
	if f.Week != 0 {
		clauses = append(clauses, "week = ?")
		args = append(args, int(f.Week))
	}
	if len(f.Weeks) > 0 {
		clauses = append(clauses, "week IN ("+placeholders(len(f.Weeks))+")")
		for _, w := range f.Weeks {
			args = append(args, int(w))
		}
	}
	if f.Node != "" {
		clauses = append(clauses, "node = ?")
		args = append(args, f.Node)
	}
	if f.Account != "" {
		clauses = append(clauses, "account = ?")
		args = append(args, f.Account)
	}
	if f.SKU != "" {
		clauses = append(clauses, "sku = ?")
		args = append(args, f.SKU)
	}
	if len(f.AnyNull) > 0 {
		nulls := make([]string, len(f.AnyNull))
		for i, field := range f.AnyNull {
			if !field.Known() {
				return "", nil, fmt.Errorf("unknown field %q in filter", field)
			}
			nulls[i] = string(field) + " IS NULL"
		}
		clauses = append(clauses, "("+strings.Join(nulls, " OR ")+")")
	}
	for _, field := range f.NotNull {
		if !field.Known() {
			return "", nil, fmt.Errorf("unknown field %q in filter", field)
		}
		clauses = append(clauses, string(field)+" IS NOT NULL")
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
