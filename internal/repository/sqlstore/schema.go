package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

const planDemandColumns = `
	week INTEGER NOT NULL,
	node TEXT NOT NULL,
	account TEXT NOT NULL,
	sku TEXT NOT NULL,
	forecast DOUBLE PRECISION,
	planned_demand DOUBLE PRECISION,
	list_price DOUBLE PRECISION,
	action_tag TEXT,
	notes TEXT,
	actual_sales DOUBLE PRECISION,
	avg_price DOUBLE PRECISION,
	availability DOUBLE PRECISION,
	error DOUBLE PRECISION,
	error_abs DOUBLE PRECISION,
	lost_sale_valuation DOUBLE PRECISION,
	starting_stock DOUBLE PRECISION,
	lost_sale_stock_units DOUBLE PRECISION,
	lost_sale_stock_valuation DOUBLE PRECISION,
	fill_rate DOUBLE PRECISION,
	last_po_date TIMESTAMP,
	fill_rate_loss DOUBLE PRECISION,
	delisting TEXT,
	delisting_loss DOUBLE PRECISION,
	price_variation_prev DOUBLE PRECISION,
	over_sale_prev DOUBLE PRECISION,
	stock_week_1 DOUBLE PRECISION,
	over_sale_prev_2 DOUBLE PRECISION,
	over_sale_loss DOUBLE PRECISION,
	lost_sale_unexplained DOUBLE PRECISION,
	over_sale_valuation DOUBLE PRECISION,
	fill_rate_valuation DOUBLE PRECISION,
	delisting_valuation DOUBLE PRECISION,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (week, node, account, sku)`

// schema returns the DDL for a driver; only the id columns differ.
func schema(driver string) []string {
	id := "id BIGSERIAL PRIMARY KEY"
	if driver == "sqlite3" {
		id = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS plan_demanda (%s,%s)`, id, planDemandColumns),
		`CREATE INDEX IF NOT EXISTS idx_plan_demanda_cohort ON plan_demanda (week, node)`,
		`CREATE TABLE IF NOT EXISTS stock_snapshots (
			sku TEXT NOT NULL,
			stock DOUBLE PRECISION NOT NULL DEFAULT 0,
			client TEXT NOT NULL DEFAULT '',
			snapshot_date TEXT NOT NULL,
			country TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_snapshots_date ON stock_snapshots (country, snapshot_date)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS scenario_catalog (
			%s,
			node TEXT NOT NULL,
			account TEXT NOT NULL,
			sku TEXT NOT NULL,
			scenario TEXT NOT NULL,
			quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (node, account, sku, scenario)
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS plan_change_history (
			%s,
			node TEXT NOT NULL,
			account TEXT NOT NULL,
			sku TEXT NOT NULL,
			week INTEGER NOT NULL,
			field TEXT NOT NULL,
			old_value TEXT,
			new_value TEXT,
			details TEXT,
			applied_scenario TEXT NOT NULL,
			user_name TEXT NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMP NOT NULL
		)`, id),
		`CREATE INDEX IF NOT EXISTS idx_plan_change_history_week ON plan_change_history (week, created_at)`,
		`CREATE TABLE IF NOT EXISTS reconcile_runs (
			id TEXT PRIMARY KEY,
			pass TEXT NOT NULL,
			week INTEGER NOT NULL,
			node TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			updated INTEGER NOT NULL DEFAULT 0,
			inserted INTEGER NOT NULL DEFAULT 0,
			zeroed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reconcile_runs_cohort ON reconcile_runs (week, node, started_at)`,
	}
}

// Migrate creates every table and index that does not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema(db.DriverName()) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %s: %w", firstLine(stmt), err)
		}
	}
	log.Info().Str("driver", db.DriverName()).Msg("schema up to date")
	return nil
}

func firstLine(stmt string) string {
	if i := strings.IndexAny(stmt, "(\n"); i > 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}
