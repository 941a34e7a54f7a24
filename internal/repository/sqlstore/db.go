// Package sqlstore implements the repositories over Postgres (lib/pq or pgx)
// and SQLite.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/config"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository"
)

const defaultMaxConcurrency = 10

type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

// Open connects with the configured driver: postgres (lib/pq), pgx or sqlite3.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == "memory" {
		return nil, fmt.Errorf("STORE_DRIVER=memory has no database")
	}
	return Connect(cfg.Driver, cfg.DSN(), cfg.MaxConcurrency)
}

// Connect opens and pings a database.
func Connect(driver, dsn string, maxConcurrency int) (*DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	// Configure connection pool
	if driver == "sqlite3" {
		// One writer at a time; also keeps a :memory: database on a single connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}

	return &DB{
		DB:  db,
		sem: semaphore.NewWeighted(int64(maxConcurrency)),
	}, nil
}

// NewStore bundles the SQL repositories over db.
func NewStore(db *DB) *repository.Store {
	return &repository.Store{
		Demand:    NewDemandRepository(db),
		Stock:     NewStockRepository(db),
		Scenarios: NewScenarioRepository(db),
		Audit:     NewAuditRepository(db),
		Runs:      NewRunRepository(db),
		Close:     db.Close,
	}
}

// WithTx executes a function within a transaction
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	// Acquire semaphore
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("could not acquire semaphore: %w", err)
	}
	defer db.sem.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// isUndefinedTable recognises a missing table across the supported drivers.
func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return true
	}
	var liteErr sqlite3.Error
	return errors.As(err, &liteErr) && strings.Contains(liteErr.Error(), "no such table")
}

// storeError maps a missing table to a table_error and wraps anything else.
func storeError(table, op string, err error) error {
	if err == nil {
		return nil
	}
	if isUndefinedTable(err) {
		return &domain.PassError{
			Type:    domain.ErrorTypeTable,
			Message: fmt.Sprintf("La tabla %s no existe. Ejecuta planctl migrate para crearla.", table),
			Details: map[string]any{"table": table},
			Err:     err,
		}
	}
	return fmt.Errorf("%s %s: %w", op, table, err)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
