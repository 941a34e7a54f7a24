package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository"
)

// DefaultSalesQuery reads the weekly extract table. Up to two ? placeholders
// are bound to the week and the node, in that order.
const DefaultSalesQuery = `
	SELECT semana AS week, cliente AS account, seller_sku AS sku,
	       total_vendido AS units, precio_promedio AS avg_price, disponibilidad AS availability
	FROM ventas_semanales
	WHERE semana = ? AND nodo = ?`

type salesSourceRow struct {
	Week         sql.NullInt64   `db:"week"`
	Account      sql.NullString  `db:"account"`
	SKU          sql.NullString  `db:"sku"`
	Units        sql.NullFloat64 `db:"units"`
	AvgPrice     sql.NullFloat64 `db:"avg_price"`
	Availability sql.NullFloat64 `db:"availability"`
}

// MySQLSalesSource pulls sales extracts from a MySQL reporting database.
type MySQLSalesSource struct {
	db    *sqlx.DB
	query string
	args  int
}

var _ repository.SalesSource = (*MySQLSalesSource)(nil)

func NewMySQLSalesSource(dsn, query string) (*MySQLSalesSource, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid SALES_SOURCE_DSN: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open sales source: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if strings.TrimSpace(query) == "" {
		query = DefaultSalesQuery
	}
	args := strings.Count(query, "?")
	if args > 2 {
		_ = db.Close()
		return nil, fmt.Errorf("SALES_SOURCE_QUERY takes at most two placeholders (week, node), got %d", args)
	}

	return &MySQLSalesSource{db: db.Unsafe(), query: query, args: args}, nil
}

func (s *MySQLSalesSource) FetchSales(ctx context.Context, week domain.Week, node string) ([]domain.SalesRow, error) {
	bind := []any{int(week), node}[:s.args]

	var raw []salesSourceRow
	if err := s.db.SelectContext(ctx, &raw, s.query, bind...); err != nil {
		return nil, fmt.Errorf("fetch sales for %d/%s: %w", int(week), node, err)
	}

	rows := make([]domain.SalesRow, 0, len(raw))
	for _, r := range raw {
		account, sku := strings.TrimSpace(r.Account.String), strings.TrimSpace(r.SKU.String)
		if account == "" || sku == "" {
			continue
		}
		row := domain.SalesRow{
			Week:     week,
			Account:  account,
			SKU:      sku,
			Units:    r.Units.Float64,
			AvgPrice: r.AvgPrice.Float64,
		}
		if r.Week.Valid {
			if w := domain.Week(r.Week.Int64); w.Validate() == nil {
				row.Week = w
			}
		}
		if r.Availability.Valid {
			row.Availability = domain.Ptr(r.Availability.Float64)
		}
		rows = append(rows, row)
	}

	log.Info().Int("week", int(week)).Str("node", node).Int("rows", len(rows)).Msg("sales extract fetched")
	return rows, nil
}

func (s *MySQLSalesSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLSalesSource) Close() error {
	return s.db.Close()
}
