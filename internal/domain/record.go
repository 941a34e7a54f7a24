// internal/domain/record.go
package domain

import (
	"math"
	"time"
)

// DemandRecord is one row of plan_demanda, unique per (week, node, account, sku).
// Numeric columns are nullable in the store, so they are pointers here.
type DemandRecord struct {
	ID      int64  `json:"id" db:"id"`
	Week    Week   `json:"week" db:"week"`
	Node    string `json:"node" db:"node"`
	Account string `json:"account" db:"account"`
	SKU     string `json:"sku" db:"sku"`

	// Planning inputs
	Forecast      *float64 `json:"forecast" db:"forecast"`
	PlannedDemand *float64 `json:"planned_demand" db:"planned_demand"`
	ListPrice     *float64 `json:"list_price" db:"list_price"`
	Action        *string  `json:"action" db:"action_tag"`
	Notes         *string  `json:"notes" db:"notes"`

	// Actuals
	ActualSales  *float64 `json:"actual_sales" db:"actual_sales"`
	AvgPrice     *float64 `json:"avg_price" db:"avg_price"`
	Availability *float64 `json:"availability" db:"availability"`

	// Derived by the reconciliation passes
	Error                  *float64 `json:"error" db:"error"`
	ErrorAbs               *float64 `json:"error_abs" db:"error_abs"`
	LostSaleValuation      *float64 `json:"lost_sale_valuation" db:"lost_sale_valuation"`
	StartingStock          *float64 `json:"starting_stock" db:"starting_stock"`
	LostSaleStockUnits     *float64 `json:"lost_sale_stock_units" db:"lost_sale_stock_units"`
	LostSaleStockValuation *float64 `json:"lost_sale_stock_valuation" db:"lost_sale_stock_valuation"`
	FillRate               *float64 `json:"fill_rate" db:"fill_rate"`

	// Present in the table but not populated by the passes
	LastPODate          *time.Time `json:"last_po_date" db:"last_po_date"`
	FillRateLoss        *float64   `json:"fill_rate_loss" db:"fill_rate_loss"`
	Delisting           *string    `json:"delisting" db:"delisting"`
	DelistingLoss       *float64   `json:"delisting_loss" db:"delisting_loss"`
	PriceVariationPrev  *float64   `json:"price_variation_prev" db:"price_variation_prev"`
	OverSalePrev        *float64   `json:"over_sale_prev" db:"over_sale_prev"`
	StockWeek1          *float64   `json:"stock_week_1" db:"stock_week_1"`
	OverSalePrev2       *float64   `json:"over_sale_prev_2" db:"over_sale_prev_2"`
	OverSaleLoss        *float64   `json:"over_sale_loss" db:"over_sale_loss"`
	LostSaleUnexplained *float64   `json:"lost_sale_unexplained" db:"lost_sale_unexplained"`
	OverSaleValuation   *float64   `json:"over_sale_valuation" db:"over_sale_valuation"`
	FillRateValuation   *float64   `json:"fill_rate_valuation" db:"fill_rate_valuation"`
	DelistingValuation  *float64   `json:"delisting_valuation" db:"delisting_valuation"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SalesKey identifies a record inside a cohort for the sales pass.
func (r *DemandRecord) SalesKey() string {
	return SalesKey(r.Account, r.SKU)
}

// SalesKey builds the (account, sku) lookup key.
func SalesKey(account, sku string) string {
	return account + "|" + sku
}

// Float dereferences a nullable numeric column, treating null and
// non-finite values as zero.
func Float(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Str dereferences a nullable text column.
func Str(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
