package domain

// StockSnapshot is one row of the external stock extract (stock_snapshots).
// SnapshotDate is kept as text because upstream loads use either
// YYYY-MM-DD or DD-MM-YYYY.
type StockSnapshot struct {
	SKU          string  `json:"sku" db:"sku"`
	Stock        float64 `json:"stock" db:"stock"`
	Client       string  `json:"client" db:"client"`
	SnapshotDate string  `json:"snapshot_date" db:"snapshot_date"`
	Country      string  `json:"country" db:"country"`
}

// StockPosition is the per-sku view built from a snapshot.
type StockPosition struct {
	Stock  float64
	Client string
}

// StockOnlyNote is written on records created for stocked skus without a plan.
const StockOnlyNote = "Producto con stock sin plan"
