package ingest

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

const (
	colAccount      = "account"
	colSKU          = "sku"
	colUnits        = "units"
	colWeek         = "week"
	colAvgPrice     = "avg_price"
	colAvailability = "availability"
	colNode         = "node"
	colForecast     = "forecast"
	colPlanned      = "planned_demand"
	colListPrice    = "list_price"
	colAction       = "action"
	colNotes        = "notes"
	colStock        = "stock"
	colDate         = "date"
	colCountry      = "country"
)

// SalesSchema describes a weekly sales extract.
var SalesSchema = Schema{
	Columns: []Column{
		{Name: colAccount, Label: "cliente/cuenta", Patterns: []string{"cliente", "cuenta"}, Required: true},
		{Name: colSKU, Label: "sku/seller_sku", Patterns: []string{"sku", "seller_sku", "seller sku"}, Required: true},
		{Name: colUnits, Label: "total_vendido/venta", Patterns: []string{"vendido", "venta", "total_vendido", "qty", "cantidad", "total"}, Required: true},
		{Name: colWeek, Label: "semana", Patterns: []string{"semana", "week"}},
		{Name: colAvgPrice, Label: "precio_promedio", Patterns: []string{"precio", "pvp", "price"}},
		{Name: colAvailability, Label: "disponibilidad", Patterns: []string{"disponibilidad", "dips"}},
	},
	Format:  "semana, cliente, seller_sku, total_vendido, precio_promedio, disponibilidad",
	Example: "202549, Beiersdorf, SKU123, 50, 9990, 85",
}

// ParseSales reads a sales extract. Rows without a week column, or with an
// unreadable one, belong to week. Rows without account or SKU are skipped.
func ParseSales(r io.Reader, filename string, week domain.Week) ([]domain.SalesRow, error) {
	t, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return SalesFromTable(t, filename, week)
}

// SalesFromTable maps an already decoded table to sales rows.
func SalesFromTable(t *Table, filename string, week domain.Week) ([]domain.SalesRow, error) {
	cols, err := SalesSchema.Match(filename, t.Header)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.SalesRow, 0, t.Len())
	skipped := 0
	for _, rec := range t.Rows {
		account, sku := cols.Get(rec, colAccount), cols.Get(rec, colSKU)
		if account == "" || sku == "" {
			skipped++
			continue
		}
		row := domain.SalesRow{
			Week:     week,
			Account:  account,
			SKU:      sku,
			Units:    NumberOr(cols.Get(rec, colUnits), 0),
			AvgPrice: NumberOr(cols.Get(rec, colAvgPrice), 0),
		}
		if w, err := domain.ParseWeek(cols.Get(rec, colWeek)); err == nil {
			row.Week = w
		}
		if v, ok := ParseNumber(cols.Get(rec, colAvailability)); ok {
			row.Availability = domain.Ptr(v)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, domain.NewPassError(domain.ErrorTypeNoValidRecords,
			fmt.Sprintf("No se encontraron registros válidos en %d filas: todas sin cliente o SKU.", t.Len()))
	}
	if skipped > 0 {
		log.Debug().Int("skipped", skipped).Str("file", filename).Msg("sales rows without account or sku")
	}
	return rows, nil
}
