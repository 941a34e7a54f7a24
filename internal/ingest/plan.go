package ingest

import (
	"fmt"
	"io"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// PlanSchema describes a demand plan upload.
var PlanSchema = Schema{
	Title: " para Plan de Demanda",
	Columns: []Column{
		{Name: colAccount, Label: "cuenta/cliente", Patterns: []string{"cuenta", "cliente"}, Required: true},
		{Name: colSKU, Label: "sku/seller_sku", Patterns: []string{"sku", "seller_sku", "seller sku"}, Required: true},
		{Name: colWeek, Label: "semana", Patterns: []string{"semana", "week"}},
		{Name: colNode, Label: "nodo", Patterns: []string{"nodo", "canal"}},
		{Name: colForecast, Label: "pronostico", Patterns: []string{"pronostico", "forecast"}},
		{Name: colPlanned, Label: "plan_demanda", Patterns: []string{"plan", "demanda"}},
		{Name: colListPrice, Label: "pvp_pd", Patterns: []string{"pvp", "precio"}},
		{Name: colAction, Label: "accion", Patterns: []string{"accion"}},
		{Name: colNotes, Label: "observaciones", Patterns: []string{"obs", "nota", "observ"}},
	},
	Format:  "Semana, Nodo, Cuenta, Sku_Seller, Pronostico, Plan_demanda, PVP_PD, Accion, Observaciones",
	Example: "202549, Mercadolibre_Chile, Beiersdorf, SKU123, 100, 95, 9990, Mantener, Sin observaciones",
}

// ParsePlan reads a plan upload. Week and node fall back to the request's
// values when the file does not carry them.
func ParsePlan(r io.Reader, filename string, week domain.Week, node string) ([]domain.PlanRow, error) {
	t, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	cols, err := PlanSchema.Match(filename, t.Header)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.PlanRow, 0, t.Len())
	for i, rec := range t.Rows {
		account, sku := cols.Get(rec, colAccount), cols.Get(rec, colSKU)
		if account == "" || sku == "" {
			continue
		}
		row := domain.PlanRow{
			Line:          t.Lines[i],
			Week:          week,
			Node:          node,
			Account:       account,
			SKU:           sku,
			Forecast:      domain.Ptr(NumberOr(cols.Get(rec, colForecast), 0)),
			PlannedDemand: domain.Ptr(NumberOr(cols.Get(rec, colPlanned), 0)),
			ListPrice:     domain.Ptr(NumberOr(cols.Get(rec, colListPrice), 0)),
			Action:        optionalText(cols, rec, colAction),
			Notes:         optionalText(cols, rec, colNotes),
		}
		if w, err := domain.ParseWeek(cols.Get(rec, colWeek)); err == nil {
			row.Week = w
		}
		if n := cols.Get(rec, colNode); n != "" {
			row.Node = n
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, domain.NewPassError(domain.ErrorTypeNoValidRecords,
			fmt.Sprintf("No se encontraron registros válidos en %d filas: todas sin cuenta o SKU.", t.Len()))
	}
	return rows, nil
}

func optionalText(cols ColumnMap, rec []string, name string) *string {
	if v := cols.Get(rec, name); v != "" {
		return &v
	}
	return nil
}
