package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// ScenarioHeaders are the exact (case-insensitive) catalog columns.
var ScenarioHeaders = []string{"Nodo", "Cuenta", "Sku_Seller", "Escenario", "Cantidad_Venta", "Precio_Venta"}

// ScenarioFile is a parsed catalog upload. LineErrors describe rejected rows.
type ScenarioFile struct {
	Entries    []domain.ScenarioEntry
	LineErrors []string
}

// ParseScenarios reads a scenario catalog. Amounts use Chilean formatting.
func ParseScenarios(r io.Reader) (*ScenarioFile, error) {
	t, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}

	idx := map[string]int{}
	var missing []string
	for _, want := range ScenarioHeaders {
		found := -1
		for i, h := range t.Header {
			if strings.EqualFold(h, want) {
				found = i
				break
			}
		}
		if found < 0 {
			missing = append(missing, want)
			continue
		}
		idx[want] = found
	}
	if len(missing) > 0 {
		return nil, domain.NewPassError(domain.ErrorTypeInvalidStruct,
			fmt.Sprintf("Columnas faltantes: %s\n\nColumnas requeridas:\n%s\n\nColumnas encontradas:\n%s",
				strings.Join(missing, ", "), strings.Join(ScenarioHeaders, ", "), strings.Join(t.Header, ", "))).
			WithDetail("headers", t.Header).
			WithDetail("missing", missing)
	}

	cell := func(rec []string, name string) string {
		i := idx[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	out := &ScenarioFile{}
	for i, rec := range t.Rows {
		line := t.Lines[i]
		node, account, sku := cell(rec, "Nodo"), cell(rec, "Cuenta"), cell(rec, "Sku_Seller")
		scenario := cell(rec, "Escenario")
		qty, price := ParseAmount(cell(rec, "Cantidad_Venta")), ParseAmount(cell(rec, "Precio_Venta"))

		switch {
		case node == "" || account == "" || sku == "":
			out.LineErrors = append(out.LineErrors, fmt.Sprintf("Línea %d: Nodo, Cuenta o Sku_Seller vacío", line))
		case !domain.ValidScenario(scenario):
			out.LineErrors = append(out.LineErrors, fmt.Sprintf("Línea %d: Escenario inválido %q. Valores válidos: %s",
				line, scenario, strings.Join(scenarioValues(), ", ")))
		case qty < 0 || price < 0:
			out.LineErrors = append(out.LineErrors, fmt.Sprintf("Línea %d: Cantidad o Precio negativos", line))
		default:
			out.Entries = append(out.Entries, domain.ScenarioEntry{
				Node:     node,
				Account:  account,
				SKU:      sku,
				Scenario: domain.ScenarioName(scenario),
				Quantity: qty,
				Price:    price,
			})
		}
	}

	if len(out.Entries) == 0 {
		shown := out.LineErrors
		if len(shown) > domain.MaxResultErrors {
			shown = shown[:domain.MaxResultErrors]
		}
		return nil, domain.NewPassError(domain.ErrorTypeNoValidRecords,
			"No se encontraron registros válidos.\n\nErrores:\n"+strings.Join(shown, "\n")).
			WithDetail("lineErrors", shown)
	}
	return out, nil
}

func scenarioValues() []string {
	out := make([]string, len(domain.CatalogScenarios))
	for i, s := range domain.CatalogScenarios {
		out[i] = string(s.Value)
	}
	return out
}
