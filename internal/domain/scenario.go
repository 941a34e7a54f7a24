package domain

// ScenarioName is a pricing/quantity alternative from the catalog.
type ScenarioName string

const (
	ScenarioBase           ScenarioName = "Venta"
	ScenarioSurcharge5     ScenarioName = "Sobreprecio_5"
	ScenarioSurcharge10    ScenarioName = "Sobreprecio_10"
	ScenarioDiscount5      ScenarioName = "Descuento_5"
	ScenarioDiscount10     ScenarioName = "Descuento_10"
	ScenarioSuperDiscount  ScenarioName = "Super_Descuento"
	ScenarioManualOverride ScenarioName = "Carga_Manual"
)

// ScenarioOption is a selectable scenario with its display label.
type ScenarioOption struct {
	Value ScenarioName `json:"value"`
	Label string       `json:"label"`
}

// CatalogScenarios lists the scenarios accepted in the catalog, in display order.
var CatalogScenarios = []ScenarioOption{
	{Value: ScenarioBase, Label: "Venta (Base)"},
	{Value: ScenarioSurcharge5, Label: "Sobreprecio 5%"},
	{Value: ScenarioSurcharge10, Label: "Sobreprecio 10%"},
	{Value: ScenarioDiscount5, Label: "Descuento 5%"},
	{Value: ScenarioDiscount10, Label: "Descuento 10%"},
	{Value: ScenarioSuperDiscount, Label: "Súper Descuento"},
}

// ValidScenario reports whether name is a catalog scenario.
func ValidScenario(name string) bool {
	for _, s := range CatalogScenarios {
		if string(s.Value) == name {
			return true
		}
	}
	return false
}

// ScenarioEntry is one catalog row keyed by (node, account, sku, scenario).
type ScenarioEntry struct {
	Node     string       `json:"node" db:"node"`
	Account  string       `json:"account" db:"account"`
	SKU      string       `json:"sku" db:"sku"`
	Scenario ScenarioName `json:"scenario" db:"scenario"`
	Quantity float64      `json:"quantity" db:"quantity"`
	Price    float64      `json:"price" db:"price"`
}

// ScenarioValue is the quantity/price pair of a scenario.
type ScenarioValue struct {
	Quantity float64 `json:"cantidad"`
	Price    float64 `json:"precio"`
}

// ItemKey identifies a (node, account, sku) across weeks.
func ItemKey(node, account, sku string) string {
	return node + "|" + account + "|" + sku
}
