package domain

import (
	"fmt"
	"time"
)

const (
	// MaxResultDetails caps the per-row details returned by a pass.
	MaxResultDetails = 50
	// MaxResultErrors caps the error messages returned by a pass.
	MaxResultErrors = 10
)

// SalesRow is one parsed line of a sales extract.
type SalesRow struct {
	Week         Week
	Account      string
	SKU          string
	Units        float64
	AvgPrice     float64
	Availability *float64
}

// ItemError is a failed write of one item, keyed by its identity.
type ItemError struct {
	Key string
	Err error
}

func (e ItemError) Error() string { return fmt.Sprintf("%s: %v", e.Key, e.Err) }

// Row actions reported in pass details.
const (
	ActionUpdated  = "actualizado"
	ActionInserted = "insertado (nuevo)"
	ActionNoSale   = "sin venta (0)"
)

// RowDetail tells what a pass did with one (account, sku).
type RowDetail struct {
	SKU     string `json:"sku"`
	Account string `json:"cuenta"`
	Action  string `json:"action"`
}

// SalesResult summarises a sales reconciliation pass.
type SalesResult struct {
	Week         Week
	Node         string
	Updated      int
	Inserted     int
	NoSales      int
	Failed       int
	Recalculated int
	// Drift counts records whose final recompute differed from the value
	// written earlier in the same pass.
	Drift     int
	NullSwept int
	Duration  time.Duration
	Errors    []ItemError
	Details   []RowDetail
}

// Total is the number of records the pass wrote actual sales for.
func (r SalesResult) Total() int { return r.Updated + r.Inserted + r.NoSales }

// AddDetail appends d unless the cap is reached.
func (r *SalesResult) AddDetail(d RowDetail) {
	if len(r.Details) < MaxResultDetails {
		r.Details = append(r.Details, d)
	}
}

// ErrorMessages returns at most MaxResultErrors messages.
func (r SalesResult) ErrorMessages() []string { return errorMessages(r.Errors) }

// Message is the human-readable summary.
func (r SalesResult) Message() string {
	return fmt.Sprintf("Procesado: %d actualizados, %d nuevos insertados, %d sin venta (%s)",
		r.Updated, r.Inserted, r.NoSales, FormatSeconds(r.Duration))
}

// StockResult summarises a stock reconciliation pass.
type StockResult struct {
	Week        Week
	Node        string
	MondayDate  string
	Updated     int
	Inserted    int
	NotFound    int
	NullUpdated int
	Calculated  int
	Failed      int
	NullSwept   int
	TotalStock  int
	Duration    time.Duration
	Errors      []ItemError
}

// ErrorMessages returns at most MaxResultErrors messages.
func (r StockResult) ErrorMessages() []string { return errorMessages(r.Errors) }

// Message is the human-readable summary.
func (r StockResult) Message() string {
	return fmt.Sprintf("Stock actualizado para %s: %d con stock, %d sin stock (0), %d nuevos insertados, %d cálculos de venta perdida (%s)",
		r.MondayDate, r.Updated, r.NotFound+r.NullUpdated, r.Inserted, r.Calculated, FormatSeconds(r.Duration))
}

// SweepResult summarises a null sweep.
type SweepResult struct {
	Scanned int
	Updated int
	Failed  int
	Errors  []ItemError
}

// ErrorMessages returns at most MaxResultErrors messages.
func (r SweepResult) ErrorMessages() []string { return errorMessages(r.Errors) }

// PlanRow is one parsed line of a plan upload.
type PlanRow struct {
	Line          int
	Week          Week
	Node          string
	Account       string
	SKU           string
	Forecast      *float64
	PlannedDemand *float64
	ListPrice     *float64
	Action        *string
	Notes         *string
}

// Record converts the row into a DemandRecord for upsert.
func (p PlanRow) Record() DemandRecord {
	return DemandRecord{
		Week:          p.Week,
		Node:          p.Node,
		Account:       p.Account,
		SKU:           p.SKU,
		Forecast:      p.Forecast,
		PlannedDemand: p.PlannedDemand,
		ListPrice:     p.ListPrice,
		Action:        p.Action,
		Notes:         p.Notes,
	}
}

// PlanUploadResult summarises a plan upload.
type PlanUploadResult struct {
	Inserted int
	Updated  int
	Total    int
	Errors   []string
	Details  []RowDetail
}

// Message is the human-readable summary.
func (r PlanUploadResult) Message() string {
	return fmt.Sprintf("Plan cargado: %d registros procesados (%d nuevos, %d actualizados)", r.Total, r.Inserted, r.Updated)
}

// ScenarioUploadResult summarises a scenario catalog upload.
type ScenarioUploadResult struct {
	Inserted       int
	LineErrors     []string
	DBErrors       []string
	TotalProcessed int
}

// Message is the human-readable summary.
func (r ScenarioUploadResult) Message() string {
	if len(r.DBErrors) > 0 {
		return fmt.Sprintf("Escenarios importados: %d, con %d errores al guardar", r.Inserted, len(r.DBErrors))
	}
	return "Escenarios importados correctamente"
}

// ReportRow is one item of the plan report: five weeks of actual sales
// before the reference week and five weeks of plan from it.
type ReportRow struct {
	Node          string     `json:"node"`
	Account       string     `json:"account"`
	SKU           string     `json:"sku"`
	SalesWeeks    []Week     `json:"salesWeeks"`
	ActualSales   []*float64 `json:"actualSales"`
	PlanWeeks     []Week     `json:"planWeeks"`
	PlannedDemand []*float64 `json:"plannedDemand"`
	ListPrice2    *float64   `json:"listPrice2"`
	Action2       *string    `json:"action2"`
	ListPrice4    *float64   `json:"listPrice4"`
	Action4       *string    `json:"action4"`
}

// PlanReport is the full payload of the plan report.
type PlanReport struct {
	Week               Week                                      `json:"week"`
	Rows               []ReportRow                               `json:"data"`
	ScenariosBySKU     map[string]map[ScenarioName]ScenarioValue `json:"escenarios_por_sku"`
	AppliedScenarios   map[string]AppliedScenario                `json:"escenarios_aplicados"`
	AvailableScenarios []ScenarioOption                          `json:"escenarios_disponibles"`
	Nodes              []string                                  `json:"nodos"`
	Accounts           []string                                  `json:"cuentas"`
	TotalScenarios     int                                       `json:"totalEscenarios"`
}

// Detail is the latest state of one record as shown in the side panel.
type Detail struct {
	Node          string    `json:"node"`
	Account       string    `json:"account"`
	SKU           string    `json:"sku"`
	Week          Week      `json:"week"`
	Availability  *float64  `json:"availability"`
	StartingStock *float64  `json:"startingStock"`
	Action        *string   `json:"action"`
	PlannedDemand *float64  `json:"plannedDemand"`
	ActualSales   *float64  `json:"actualSales"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// EditResult summarises a batch of plan edits.
type EditResult struct {
	Updated int      `json:"updated"`
	Errors  []string `json:"errors"`
}

// Message is the human-readable summary.
func (r EditResult) Message() string {
	if r.Updated > 0 {
		return fmt.Sprintf("%d registros actualizados en el plan de demanda", r.Updated)
	}
	return "No se realizaron cambios"
}

// RelativeErrorResult summarises the legacy relative error calculation.
type RelativeErrorResult struct {
	Processed int
	AvgError  float64
}

// FormatSeconds renders a duration as "1.2s".
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func errorMessages(errs []ItemError) []string {
	n := len(errs)
	if n > MaxResultErrors {
		n = MaxResultErrors
	}
	out := make([]string, 0, n)
	for _, e := range errs[:n] {
		out = append(out, e.Error())
	}
	return out
}
