package reconcile

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

var half = decimal.NewFromFloat(0.5)

// SalesMetrics are the sales-driven derived fields of a record.
type SalesMetrics struct {
	Error     int64
	ErrorAbs  int64
	Valuation int64
}

// Patch returns the column assignments for the metrics.
func (m SalesMetrics) Patch() domain.Patch {
	return domain.Patch{
		domain.FieldError:             float64(m.Error),
		domain.FieldErrorAbs:          float64(m.ErrorAbs),
		domain.FieldLostSaleValuation: float64(m.Valuation),
	}
}

// Matches reports whether r already holds exactly these values.
func (m SalesMetrics) Matches(r *domain.DemandRecord) bool {
	return equalPtr(r.Error, m.Error) &&
		equalPtr(r.ErrorAbs, m.ErrorAbs) &&
		equalPtr(r.LostSaleValuation, m.Valuation)
}

// ComputeSalesMetrics derives error, error_abs and valuation. Sales are
// floored and demand is ceiled before subtracting, so a fraction of a unit
// never hides a shortfall or a surplus.
func ComputeSalesMetrics(actualSales, plannedDemand, avgPrice, listPrice float64) SalesMetrics {
	sales := math.Floor(finite(actualSales))
	demand := math.Ceil(finite(plannedDemand))

	errVal := int64(sales - demand)
	errAbs := errVal
	if errAbs < 0 {
		errAbs = -errAbs
	}

	valuation := decimal.NewFromInt(errVal).Mul(decimal.NewFromFloat(PriceUsed(avgPrice, listPrice)))
	return SalesMetrics{
		Error:     errVal,
		ErrorAbs:  errAbs,
		Valuation: roundHalfUp(valuation),
	}
}

// SalesMetricsOf recomputes the metrics from the persisted values of r.
func SalesMetricsOf(r *domain.DemandRecord) SalesMetrics {
	return ComputeSalesMetrics(
		domain.Float(r.ActualSales),
		domain.Float(r.PlannedDemand),
		domain.Float(r.AvgPrice),
		domain.Float(r.ListPrice),
	)
}

// StockLoss is the stock-driven lost sale of a record.
type StockLoss struct {
	LostUnits     int64
	LostValuation int64
}

// Patch returns the column assignments for the loss.
func (l StockLoss) Patch() domain.Patch {
	return domain.Patch{
		domain.FieldLostSaleStockUnits:     float64(l.LostUnits),
		domain.FieldLostSaleStockValuation: float64(l.LostValuation),
	}
}

// ComputeStockLoss counts a lost sale only when the record under-delivered
// (errorValue < 0), stock was below plan and sales consumed all the stock.
// The lost units are negative: startingStock - plannedDemand.
func ComputeStockLoss(errorValue, startingStock, plannedDemand, actualSales, avgPrice, listPrice float64) StockLoss {
	errorValue = finite(errorValue)
	startingStock = finite(startingStock)
	plannedDemand = finite(plannedDemand)
	actualSales = finite(actualSales)

	lost := 0.0
	if errorValue < 0 && startingStock < plannedDemand && actualSales >= startingStock {
		lost = -plannedDemand + startingStock
	}

	units := roundHalfUp(decimal.NewFromFloat(lost))
	valuation := decimal.NewFromInt(units).Mul(decimal.NewFromFloat(PriceUsed(avgPrice, listPrice)))
	return StockLoss{
		LostUnits:     units,
		LostValuation: roundHalfUp(valuation),
	}
}

// StockLossOf computes the loss from the persisted values of r. A null
// error counts as 0, which never triggers a loss.
func StockLossOf(r *domain.DemandRecord) StockLoss {
	return ComputeStockLoss(
		domain.Float(r.Error),
		domain.Float(r.StartingStock),
		domain.Float(r.PlannedDemand),
		domain.Float(r.ActualSales),
		domain.Float(r.AvgPrice),
		domain.Float(r.ListPrice),
	)
}

// PriceUsed is the average selling price when known, the list price otherwise.
func PriceUsed(avgPrice, listPrice float64) float64 {
	avgPrice = finite(avgPrice)
	if avgPrice > 0 {
		return avgPrice
	}
	return finite(listPrice)
}

// RelativeError is the legacy (sales - plan) / plan ratio. Without a plan
// any sale is a full miss.
func RelativeError(actualSales, plannedDemand float64) (errVal, errAbs float64) {
	actualSales = finite(actualSales)
	plannedDemand = finite(plannedDemand)
	switch {
	case plannedDemand > 0:
		errVal = (actualSales - plannedDemand) / plannedDemand
	case actualSales > 0:
		errVal = 1
	}
	return errVal, math.Abs(errVal)
}

// roundHalfUp rounds toward +Inf on ties: 2.5 -> 3, -2.5 -> -2.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Add(half).Floor().IntPart()
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func equalPtr(p *float64, v int64) bool {
	return p != nil && *p == float64(v)
}
