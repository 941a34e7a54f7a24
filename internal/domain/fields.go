package domain

import (
	"fmt"
	"sort"
	"time"
)

// Field names a patchable column of plan_demanda.
type Field string

const (
	FieldForecast               Field = "forecast"
	FieldPlannedDemand          Field = "planned_demand"
	FieldListPrice              Field = "list_price"
	FieldAction                 Field = "action_tag"
	FieldNotes                  Field = "notes"
	FieldActualSales            Field = "actual_sales"
	FieldAvgPrice               Field = "avg_price"
	FieldAvailability           Field = "availability"
	FieldError                  Field = "error"
	FieldErrorAbs               Field = "error_abs"
	FieldLostSaleValuation      Field = "lost_sale_valuation"
	FieldStartingStock          Field = "starting_stock"
	FieldLostSaleStockUnits     Field = "lost_sale_stock_units"
	FieldLostSaleStockValuation Field = "lost_sale_stock_valuation"
	FieldFillRate               Field = "fill_rate"
)

// numericFields maps every nullable numeric column to its accessor.
var numericFields = map[Field]func(r *DemandRecord) **float64{
	FieldForecast:               func(r *DemandRecord) **float64 { return &r.Forecast },
	FieldPlannedDemand:          func(r *DemandRecord) **float64 { return &r.PlannedDemand },
	FieldListPrice:              func(r *DemandRecord) **float64 { return &r.ListPrice },
	FieldActualSales:            func(r *DemandRecord) **float64 { return &r.ActualSales },
	FieldAvgPrice:               func(r *DemandRecord) **float64 { return &r.AvgPrice },
	FieldAvailability:           func(r *DemandRecord) **float64 { return &r.Availability },
	FieldError:                  func(r *DemandRecord) **float64 { return &r.Error },
	FieldErrorAbs:               func(r *DemandRecord) **float64 { return &r.ErrorAbs },
	FieldLostSaleValuation:      func(r *DemandRecord) **float64 { return &r.LostSaleValuation },
	FieldStartingStock:          func(r *DemandRecord) **float64 { return &r.StartingStock },
	FieldLostSaleStockUnits:     func(r *DemandRecord) **float64 { return &r.LostSaleStockUnits },
	FieldLostSaleStockValuation: func(r *DemandRecord) **float64 { return &r.LostSaleStockValuation },
	FieldFillRate:               func(r *DemandRecord) **float64 { return &r.FillRate },
}

var textFields = map[Field]func(r *DemandRecord) **string{
	FieldAction: func(r *DemandRecord) **string { return &r.Action },
	FieldNotes:  func(r *DemandRecord) **string { return &r.Notes },
}

// Known reports whether f is a patchable column.
func (f Field) Known() bool {
	_, num := numericFields[f]
	_, txt := textFields[f]
	return num || txt
}

// Numeric returns the current value of a numeric column (nil when null or unknown).
func (r *DemandRecord) Numeric(f Field) *float64 {
	acc, ok := numericFields[f]
	if !ok {
		return nil
	}
	return *acc(r)
}

// FieldSet is a group of numeric columns sharing a declared default.
type FieldSet struct {
	Fields  []Field
	Default float64
}

// DerivedFields are the columns that must never stay null once a pass
// has finished over a cohort.
var DerivedFields = FieldSet{
	Fields: []Field{
		FieldLostSaleStockUnits,
		FieldLostSaleStockValuation,
		FieldStartingStock,
		FieldError,
		FieldErrorAbs,
		FieldLostSaleValuation,
	},
	Default: 0,
}

// NullPatch returns a patch writing the default into exactly the fields of
// the set that are null on r. An empty patch means nothing to do.
func (s FieldSet) NullPatch(r *DemandRecord) Patch {
	patch := Patch{}
	for _, f := range s.Fields {
		if r.Numeric(f) == nil {
			patch[f] = s.Default
		}
	}
	return patch
}

// Patch is a set of column assignments. Values are float64, string or nil.
type Patch map[Field]any

// Fields returns the patched columns in a stable order.
func (p Patch) Fields() []Field {
	fields := make([]Field, 0, len(p))
	for f := range p {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// Validate rejects unknown columns and values of the wrong kind.
func (p Patch) Validate() error {
	for f, v := range p {
		if _, ok := numericFields[f]; ok {
			switch v.(type) {
			case nil, float64:
				continue
			default:
				return fmt.Errorf("field %s expects a number, got %T", f, v)
			}
		}
		if _, ok := textFields[f]; ok {
			switch v.(type) {
			case nil, string:
				continue
			default:
				return fmt.Errorf("field %s expects text, got %T", f, v)
			}
		}
		return fmt.Errorf("unknown field %q", f)
	}
	return nil
}

// Apply writes the patch into r and stamps updated_at.
func (p Patch) Apply(r *DemandRecord, now time.Time) {
	for f, v := range p {
		if acc, ok := numericFields[f]; ok {
			if n, isNum := v.(float64); isNum {
				*acc(r) = Ptr(n)
			} else {
				*acc(r) = nil
			}
			continue
		}
		if acc, ok := textFields[f]; ok {
			if s, isStr := v.(string); isStr {
				*acc(r) = Ptr(s)
			} else {
				*acc(r) = nil
			}
		}
	}
	r.UpdatedAt = now
}
