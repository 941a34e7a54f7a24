package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// MultipleFields is the audit field name used when one change touches
// more than one column.
const MultipleFields = "multiple"

// PlanChange is a manual edit of one (node, account, sku, week) record.
// Nil fields are left untouched.
type PlanChange struct {
	Node            string   `json:"node" binding:"required"`
	Account         string   `json:"account" binding:"required"`
	SKU             string   `json:"sku" binding:"required"`
	Week            Week     `json:"week" binding:"required"`
	PlannedDemand   *float64 `json:"plannedDemand,omitempty"`
	ListPrice       *float64 `json:"listPrice,omitempty"`
	Action          *string  `json:"action,omitempty"`
	AppliedScenario string   `json:"appliedScenario,omitempty"`
}

// Valid reports whether the identity of the change is complete.
func (c PlanChange) Valid() bool {
	return c.Node != "" && c.Account != "" && c.SKU != "" && c.Week != 0
}

// Empty reports whether the change patches nothing.
func (c PlanChange) Empty() bool {
	return c.PlannedDemand == nil && c.ListPrice == nil && c.Action == nil
}

// Patch returns the column assignments of the change.
func (c PlanChange) Patch() Patch {
	p := Patch{}
	if c.PlannedDemand != nil {
		p[FieldPlannedDemand] = *c.PlannedDemand
	}
	if c.ListPrice != nil {
		p[FieldListPrice] = *c.ListPrice
	}
	if c.Action != nil {
		p[FieldAction] = *c.Action
	}
	return p
}

// ValueChange is the old and new value of one audited column.
type ValueChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// AuditEntry is one row of plan_change_history.
type AuditEntry struct {
	ID              int64     `json:"id" db:"id"`
	Node            string    `json:"node" db:"node"`
	Account         string    `json:"account" db:"account"`
	SKU             string    `json:"sku" db:"sku"`
	Week            Week      `json:"week" db:"week"`
	Field           string    `json:"field" db:"field"`
	OldValue        *string   `json:"oldValue,omitempty" db:"old_value"`
	NewValue        *string   `json:"newValue,omitempty" db:"new_value"`
	Details         *string   `json:"details,omitempty" db:"details"`
	AppliedScenario string    `json:"appliedScenario" db:"applied_scenario"`
	User            string    `json:"user" db:"user_name"`
	IPAddress       *string   `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent       *string   `json:"userAgent,omitempty" db:"user_agent"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// NewAuditEntry describes change c applied over the previous state of the
// record (nil when the record did not exist).
func NewAuditEntry(c PlanChange, before *DemandRecord, user string) (AuditEntry, error) {
	changes := map[string]ValueChange{}
	if c.PlannedDemand != nil {
		changes[string(FieldPlannedDemand)] = ValueChange{Old: previousNumber(before, FieldPlannedDemand), New: *c.PlannedDemand}
	}
	if c.ListPrice != nil {
		changes[string(FieldListPrice)] = ValueChange{Old: previousNumber(before, FieldListPrice), New: *c.ListPrice}
	}
	if c.Action != nil {
		var old any
		if before != nil && before.Action != nil {
			old = *before.Action
		}
		changes[string(FieldAction)] = ValueChange{Old: old, New: *c.Action}
	}

	entry := AuditEntry{
		Node:            c.Node,
		Account:         c.Account,
		SKU:             c.SKU,
		Week:            c.Week,
		AppliedScenario: c.AppliedScenario,
		User:            user,
	}
	if entry.AppliedScenario == "" {
		entry.AppliedScenario = string(ScenarioManualOverride)
	}

	if len(changes) == 1 {
		for field, vc := range changes {
			entry.Field = field
			entry.OldValue = Ptr(auditText(vc.Old))
			entry.NewValue = Ptr(auditText(vc.New))
		}
		return entry, nil
	}

	entry.Field = MultipleFields
	raw, err := json.Marshal(changes)
	if err != nil {
		return AuditEntry{}, err
	}
	entry.Details = Ptr(string(raw))
	return entry, nil
}

func previousNumber(r *DemandRecord, f Field) any {
	if r == nil {
		return nil
	}
	if v := r.Numeric(f); v != nil {
		return *v
	}
	return nil
}

func auditText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		raw, _ := json.Marshal(t)
		return string(raw)
	}
}

// AppliedScenario is the most recent scenario recorded for an item in a week.
type AppliedScenario struct {
	Scenario string    `json:"escenario"`
	User     string    `json:"usuario"`
	At       time.Time `json:"fecha"`
}
