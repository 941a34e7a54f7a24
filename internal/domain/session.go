package domain

import (
	"fmt"
	"sort"
)

// EditKey addresses one cell group of the plan grid: an item at a week
// offset from the session's reference week.
type EditKey struct {
	Node    string
	Account string
	SKU     string
	Offset  int
}

// PendingEdit holds the unsaved values for one EditKey.
type PendingEdit struct {
	PlannedDemand *float64
	ListPrice     *float64
	Action        *string
	Scenario      string
}

// EditSession collects grid edits before they are saved. It replaces
// ambient client state: the session is built explicitly and handed to the
// save operation through Changes.
type EditSession struct {
	Reference Week
	pending   map[EditKey]*PendingEdit
}

// NewEditSession starts an empty session anchored at the reference week.
func NewEditSession(reference Week) *EditSession {
	return &EditSession{Reference: reference, pending: map[EditKey]*PendingEdit{}}
}

func (s *EditSession) entry(k EditKey) *PendingEdit {
	e, ok := s.pending[k]
	if !ok {
		e = &PendingEdit{}
		s.pending[k] = e
	}
	return e
}

// SetPlannedDemand records a manual planned-demand edit.
func (s *EditSession) SetPlannedDemand(k EditKey, v float64) {
	e := s.entry(k)
	e.PlannedDemand = Ptr(v)
	e.Scenario = string(ScenarioManualOverride)
}

// SetListPrice records a manual list-price edit.
func (s *EditSession) SetListPrice(k EditKey, v float64) {
	e := s.entry(k)
	e.ListPrice = Ptr(v)
	e.Scenario = string(ScenarioManualOverride)
}

// SetAction records an action tag edit.
func (s *EditSession) SetAction(k EditKey, v string) {
	s.entry(k).Action = Ptr(v)
}

// ApplyScenario overrides planned demand and list price with the catalog
// values of the scenario.
func (s *EditSession) ApplyScenario(k EditKey, name ScenarioName, catalog map[ScenarioName]ScenarioValue) error {
	v, ok := catalog[name]
	if !ok {
		return fmt.Errorf("scenario %s not available for %s", name, ItemKey(k.Node, k.Account, k.SKU))
	}
	e := s.entry(k)
	e.PlannedDemand = Ptr(v.Quantity)
	e.ListPrice = Ptr(v.Price)
	e.Scenario = string(name)
	return nil
}

// Stage adds a change addressed by absolute week. Fields already pending
// for the same key are overwritten field by field. An explicit scenario
// name is kept; value edits without one count as manual.
func (s *EditSession) Stage(c PlanChange) EditKey {
	k := EditKey{Node: c.Node, Account: c.Account, SKU: c.SKU, Offset: c.Week.WeeksSince(s.Reference)}
	e := s.entry(k)
	if c.PlannedDemand != nil {
		e.PlannedDemand = Ptr(*c.PlannedDemand)
	}
	if c.ListPrice != nil {
		e.ListPrice = Ptr(*c.ListPrice)
	}
	if c.Action != nil {
		e.Action = Ptr(*c.Action)
	}
	switch {
	case c.AppliedScenario != "":
		e.Scenario = c.AppliedScenario
	case c.PlannedDemand != nil || c.ListPrice != nil:
		e.Scenario = string(ScenarioManualOverride)
	}
	return k
}

// Discard drops the pending edit of k.
func (s *EditSession) Discard(k EditKey) { delete(s.pending, k) }

// Len is the number of pending edits.
func (s *EditSession) Len() int { return len(s.pending) }

// Changes flushes the session into plan changes ordered by item then week.
func (s *EditSession) Changes() []PlanChange {
	keys := make([]EditKey, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		if a.Account != b.Account {
			return a.Account < b.Account
		}
		if a.SKU != b.SKU {
			return a.SKU < b.SKU
		}
		return a.Offset < b.Offset
	})

	changes := make([]PlanChange, 0, len(keys))
	for _, k := range keys {
		e := s.pending[k]
		changes = append(changes, PlanChange{
			Node:            k.Node,
			Account:         k.Account,
			SKU:             k.SKU,
			Week:            s.Reference.Add(k.Offset),
			PlannedDemand:   e.PlannedDemand,
			ListPrice:       e.ListPrice,
			Action:          e.Action,
			AppliedScenario: e.Scenario,
		})
	}
	return changes
}
