package domain

// RecordFilter selects plan_demanda rows. Zero values mean "any".
type RecordFilter struct {
	ID      int64
	Week    Week
	Weeks   []Week
	Node    string
	Account string
	SKU     string

	// AnyNull matches rows where at least one of the fields is null.
	AnyNull []Field
	// NotNull matches rows where every one of the fields is set.
	NotNull []Field
}

// CohortFilter selects every record of a (week, node) cohort.
func CohortFilter(week Week, node string) RecordFilter {
	return RecordFilter{Week: week, Node: node}
}

// Matches evaluates the filter against a record in memory.
func (f RecordFilter) Matches(r *DemandRecord) bool {
	if f.ID != 0 && r.ID != f.ID {
		return false
	}
	if f.Week != 0 && r.Week != f.Week {
		return false
	}
	if len(f.Weeks) > 0 {
		found := false
		for _, w := range f.Weeks {
			if r.Week == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Node != "" && r.Node != f.Node {
		return false
	}
	if f.Account != "" && r.Account != f.Account {
		return false
	}
	if f.SKU != "" && r.SKU != f.SKU {
		return false
	}
	if len(f.AnyNull) > 0 {
		anyNull := false
		for _, field := range f.AnyNull {
			if r.Numeric(field) == nil {
				anyNull = true
				break
			}
		}
		if !anyNull {
			return false
		}
	}
	for _, field := range f.NotNull {
		if r.Numeric(field) == nil {
			return false
		}
	}
	return true
}
