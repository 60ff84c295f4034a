package sulpher

// seedPlan is the outcome of planning: which pattern element (by index)
// to seed from, and whether that choice came from a WHERE equality on the
// element's variable (the most selective case: seedCandidates still scans
// every node of the element's type, but keeps only those whose field
// equals the value).
type seedPlan struct {
	elementIdx int
	equalityValue any
	equalityField string
	hasEquality   bool
}

// planSeed picks the seed element for pattern: the one most constrained
// by a WHERE equality on its variable, else the one with a literal
// type + property constraint, else the first pattern element.
func planSeed(pattern Pattern, where Expr) seedPlan {
	eqByVar := collectEqualities(where)

	for i, el := range pattern.Elements {
		if el.Var == "" {
			continue
		}
		if eq, ok := eqByVar[el.Var]; ok {
			return seedPlan{elementIdx: i, hasEquality: true, equalityField: eq.field, equalityValue: eq.value}
		}
	}
	for i, el := range pattern.Elements {
		if el.TypeName != "" && len(el.Props) > 0 {
			return seedPlan{elementIdx: i}
		}
	}
	return seedPlan{elementIdx: 0}
}

type equality struct {
	field string
	value any
}

// collectEqualities flattens the top-level AND conjuncts of where into a
// var -> (field, value) map of equality comparisons, ignoring OR/NOT
// sub-expressions (those can't be used to narrow a single seed set).
func collectEqualities(where Expr) map[string]equality {
	out := make(map[string]equality)
	var walk func(e Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *And:
			walk(n.Left)
			walk(n.Right)
		case *Comparison:
			if n.Op == OpEq {
				if _, exists := out[n.Var]; !exists {
					out[n.Var] = equality{field: n.Field, value: n.Value}
				}
			}
		}
	}
	if where != nil {
		walk(where)
	}
	return out
}
