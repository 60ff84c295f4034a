package sulpher

import (
	"fmt"
	"sort"
)

// project materialises q.Return against bindings, grouping by the
// non-aggregate columns when any aggregate function is present, with
// SQL-style grouping semantics. A WITH projection is kept in q.With but
// not applied: RETURN reads the MATCH bindings directly.
func (e *Executor) project(q *Query, bindings []binding) ([]map[string]any, error) {
	projections := q.Return
	hasAgg := false
	for _, p := range projections {
		if p.Agg != AggNone {
			hasAgg = true
			break
		}
	}

	if !hasAgg {
		rows := make([]map[string]any, 0, len(bindings))
		for _, b := range bindings {
			row := make(map[string]any, len(projections))
			for _, p := range projections {
				val, err := e.projectValue(p, b)
				if err != nil {
					return nil, err
				}
				row[p.Alias] = val
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	return e.projectAggregated(projections, bindings)
}

func (e *Executor) projectValue(p Projection, b binding) (any, error) {
	node, ok := b[p.Var]
	if !ok {
		return nil, runtimeErr("unbound variable %q in RETURN", p.Var)
	}
	if p.Field == "" {
		return map[string]any{"entity": node.Entity, "id": node.ID}, nil
	}
	doc, ok := e.lookup(node)
	if !ok {
		return nil, nil
	}
	return doc[p.Field], nil
}

// projectAggregated groups bindings by the query's non-aggregate
// projection columns and evaluates each aggregate per group.
func (e *Executor) projectAggregated(projections []Projection, bindings []binding) ([]map[string]any, error) {
	var groupCols, aggCols []Projection
	for _, p := range projections {
		if p.Agg == AggNone {
			groupCols = append(groupCols, p)
		} else {
			aggCols = append(aggCols, p)
		}
	}

	type group struct {
		key    string
		values map[string]any
		rows   []binding
	}
	order := []string{}
	groups := map[string]*group{}

	for _, b := range bindings {
		keyVals := make(map[string]any, len(groupCols))
		key := ""
		for _, p := range groupCols {
			v, err := e.projectValue(p, b)
			if err != nil {
				return nil, err
			}
			keyVals[p.Alias] = v
			key += fmt.Sprintf("\x1f%v", v)
		}
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, values: keyVals}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, b)
	}

	rows := make([]map[string]any, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		row := make(map[string]any, len(projections))
		for k, v := range g.values {
			row[k] = v
		}
		for _, p := range aggCols {
			val, err := e.evalAggregate(p, g.rows)
			if err != nil {
				return nil, err
			}
			row[p.Alias] = val
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (e *Executor) evalAggregate(p Projection, rows []binding) (any, error) {
	if p.Agg == AggCount && p.Field == "" {
		return countDistinctNodes(rows, p.Var, p.Distinct), nil
	}

	var nums []float64
	var raws []any
	for _, b := range rows {
		node, ok := b[p.Var]
		if !ok {
			continue
		}
		doc, ok := e.lookup(node)
		if !ok {
			continue
		}
		val, present := doc[p.Field]
		if !present || val == nil {
			continue
		}
		raws = append(raws, val)
		if n, ok := numeric(val); ok {
			nums = append(nums, n)
		}
	}

	switch p.Agg {
	case AggCount:
		if p.Distinct {
			return countDistinctValues(raws), nil
		}
		return int64(len(raws)), nil
	case AggSum:
		if len(raws) > len(nums) {
			return nil, validationErr("SUM requires numeric values for %s.%s", p.Var, p.Field)
		}
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return sum, nil
	case AggAvg:
		if len(raws) == 0 {
			return nil, nil
		}
		if len(raws) > len(nums) {
			return nil, validationErr("AVG requires numeric values for %s.%s", p.Var, p.Field)
		}
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return sum / float64(len(nums)), nil
	case AggMin, AggMax:
		if len(raws) == 0 {
			return nil, nil
		}
		return minMax(raws, p.Agg == AggMax), nil
	}
	return nil, runtimeErr("unsupported aggregate function")
}

func countDistinctNodes(rows []binding, v string, distinct bool) int64 {
	if !distinct {
		count := int64(0)
		for _, b := range rows {
			if _, ok := b[v]; ok {
				count++
			}
		}
		return count
	}
	seen := map[string]bool{}
	for _, b := range rows {
		if n, ok := b[v]; ok {
			seen[fmt.Sprintf("%s:%d", n.Entity, n.ID)] = true
		}
	}
	return int64(len(seen))
}

func countDistinctValues(raws []any) int64 {
	seen := map[string]bool{}
	for _, v := range raws {
		seen[fmt.Sprintf("%v", v)] = true
	}
	return int64(len(seen))
}

func minMax(raws []any, max bool) any {
	best := raws[0]
	bestNum, bestIsNum := numeric(best)
	for _, v := range raws[1:] {
		if n, ok := numeric(v); ok && bestIsNum {
			if (max && n > bestNum) || (!max && n < bestNum) {
				best, bestNum = v, n
			}
			continue
		}
		if s, ok := v.(string); ok {
			if bs, ok := best.(string); ok {
				if (max && s > bs) || (!max && s < bs) {
					best = v
				}
			}
		}
	}
	return best
}

// applyOrderBy sorts rows in place by q's ORDER BY keys; absent ORDER BY
// the enumeration order of bindings is left untouched.
func applyOrderBy(rows []map[string]any, order []OrderItem) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			cmp := compareAny(rows[i][o.Key], rows[j][o.Key])
			if cmp == 0 {
				continue
			}
			if o.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareAny(a, b any) int {
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}
