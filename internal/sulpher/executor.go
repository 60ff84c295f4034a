package sulpher

import (
	"fmt"

	"github.com/ha1tch/rserv/internal/graph"
)

// DocumentLookup resolves a graph node's document fields, letting the
// executor evaluate WHERE predicates and projections without importing
// the document store (avoids a sulpher -> store import cycle, since store
// will eventually hand queries to this package's Execute via the job
// manager).
type DocumentLookup func(node graph.NodeRef) (map[string]any, bool)

// Executor runs a parsed Query against an edge index and a document
// lookup, through a five-step pipeline: seed, extend, filter, project,
// order+limit.
type Executor struct {
	index    graph.Index
	lookup   DocumentLookup
	maxDepth int
}

// NewExecutor builds an Executor. maxDepth bounds unbounded variable-length
// edges (`*..`) and is overridable per request; defaults to 10.
func NewExecutor(index graph.Index, lookup DocumentLookup, maxDepth int) *Executor {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return &Executor{index: index, lookup: lookup, maxDepth: maxDepth}
}

// Result is the executor's output: the projected column names (in
// RETURN order) and the result rows, keyed by each column's rendered
// projection text.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

type binding map[string]graph.NodeRef

func (b binding) clone() binding {
	out := make(binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// elementKey returns the variable name to bind a pattern element under —
// a synthetic key for anonymous elements so traversal bookkeeping still
// works without leaking the key into a projection.
func elementKey(el Element, idx int) string {
	if el.Var != "" {
		return el.Var
	}
	return fmt.Sprintf("_e%d", idx)
}

// ExecuteWithMaxDepth runs q to completion with maxDepth overriding the
// executor's configured bound for this call only (maxDepth <= 0 leaves
// the executor's own bound in place). Used to honour a per-request
// max_depth that differs from the value the executor was built with.
func (e *Executor) ExecuteWithMaxDepth(q *Query, maxDepth int) (*Result, error) {
	if maxDepth <= 0 {
		return e.Execute(q)
	}
	scoped := *e
	scoped.maxDepth = maxDepth
	return scoped.Execute(q)
}

// Execute runs q to completion.
func (e *Executor) Execute(q *Query) (*Result, error) {
	bindings := []binding{{}}

	for _, clause := range q.Clauses {
		next, err := e.matchClause(clause, bindings)
		if err != nil {
			return nil, err
		}
		bindings = next
	}

	rows, err := e.project(q, bindings)
	if err != nil {
		return nil, err
	}

	applyOrderBy(rows, q.OrderBy)
	if q.Limit != nil && len(rows) > *q.Limit {
		rows = rows[:*q.Limit]
	}

	cols := make([]string, 0, len(q.Return))
	for _, p := range q.Return {
		cols = append(cols, p.Alias)
	}
	return &Result{Columns: cols, Rows: rows}, nil
}

// matchClause extends every existing binding (the cross-clause join
// carried in `prior`) by clause's pattern, applying clause.Where as a
// final filter once every variable it references is bound.
func (e *Executor) matchClause(clause MatchClause, prior []binding) ([]binding, error) {
	var out []binding
	for _, anchors := range prior {
		matched, err := e.matchPattern(clause.Pattern, anchors, clause.Where)
		if err != nil {
			return nil, err
		}
		for _, b := range matched {
			ok, err := e.evalBool(clause.Where, b)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

// matchPattern produces every binding of pattern's elements, reusing any
// variable already present in anchors as a join point rather than
// reseeding it from scratch.
func (e *Executor) matchPattern(pattern Pattern, anchors binding, where Expr) ([]binding, error) {
	seedIdx := -1
	for i, el := range pattern.Elements {
		key := elementKey(el, i)
		if _, ok := anchors[key]; ok {
			seedIdx = i
			break
		}
	}

	var seeds []binding
	if seedIdx >= 0 {
		seeds = []binding{anchors.clone()}
	} else {
		plan := planSeed(pattern, where)
		seedIdx = plan.elementIdx
		el := pattern.Elements[seedIdx]
		key := elementKey(el, seedIdx)

		candidates := e.seedCandidates(el, plan)
		seeds = make([]binding, 0, len(candidates))
		for _, n := range candidates {
			b := anchors.clone()
			b[key] = n
			seeds = append(seeds, b)
		}
	}

	// Extend forward (seedIdx -> end), then backward (seedIdx -> start).
	frontier := seeds
	for i := seedIdx; i < len(pattern.Edges); i++ {
		var err error
		frontier, err = e.extend(frontier, pattern.Elements[i], pattern.Edges[i], pattern.Elements[i+1], i+1, true)
		if err != nil {
			return nil, err
		}
	}
	for i := seedIdx - 1; i >= 0; i-- {
		var err error
		frontier, err = e.extend(frontier, pattern.Elements[i+1], pattern.Edges[i], pattern.Elements[i], i, false)
		if err != nil {
			return nil, err
		}
	}
	return frontier, nil
}

// seedCandidates enumerates nodes matching el's type/props constraint,
// narrowed by an equality the planner found in WHERE if any.
func (e *Executor) seedCandidates(el Element, plan seedPlan) []graph.NodeRef {
	var pool []graph.NodeRef
	if el.TypeName != "" {
		pool = e.nodesMatchingType(el.TypeName)
	} else {
		pool = e.index.AllNodes()
	}

	var out []graph.NodeRef
	for _, n := range pool {
		if !e.matchesProps(n, el.Props) {
			continue
		}
		if plan.hasEquality {
			val, ok := e.lookup(n)
			if !ok {
				continue
			}
			if !valuesMatch(val[plan.equalityField], plan.equalityValue) {
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

func (e *Executor) nodesMatchingType(typeName string) []graph.NodeRef {
	var out []graph.NodeRef
	for _, n := range e.index.AllNodes() {
		if graph.MatchesEntity(typeName, n.Entity) {
			out = append(out, n)
		}
	}
	return out
}

func (e *Executor) matchesProps(n graph.NodeRef, props map[string]any) bool {
	if len(props) == 0 {
		return true
	}
	doc, ok := e.lookup(n)
	if !ok {
		return false
	}
	for field, want := range props {
		if !valuesMatch(doc[field], want) {
			return false
		}
	}
	return true
}

// extend grows frontier by one pattern edge: for each existing binding it
// looks up the already-bound `fromEl` node's adjacency, filters by edge
// label(s) and variable-length range, and binds `toEl` to every
// qualifying neighbour — forward direction reads outbound adjacency,
// backward direction reads inbound adjacency.
func (e *Executor) extend(frontier []binding, fromEl Element, edge EdgeSpec, toEl Element, toIdx int, forward bool) ([]binding, error) {
	var out []binding
	for _, b := range frontier {
		fromKey := elementOwnerKey(b, fromEl)
		fromNode, ok := b[fromKey]
		if !ok {
			continue
		}
		neighbours := e.reachable(fromNode, edge, forward)
		toKey := elementKey(toEl, toIdx)
		for _, n := range neighbours {
			if toEl.TypeName != "" && !graph.MatchesEntity(toEl.TypeName, n.Entity) {
				continue
			}
			if !e.matchesProps(n, toEl.Props) {
				continue
			}
			if existing, bound := b[toKey]; bound && existing != n {
				continue
			}
			nb := b.clone()
			nb[toKey] = n
			out = append(out, nb)
		}
	}
	return out, nil
}

// elementOwnerKey resolves the binding key for an element that is already
// known to be bound (its Var if named, else the synthetic key matching
// whatever index it was bound under — callers always pass elements that
// were bound earlier in the same traversal, so Var is reliable here).
func elementOwnerKey(b binding, el Element) string {
	if el.Var != "" {
		return el.Var
	}
	// Anonymous intermediate element: find the one synthetic key present
	// in the binding whose node has already been matched; since patterns
	// are linear chains this is unambiguous by construction.
	for k := range b {
		if len(k) > 2 && k[:2] == "_e" {
			return k
		}
	}
	return ""
}

// reachable returns the distinct nodes reachable from node along edge,
// honouring its label set and *n..m variable-length range, bounded by the
// executor's maxDepth. A range whose lower bound is 0 (`*0..k`) includes
// node itself as the zero-hop match. Edges carry no properties, so an
// edge spec with a non-empty property map matches no edge.
func (e *Executor) reachable(node graph.NodeRef, edge EdgeSpec, forward bool) []graph.NodeRef {
	min, max := edge.Min, edge.Max
	if max < 0 || max > e.maxDepth {
		max = e.maxDepth
	}

	type frame struct {
		node  graph.NodeRef
		depth int
	}
	visited := map[graph.NodeRef]bool{node: true}
	var result []graph.NodeRef
	if min <= 0 {
		result = append(result, node)
	}
	queue := []frame{{node: node, depth: 0}}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if f.depth >= max {
			continue
		}
		adj := e.adjacency(f.node, forward)
		for _, a := range adj {
			if !labelMatches(edge.Labels, a.Label) || len(edge.Props) > 0 {
				continue
			}
			depth := f.depth + 1
			if depth >= min && depth <= max {
				if !visited[a.Node] {
					result = append(result, a.Node)
				}
			}
			if !visited[a.Node] {
				visited[a.Node] = true
				queue = append(queue, frame{node: a.Node, depth: depth})
			}
		}
	}
	return result
}

func (e *Executor) adjacency(node graph.NodeRef, forward bool) []graph.Adjacency {
	if forward {
		return e.index.Outbound(node)
	}
	return e.index.Inbound(node)
}

func labelMatches(labels []string, label string) bool {
	if len(labels) == 0 {
		return true
	}
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func valuesMatch(a, b any) bool {
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// evalBool evaluates where against a fully-bound binding; a nil
// expression is vacuously true.
func (e *Executor) evalBool(where Expr, b binding) (bool, error) {
	if where == nil {
		return true, nil
	}
	v, err := e.eval(where, b)
	if err != nil {
		return false, err
	}
	return v, nil
}

func (e *Executor) eval(expr Expr, b binding) (bool, error) {
	switch n := expr.(type) {
	case *And:
		l, err := e.eval(n.Left, b)
		if err != nil || !l {
			return false, err
		}
		return e.eval(n.Right, b)
	case *Or:
		l, err := e.eval(n.Left, b)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return e.eval(n.Right, b)
	case *Not:
		v, err := e.eval(n.Inner, b)
		if err != nil {
			return false, err
		}
		return !v, nil
	case *PropertyExists:
		node, ok := b[n.Var]
		if !ok {
			return false, runtimeErr("unbound variable %q in WHERE", n.Var)
		}
		doc, ok := e.lookup(node)
		if !ok {
			return false, nil
		}
		val, present := doc[n.Field]
		return present && val != nil, nil
	case *Comparison:
		node, ok := b[n.Var]
		if !ok {
			return false, runtimeErr("unbound variable %q in WHERE", n.Var)
		}
		doc, ok := e.lookup(node)
		if !ok {
			return false, nil
		}
		return compareValues(doc[n.Field], n.Op, n.Value), nil
	case *NotOutbound:
		node, ok := b[n.Var]
		if !ok {
			return false, runtimeErr("unbound variable %q in WHERE", n.Var)
		}
		for _, a := range e.index.Outbound(node) {
			if n.Label == "" || a.Label == n.Label {
				return false, nil
			}
		}
		return true, nil
	}
	return false, runtimeErr("unsupported expression node")
}

func compareOrdered[T ~float64](a, b T, op CompareOp) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNeq:
		return a != b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	}
	return false
}

func compareValues(a any, op CompareOp, b any) bool {
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			return compareOrdered(af, bf, op)
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case OpEq:
			return as == bs
		case OpNeq:
			return as != bs
		}
		return compareOrdered(stringCompareKey(as), stringCompareKey(bs), op)
	}
	switch op {
	case OpEq:
		return a == b
	case OpNeq:
		return a != b
	}
	return false
}

// stringCompareKey maps a string's lexicographic position onto a float
// good enough for ordering comparisons via compareOrdered's shared code
// path (equality/inequality still short-circuit to exact string compare
// first, so this is only reached for </<=/>/>=).
func stringCompareKey(s string) float64 {
	var n float64
	for i := 0; i < len(s) && i < 8; i++ {
		n = n*256 + float64(s[i])
	}
	return n
}

