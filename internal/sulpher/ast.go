package sulpher

// Query is the parsed form of a Sulpher string: an optional traversal
// algorithm, one or more MATCH clauses, an optional WITH projection, a
// mandatory RETURN, and optional ORDER BY/LIMIT.
type Query struct {
	Algo       Algo
	Clauses    []MatchClause
	With       []Projection // nil if no WITH was given
	Return     []Projection
	OrderBy    []OrderItem
	Limit      *int
	Original   string
}

// Algo records the query's BFS/DFS prefix. The executor expands every
// pattern edge breadth-first whichever is given.
type Algo int

const (
	AlgoBFS Algo = iota
	AlgoDFS
)

// MatchClause is one `MATCH Pattern (WHERE Expr)?` clause.
type MatchClause struct {
	Pattern Pattern
	Where   Expr // nil if absent
}

// Pattern is a chain of node Elements connected by EdgeSpecs:
// `Element ('-' EdgeSpec '->' Element)*`.
type Pattern struct {
	Elements []Element
	Edges    []EdgeSpec // len(Edges) == len(Elements)-1
}

// Element is one `(' Var (':' TypeName)? Props? ')'` node pattern.
type Element struct {
	Var      string
	TypeName string // "" if untyped
	Props    map[string]any
}

// EdgeSpec is one `[' (Var? ':' Label ('|' Label)*)? Range? Props? ']'`
// edge pattern. Negated (`NOT (x)-[:L]->()`) edges are represented at the
// Expr level as a NotOutbound predicate, not here.
type EdgeSpec struct {
	Var    string
	Labels []string // empty means "match any label"
	Min    int       // variable-length lower bound, default 1
	Max    int       // variable-length upper bound, default 1 (no *)
	Props  map[string]any
}

// Projection is one RETURN/WITH item: either a bare variable, a
// `Var.Field` property access, or an aggregate function call.
type Projection struct {
	Var       string
	Field     string // "" for a bare variable projection
	Agg       AggFunc
	Distinct  bool
	Alias     string // defaults to the rendered projection text
}

// AggFunc identifies a RETURN/WITH aggregate function, or AggNone for a
// plain projection.
type AggFunc int

const (
	AggNone AggFunc = iota
	AggCount
	AggSum
	AggAvg
	AggMin
	AggMax
)

// OrderItem is one `ORDER BY <projection> [ASC|DESC]` entry.
type OrderItem struct {
	Key  string // the rendered projection text it sorts by
	Desc bool
}

// Expr is a boolean/comparison expression over bound variables, used by
// WHERE. Implementations: *Comparison, *And, *Or, *Not, *PropertyExists,
// *NotOutbound.
type Expr interface {
	exprNode()
}

// Comparison is `Var.Field <op> Literal` (or the reverse).
type Comparison struct {
	Var   string
	Field string
	Op    CompareOp
	Value any
}

func (*Comparison) exprNode() {}

// CompareOp enumerates the comparison operators the grammar accepts.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
)

// And is a conjunction of sub-expressions.
type And struct{ Left, Right Expr }

func (*And) exprNode() {}

// Or is a disjunction of sub-expressions.
type Or struct{ Left, Right Expr }

func (*Or) exprNode() {}

// Not negates a sub-expression.
type Not struct{ Inner Expr }

func (*Not) exprNode() {}

// PropertyExists tests whether Var.Field is present and non-null.
type PropertyExists struct {
	Var   string
	Field string
}

func (*PropertyExists) exprNode() {}

// NotOutbound is the recognised form `NOT (x)-[:L]->()`: "x has no
// outbound edge labelled L".
type NotOutbound struct {
	Var   string
	Label string // "" means any label
}

func (*NotOutbound) exprNode() {}
