package sulpher

import (
	"strconv"
	"strings"
)

// Parser is a recursive-descent parser over a token stream: a struct
// with a Parse entry point that walks the grammar productions to
// produce a Query AST.
type Parser struct {
	toks []Token
	pos  int
}

// Parse tokenises and parses src into a Query, or returns a
// *apierr.Error of kind QuerySyntaxError naming the offending token and
// column.
func Parse(src string) (*Query, error) {
	lex, err := NewLexer(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: lex.tokens}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	q.Original = src
	return q, nil
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) isKeyword(word string) bool {
	t := p.cur()
	return t.Kind == Keyword && strings.EqualFold(t.Text, word)
}

func (p *Parser) expectKeyword(word string) (Token, error) {
	if !p.isKeyword(word) {
		return Token{}, syntaxErr(p.cur(), "expected %q", word)
	}
	return p.advance(), nil
}

func (p *Parser) expect(k Kind, what string) (Token, error) {
	if p.cur().Kind != k {
		return Token{}, syntaxErr(p.cur(), "expected %s", what)
	}
	return p.advance(), nil
}

func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{Algo: AlgoBFS}

	if p.isKeyword("BFS") {
		p.advance()
	} else if p.isKeyword("DFS") {
		q.Algo = AlgoDFS
		p.advance()
	}

	for p.isKeyword("MATCH") {
		clause, err := p.parseMatchClause()
		if err != nil {
			return nil, err
		}
		q.Clauses = append(q.Clauses, clause)
	}
	if len(q.Clauses) == 0 {
		return nil, syntaxErr(p.cur(), "expected MATCH")
	}

	if p.isKeyword("WITH") {
		p.advance()
		proj, err := p.parseProjectionList()
		if err != nil {
			return nil, err
		}
		q.With = proj
	}

	retTok, err := p.expectKeyword("RETURN")
	if err != nil {
		return nil, err
	}
	ret, err := p.parseProjectionList()
	if err != nil {
		return nil, err
	}
	withAgg, retAgg := false, false
	for _, w := range q.With {
		withAgg = withAgg || w.Agg != AggNone
	}
	for _, r := range ret {
		retAgg = retAgg || r.Agg != AggNone
	}
	if withAgg && retAgg {
		return nil, syntaxErr(retTok, "nested aggregates (aggregates in both WITH and RETURN) are not supported")
	}
	q.Return = ret

	if p.isKeyword("ORDER") {
		p.advance()
		if _, err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		items, err := p.parseOrderByList()
		if err != nil {
			return nil, err
		}
		q.OrderBy = items
	}

	if p.isKeyword("LIMIT") {
		p.advance()
		tok, err := p.expect(Number, "integer literal")
		if err != nil {
			return nil, err
		}
		n, convErr := strconv.Atoi(tok.Text)
		if convErr != nil {
			return nil, syntaxErr(tok, "invalid LIMIT value")
		}
		q.Limit = &n
	}

	if p.cur().Kind != EOF {
		return nil, syntaxErr(p.cur(), "unexpected trailing input")
	}
	return q, nil
}

func (p *Parser) parseMatchClause() (MatchClause, error) {
	p.advance() // MATCH
	pattern, err := p.parsePattern()
	if err != nil {
		return MatchClause{}, err
	}
	clause := MatchClause{Pattern: pattern}
	if p.isKeyword("WHERE") {
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return MatchClause{}, err
		}
		clause.Where = expr
	}
	return clause, nil
}

func (p *Parser) parsePattern() (Pattern, error) {
	var pattern Pattern
	el, err := p.parseElement()
	if err != nil {
		return pattern, err
	}
	pattern.Elements = append(pattern.Elements, el)

	for p.cur().Kind == Dash {
		p.advance()
		edge, err := p.parseEdgeSpec()
		if err != nil {
			return pattern, err
		}
		if p.cur().Kind == Arrow {
			p.advance()
		} else if p.cur().Kind == Dash {
			p.advance()
		} else {
			return pattern, syntaxErr(p.cur(), "expected '->' after edge spec")
		}
		next, err := p.parseElement()
		if err != nil {
			return pattern, err
		}
		pattern.Edges = append(pattern.Edges, edge)
		pattern.Elements = append(pattern.Elements, next)
	}
	return pattern, nil
}

func (p *Parser) parseElement() (Element, error) {
	if _, err := p.expect(LParen, "'('"); err != nil {
		return Element{}, err
	}
	var el Element
	if p.cur().Kind == Ident {
		el.Var = p.advance().Text
	}
	if p.cur().Kind == Colon {
		p.advance()
		tok, err := p.expect(Ident, "type name")
		if err != nil {
			return Element{}, err
		}
		el.TypeName = tok.Text
	}
	if p.cur().Kind == LBrace {
		props, err := p.parseProps()
		if err != nil {
			return Element{}, err
		}
		el.Props = props
	}
	if _, err := p.expect(RParen, "')'"); err != nil {
		return Element{}, err
	}
	return el, nil
}

func (p *Parser) parseEdgeSpec() (EdgeSpec, error) {
	edge := EdgeSpec{Min: 1, Max: 1}
	if p.cur().Kind != LBracket {
		return edge, nil // untyped "--" edge, any label
	}
	p.advance()

	if p.cur().Kind == Ident {
		edge.Var = p.advance().Text
	}
	if p.cur().Kind == Colon {
		p.advance()
		tok, err := p.expect(Ident, "edge label")
		if err != nil {
			return edge, err
		}
		edge.Labels = append(edge.Labels, strings.ToUpper(tok.Text))
		for p.cur().Kind == Pipe {
			p.advance()
			tok, err := p.expect(Ident, "edge label")
			if err != nil {
				return edge, err
			}
			edge.Labels = append(edge.Labels, strings.ToUpper(tok.Text))
		}
	}

	if p.cur().Kind == Star {
		p.advance()
		edge.Min, edge.Max = 1, -1 // -1 denotes "unbounded" until resolved below
		if p.cur().Kind == Number {
			n, err := strconv.Atoi(p.advance().Text)
			if err != nil {
				return edge, syntaxErr(p.cur(), "invalid range bound")
			}
			edge.Min = n
			edge.Max = n
		}
		if p.cur().Kind == DotDot {
			p.advance()
			if p.cur().Kind == Number {
				n, err := strconv.Atoi(p.advance().Text)
				if err != nil {
					return edge, syntaxErr(p.cur(), "invalid range bound")
				}
				edge.Max = n
			} else {
				edge.Max = -1
			}
		}
	}

	if p.cur().Kind == LBrace {
		props, err := p.parseProps()
		if err != nil {
			return edge, err
		}
		edge.Props = props
	}

	if _, err := p.expect(RBracket, "']'"); err != nil {
		return edge, err
	}
	return edge, nil
}

func (p *Parser) parseProps() (map[string]any, error) {
	if _, err := p.expect(LBrace, "'{'"); err != nil {
		return nil, err
	}
	props := make(map[string]any)
	if p.cur().Kind == RBrace {
		p.advance()
		return props, nil
	}
	for {
		key, err := p.expect(Ident, "property name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(Colon, "':'"); err != nil {
			return nil, err
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		props[key.Text] = val
		if p.cur().Kind == Comma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(RBrace, "'}'"); err != nil {
		return nil, err
	}
	return props, nil
}

func (p *Parser) parseLiteral() (any, error) {
	t := p.cur()
	switch t.Kind {
	case String:
		p.advance()
		return t.Text, nil
	case Number:
		p.advance()
		if strings.Contains(t.Text, ".") {
			f, err := strconv.ParseFloat(t.Text, 64)
			if err != nil {
				return nil, syntaxErr(t, "invalid number literal")
			}
			return f, nil
		}
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return nil, syntaxErr(t, "invalid number literal")
		}
		return n, nil
	case Keyword:
		switch strings.ToUpper(t.Text) {
		case "TRUE":
			p.advance()
			return true, nil
		case "FALSE":
			p.advance()
			return false, nil
		case "NULL":
			p.advance()
			return nil, nil
		}
	}
	return nil, syntaxErr(t, "expected literal value")
}

// parseExpr parses a WHERE expression: OR-level, then AND-level, then a
// unary/atomic term.
func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.isKeyword("NOT") {
		p.advance()
		// NOT (x)-[:L]->() is a dedicated form; otherwise NOT negates a
		// parenthesised/atomic sub-expression.
		if p.cur().Kind == LParen {
			save := p.pos
			if no, ok, err := p.tryParseNotOutbound(); err != nil {
				return nil, err
			} else if ok {
				return no, nil
			}
			p.pos = save
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Inner: inner}, nil
	}
	if p.cur().Kind == LParen {
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseComparison()
}

// tryParseNotOutbound attempts the `(x)-[:L]->()` shape after NOT; on any
// mismatch it reports ok=false so the caller can backtrack.
func (p *Parser) tryParseNotOutbound() (Expr, bool, error) {
	if _, err := p.expect(LParen, "'('"); err != nil {
		return nil, false, nil
	}
	varTok := p.cur()
	if varTok.Kind != Ident {
		return nil, false, nil
	}
	p.advance()
	if _, err := p.expect(RParen, "')'"); err != nil {
		return nil, false, nil
	}
	if p.cur().Kind != Dash {
		return nil, false, nil
	}
	p.advance()
	edge, err := p.parseEdgeSpec()
	if err != nil {
		return nil, false, err
	}
	if p.cur().Kind != Arrow {
		return nil, false, nil
	}
	p.advance()
	if _, err := p.expect(LParen, "'('"); err != nil {
		return nil, false, nil
	}
	if p.cur().Kind == Ident {
		p.advance()
	}
	if _, err := p.expect(RParen, "')'"); err != nil {
		return nil, false, nil
	}
	label := ""
	if len(edge.Labels) > 0 {
		label = edge.Labels[0]
	}
	return &NotOutbound{Var: varTok.Text, Label: label}, true, nil
}

func (p *Parser) parseComparison() (Expr, error) {
	varTok, err := p.expect(Ident, "variable")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(Dot, "'.'"); err != nil {
		return nil, err
	}
	fieldTok, err := p.expect(Ident, "field name")
	if err != nil {
		return nil, err
	}

	op, ok := p.tryParseCompareOp()
	if !ok {
		// bare `Var.Field` with no operator: property-exists test.
		return &PropertyExists{Var: varTok.Text, Field: fieldTok.Text}, nil
	}
	val, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &Comparison{Var: varTok.Text, Field: fieldTok.Text, Op: op, Value: val}, nil
}

func (p *Parser) tryParseCompareOp() (CompareOp, bool) {
	switch p.cur().Kind {
	case Eq:
		p.advance()
		return OpEq, true
	case Neq:
		p.advance()
		return OpNeq, true
	case Lt:
		p.advance()
		return OpLt, true
	case Lte:
		p.advance()
		return OpLte, true
	case Gt:
		p.advance()
		return OpGt, true
	case Gte:
		p.advance()
		return OpGte, true
	default:
		return 0, false
	}
}

func (p *Parser) parseProjectionList() ([]Projection, error) {
	var items []Projection
	for {
		item, err := p.parseProjection()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.cur().Kind == Comma {
			p.advance()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseProjection() (Projection, error) {
	var proj Projection

	if agg, ok := p.tryParseAggName(); ok {
		proj.Agg = agg
		p.advance()
		if _, err := p.expect(LParen, "'('"); err != nil {
			return proj, err
		}
		if p.isKeyword("DISTINCT") {
			proj.Distinct = true
			p.advance()
		}
		varTok, err := p.expect(Ident, "variable")
		if err != nil {
			return proj, err
		}
		proj.Var = varTok.Text
		if p.cur().Kind == Dot {
			p.advance()
			fieldTok, err := p.expect(Ident, "field name")
			if err != nil {
				return proj, err
			}
			proj.Field = fieldTok.Text
		}
		if _, err := p.expect(RParen, "')'"); err != nil {
			return proj, err
		}
	} else {
		varTok, err := p.expect(Ident, "variable")
		if err != nil {
			return proj, err
		}
		proj.Var = varTok.Text
		if p.cur().Kind == Dot {
			p.advance()
			fieldTok, err := p.expect(Ident, "field name")
			if err != nil {
				return proj, err
			}
			proj.Field = fieldTok.Text
		}
	}

	proj.Alias = RenderProjection(proj)
	return proj, nil
}

func (p *Parser) tryParseAggName() (AggFunc, bool) {
	if p.cur().Kind != Keyword {
		return AggNone, false
	}
	switch strings.ToUpper(p.cur().Text) {
	case "COUNT":
		return AggCount, true
	case "SUM":
		return AggSum, true
	case "AVG":
		return AggAvg, true
	case "MIN":
		return AggMin, true
	case "MAX":
		return AggMax, true
	}
	return AggNone, false
}

func (p *Parser) parseOrderByList() ([]OrderItem, error) {
	var items []OrderItem
	for {
		proj, err := p.parseProjection()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Key: proj.Alias}
		if p.isKeyword("DESC") {
			item.Desc = true
			p.advance()
		} else if p.isKeyword("ASC") {
			p.advance()
		}
		items = append(items, item)
		if p.cur().Kind == Comma {
			p.advance()
			continue
		}
		break
	}
	return items, nil
}

// RenderProjection renders a Projection back to its canonical text form,
// used both as its default result-column alias and as the ORDER BY key
// join point.
func RenderProjection(p Projection) string {
	var b strings.Builder
	switch p.Agg {
	case AggCount:
		b.WriteString("COUNT(")
	case AggSum:
		b.WriteString("SUM(")
	case AggAvg:
		b.WriteString("AVG(")
	case AggMin:
		b.WriteString("MIN(")
	case AggMax:
		b.WriteString("MAX(")
	}
	if p.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(p.Var)
	if p.Field != "" {
		b.WriteString(".")
		b.WriteString(p.Field)
	}
	if p.Agg != AggNone {
		b.WriteString(")")
	}
	return b.String()
}
