// Package sulpher implements the query language of the same name: a
// Cypher subset for path-matching over the graph overlay. It is organised
// as a lexer, an AST, a recursive-descent parser, a seed-variable planner
// and a breadth-first executor.
package sulpher

import "fmt"

// Kind identifies a lexical token category.
type Kind int

const (
	EOF Kind = iota
	Ident
	Keyword
	Number
	String
	LParen
	RParen
	LBracket
	RBracket
	LBrace
	RBrace
	Colon
	Comma
	Dot
	Dash
	Arrow   // ->
	Star
	DotDot  // ..
	Eq
	Neq
	Lt
	Lte
	Gt
	Gte
	Pipe
)

var keywords = map[string]bool{
	"MATCH": true, "WHERE": true, "WITH": true, "RETURN": true,
	"ORDER": true, "BY": true, "LIMIT": true, "ASC": true, "DESC": true,
	"AND": true, "OR": true, "NOT": true, "BFS": true, "DFS": true,
	"TRUE": true, "FALSE": true, "NULL": true,
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true, "DISTINCT": true,
}

// Token is one lexical token with its source position, used to build
// precise QuerySyntaxError diagnostics carrying the offending token and
// its column.
type Token struct {
	Kind   Kind
	Text   string
	Column int
}

func (t Token) String() string {
	return fmt.Sprintf("%q@%d", t.Text, t.Column)
}
