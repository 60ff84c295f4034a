// Package graph maintains the edge index derived from REF-typed document
// fields: a bidirectional adjacency structure kept in sync with the
// document store, plus the node/edge materialisation used by the Sulpher
// query engine and the graph algorithms package.
package graph

import (
	"sort"
	"strings"
)

// NodeRef identifies a document viewed as a graph node: its entity (node
// type) and document ID.
type NodeRef struct {
	Entity string
	ID     int64
}

// Ref is one outbound reference discovered on a document: the field that
// held it (used to derive the edge label) and the target node.
type Ref struct {
	Field  string
	Target NodeRef
}

// Adjacency is one directed edge endpoint: an edge label and the node at
// the other end.
type Adjacency struct {
	Label string
	Node  NodeRef
}

// Label upper-cases a field name into its edge label.
func Label(field string) string {
	return strings.ToUpper(field)
}

// NodeType renders an entity name as its title-case singular node type
// (`users` <-> `User`). It does not attempt real linguistic
// singularisation beyond stripping one trailing "s" — good enough for
// the entity-name alphabet ([A-Za-z_][A-Za-z0-9_]*) and consistent with
// the matching rule in MatchesEntity below, which is tolerant of the
// mismatch either way.
func NodeType(entity string) string {
	e := strings.TrimSuffix(entity, "s")
	if e == "" {
		e = entity
	}
	return strings.ToUpper(e[:1]) + strings.ToLower(e[1:])
}

// MatchesEntity reports whether a Sulpher type name (e.g. "User", "Users",
// "user") refers to entity (e.g. "users"), accepting singular/plural by
// matching against the entity name or its title-cased form.
func MatchesEntity(typeName, entity string) bool {
	t := strings.ToLower(typeName)
	e := strings.ToLower(entity)
	if t == e {
		return true
	}
	if t+"s" == e || t == e+"s" {
		return true
	}
	return strings.TrimSuffix(t, "s") == strings.TrimSuffix(e, "s")
}

// sortAdjacency orders adjacency lists deterministically by (label asc,
// target-id asc), the tie-break rule traversal order depends on.
func sortAdjacency(list []Adjacency) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Label != list[j].Label {
			return list[i].Label < list[j].Label
		}
		return list[i].Node.ID < list[j].Node.ID
	})
}
