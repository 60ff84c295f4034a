package graph

import "sync"

// Index is the edge-index contract the document store and query engine
// depend on. Implementations: MemoryIndex (default, in-process) and
// IndexedIndex (badger-persisted).
//
// Shared-resource policy: many concurrent readers, one exclusive writer
// at a time, enforced internally by each implementation.
type Index interface {
	// SetOutbound replaces node's full outbound reference set with refs,
	// updating the reverse (inbound) adjacency of every old and new
	// target accordingly. Called after every document create/save/replace/
	// patch, with an empty refs slice when the document has no references.
	SetOutbound(node NodeRef, refs []Ref) error

	// Remove deletes node and every edge touching it (both directions),
	// called as the last step of document delete.
	Remove(node NodeRef) error

	// Outbound/Inbound return node's adjacency lists, sorted by
	// (label asc, target-id asc).
	Outbound(node NodeRef) []Adjacency
	Inbound(node NodeRef) []Adjacency

	// NodesByType returns every node currently known for a Sulpher type
	// name, matched per MatchesEntity.
	NodesByType(typeName string) []NodeRef

	// AllNodes returns every node the index has seen, either as a
	// SetOutbound source (even with no references) or as a reference
	// target, until it is removed.
	AllNodes() []NodeRef

	// Stats reports node/edge counts for statistics().
	Stats() (nodeCount, edgeCount int64)

	Close() error
}

// MemoryIndex is the default in-memory edge index: built by a one-time
// boot scan (via SetOutbound calls from the loader) and kept current
// incrementally by the document store.
type MemoryIndex struct {
	mu  sync.RWMutex
	out map[NodeRef][]Adjacency
	in  map[NodeRef][]Adjacency
	// byType indexes every node passed to SetOutbound or named as a target,
	// keyed by its entity, supporting NodesByType and AllNodes without a
	// document-store scan.
	byType map[string]map[NodeRef]struct{}
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		out:    make(map[NodeRef][]Adjacency),
		in:     make(map[NodeRef][]Adjacency),
		byType: make(map[string]map[NodeRef]struct{}),
	}
}

func (m *MemoryIndex) trackType(n NodeRef) {
	set := m.byType[n.Entity]
	if set == nil {
		set = make(map[NodeRef]struct{})
		m.byType[n.Entity] = set
	}
	set[n] = struct{}{}
}

func (m *MemoryIndex) SetOutbound(node NodeRef, refs []Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trackType(node)

	// Remove this node as a source from every current target's inbound list.
	for _, adj := range m.out[node] {
		m.removeInbound(adj.Node, node, adj.Label)
	}

	newOut := make([]Adjacency, 0, len(refs))
	for _, r := range refs {
		label := Label(r.Field)
		newOut = append(newOut, Adjacency{Label: label, Node: r.Target})
		m.trackType(r.Target)
		m.addInbound(r.Target, node, label)
	}
	sortAdjacency(newOut)
	if len(newOut) == 0 {
		delete(m.out, node)
	} else {
		m.out[node] = newOut
	}
	return nil
}

func (m *MemoryIndex) addInbound(target, source NodeRef, label string) {
	list := m.in[target]
	list = append(list, Adjacency{Label: label, Node: source})
	sortAdjacency(list)
	m.in[target] = list
}

func (m *MemoryIndex) removeInbound(target, source NodeRef, label string) {
	list := m.in[target]
	out := list[:0]
	for _, a := range list {
		if a.Node == source && a.Label == label {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		delete(m.in, target)
	} else {
		m.in[target] = out
	}
}

func (m *MemoryIndex) Remove(node NodeRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, adj := range m.out[node] {
		m.removeInbound(adj.Node, node, adj.Label)
	}
	delete(m.out, node)

	for _, adj := range m.in[node] {
		m.removeOutbound(adj.Node, node, adj.Label)
	}
	delete(m.in, node)

	if set, ok := m.byType[node.Entity]; ok {
		delete(set, node)
		if len(set) == 0 {
			delete(m.byType, node.Entity)
		}
	}
	return nil
}

func (m *MemoryIndex) removeOutbound(source, target NodeRef, label string) {
	list := m.out[source]
	out := list[:0]
	for _, a := range list {
		if a.Node == target && a.Label == label {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		delete(m.out, source)
	} else {
		m.out[source] = out
	}
}

func (m *MemoryIndex) Outbound(node NodeRef) []Adjacency {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Adjacency(nil), m.out[node]...)
}

func (m *MemoryIndex) Inbound(node NodeRef) []Adjacency {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Adjacency(nil), m.in[node]...)
}

func (m *MemoryIndex) NodesByType(typeName string) []NodeRef {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []NodeRef
	for entity, set := range m.byType {
		if !MatchesEntity(typeName, entity) {
			continue
		}
		for n := range set {
			out = append(out, n)
		}
	}
	return out
}

func (m *MemoryIndex) AllNodes() []NodeRef {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[NodeRef]struct{})
	for _, set := range m.byType {
		for n := range set {
			seen[n] = struct{}{}
		}
	}
	out := make([]NodeRef, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

func (m *MemoryIndex) Stats() (nodeCount, edgeCount int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[NodeRef]struct{})
	for _, set := range m.byType {
		for n := range set {
			seen[n] = struct{}{}
		}
	}
	var edges int64
	for _, adj := range m.out {
		edges += int64(len(adj))
	}
	return int64(len(seen)), edges
}

func (m *MemoryIndex) Close() error { return nil }
