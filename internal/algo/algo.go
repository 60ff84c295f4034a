// Package algo implements the REST-level graph algorithms: shortest path,
// path existence, degree, common neighbours, neighbourhood aggregation
// and statistics, all over the graph.Index adjacency. The path and
// neighbourhood algorithms are BFS-driven; degree, common neighbours and
// statistics read adjacency lists directly.
package algo

import (
	"github.com/ha1tch/rserv/internal/apierr"
	"github.com/ha1tch/rserv/internal/graph"
)

// Direction selects which adjacency list(s) degree() and traversal
// consider.
type Direction string

const (
	DirIn  Direction = "in"
	DirOut Direction = "out"
	DirAll Direction = "all"
)

// PropertyLookup resolves a node's document property value, used by
// neighborhoodAggregate. Implemented by the document store; kept as a
// narrow function type here so this package never imports store.
type PropertyLookup func(node graph.NodeRef, property string) (any, bool)

// pathFrame is a BFS parent-pointer frame used to reconstruct the node
// sequence once ShortestPath discovers the target.
type pathFrame struct {
	node graph.NodeRef
	prev *pathFrame
}

// ShortestPath runs BFS on the undirected union of in+out edges (edge
// labels are ignored) and returns the node-id sequence from start to end,
// or a NotFound error if no path exists within maxDepth hops.
func ShortestPath(idx graph.Index, start, end graph.NodeRef, maxDepth int) ([]graph.NodeRef, error) {
	if start == end {
		return []graph.NodeRef{start}, nil
	}
	if maxDepth <= 0 {
		return nil, apierr.NotFound("path")
	}

	visited := map[graph.NodeRef]bool{start: true}
	queue := []*pathFrame{{node: start}}

	for depth := 0; len(queue) > 0 && depth < maxDepth; depth++ {
		var next []*pathFrame
		for _, f := range queue {
			for _, nb := range undirectedNeighbors(idx, f.node) {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				nf := &pathFrame{node: nb, prev: f}
				if nb == end {
					return reversePath(nf), nil
				}
				next = append(next, nf)
			}
		}
		queue = next
	}
	return nil, apierr.NotFound("path")
}

func reversePath(f *pathFrame) []graph.NodeRef {
	var out []graph.NodeRef
	for n := f; n != nil; n = n.prev {
		out = append([]graph.NodeRef{n.node}, out...)
	}
	return out
}

func undirectedNeighbors(idx graph.Index, node graph.NodeRef) []graph.NodeRef {
	var out []graph.NodeRef
	for _, a := range idx.Outbound(node) {
		out = append(out, a.Node)
	}
	for _, a := range idx.Inbound(node) {
		out = append(out, a.Node)
	}
	return out
}

// PathExists runs the same traversal as ShortestPath but early-exits on
// discovery, returning only a boolean.
func PathExists(idx graph.Index, start, end graph.NodeRef, maxDepth int) bool {
	if start == end {
		return true
	}
	if maxDepth <= 0 {
		return false
	}

	visited := map[graph.NodeRef]bool{start: true}
	queue := []graph.NodeRef{start}
	for depth := 0; len(queue) > 0 && depth < maxDepth; depth++ {
		var next []graph.NodeRef
		for _, n := range queue {
			for _, nb := range undirectedNeighbors(idx, n) {
				if nb == end {
					return true
				}
				if visited[nb] {
					continue
				}
				visited[nb] = true
				next = append(next, nb)
			}
		}
		queue = next
	}
	return false
}

// CommonNeighbors returns the intersection of a's and b's outbound
// neighbour sets.
func CommonNeighbors(idx graph.Index, a, b graph.NodeRef) []graph.NodeRef {
	setA := make(map[graph.NodeRef]bool)
	for _, adj := range idx.Outbound(a) {
		setA[adj.Node] = true
	}
	var out []graph.NodeRef
	seen := make(map[graph.NodeRef]bool)
	for _, adj := range idx.Outbound(b) {
		if setA[adj.Node] && !seen[adj.Node] {
			seen[adj.Node] = true
			out = append(out, adj.Node)
		}
	}
	return out
}

// Degree counts edges from the edge index in the requested direction,
// satisfying the invariant degree(n,"all") == degree(n,"in")+degree(n,"out").
func Degree(idx graph.Index, node graph.NodeRef, dir Direction) int {
	switch dir {
	case DirIn:
		return len(idx.Inbound(node))
	case DirOut:
		return len(idx.Outbound(node))
	default:
		return len(idx.Inbound(node)) + len(idx.Outbound(node))
	}
}

// Aggregation is the reducer neighborhoodAggregate applies to collected
// property values.
type Aggregation string

const (
	AggCount Aggregation = "count"
	AggSum   Aggregation = "sum"
	AggAvg   Aggregation = "avg"
)

// NeighborhoodAggregate performs a BFS to depth, collects the named
// property from every distinct visited node (excluding the seed), and
// applies aggregation. Missing values are skipped; sum/avg require numeric
// values, returning a ValidationError otherwise.
func NeighborhoodAggregate(idx graph.Index, lookup PropertyLookup, seed graph.NodeRef, depth int, property string, aggregation Aggregation) (float64, error) {
	visited := map[graph.NodeRef]bool{seed: true}
	frontier := []graph.NodeRef{seed}
	var collected []graph.NodeRef

	for d := 0; d < depth; d++ {
		var next []graph.NodeRef
		for _, n := range frontier {
			for _, nb := range undirectedNeighbors(idx, n) {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				next = append(next, nb)
				collected = append(collected, nb)
			}
		}
		frontier = next
	}

	var values []float64
	var count int
	for _, n := range collected {
		v, ok := lookup(n, property)
		if !ok || v == nil {
			continue
		}
		count++
		if aggregation == AggSum || aggregation == AggAvg {
			f, ok := toFloat(v)
			if !ok {
				return 0, apierr.Newf(apierr.KindValidation, "property %q on node is not numeric", property)
			}
			values = append(values, f)
		}
	}

	switch aggregation {
	case AggCount:
		return float64(count), nil
	case AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum, nil
	case AggAvg:
		if len(values) == 0 {
			return 0, nil
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	default:
		return 0, apierr.Newf(apierr.KindValidation, "unknown aggregation %q", aggregation)
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// Statistics is the result of statistics().
type Statistics struct {
	NodeCount      int64
	EdgeCount      int64
	AverageOutDeg  float64
}

// ComputeStatistics returns node count (documents), edge count (reference
// entries) and average out-degree.
func ComputeStatistics(idx graph.Index) Statistics {
	nodeCount, edgeCount := idx.Stats()
	var avg float64
	if nodeCount > 0 {
		avg = float64(edgeCount) / float64(nodeCount)
	}
	return Statistics{NodeCount: nodeCount, EdgeCount: edgeCount, AverageOutDeg: avg}
}
