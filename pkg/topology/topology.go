// Package topology builds directed edge lists for the network graph from
// a declarative topology description: full mesh, ring, star, k-ary tree,
// an explicit edge list, or Erdos-Renyi random inclusion.
package topology

import "github.com/lucaskim/ftsim/pkg/simtime"

// Edge is one directed edge (src -> dst) in the node graph.
type Edge struct {
	Src simtime.NodeID
	Dst simtime.NodeID
}

// Kind enumerates the topology families.
type Kind int

const (
	FullMesh Kind = iota
	Ring
	Star
	KaryTree
	FromEdges
	ErdosRenyi
)

// Spec is a declarative topology. Only the fields Kind uses are
// meaningful.
type Spec struct {
	Kind Kind

	Hub simtime.NodeID // Star

	K int // KaryTree

	Edges []Edge // FromEdges

	P float64 // ErdosRenyi: per-edge inclusion probability
}

// Sampler draws the single Bernoulli trial ErdosRenyi needs per
// candidate edge, labeled at rng.SiteTopologyErdosRenyi so the draw is
// recorded like every other random decision in the simulation.
type Sampler interface {
	Bernoulli(p float64) bool
}

// Build expands spec into the directed edge list for n nodes (node IDs
// 0..n-1). sampler is only consulted for ErdosRenyi; pass nil for every
// other kind.
func Build(n int, spec Spec, sampler Sampler) []Edge {
	switch spec.Kind {
	case FullMesh:
		return fullMesh(n)
	case Ring:
		return ring(n)
	case Star:
		return star(n, spec.Hub)
	case KaryTree:
		return karyTree(n, spec.K)
	case FromEdges:
		return append([]Edge(nil), spec.Edges...)
	case ErdosRenyi:
		return erdosRenyi(n, spec.P, sampler)
	default:
		return nil
	}
}

// fullMesh connects every ordered pair of distinct nodes.
func fullMesh(n int) []Edge {
	edges := make([]Edge, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				edges = append(edges, Edge{Src: simtime.NodeID(i), Dst: simtime.NodeID(j)})
			}
		}
	}
	return edges
}

// ring connects node i to (i+1)%n and back, for every i, so messages
// flow in both directions around the ring.
func ring(n int) []Edge {
	if n < 2 {
		return nil
	}
	edges := make([]Edge, 0, 2*n)
	for i := 0; i < n; i++ {
		next := (i + 1) % n
		edges = append(edges,
			Edge{Src: simtime.NodeID(i), Dst: simtime.NodeID(next)},
			Edge{Src: simtime.NodeID(next), Dst: simtime.NodeID(i)},
		)
	}
	return edges
}

// star connects hub to every other node and every other node back to
// hub.
func star(n int, hub simtime.NodeID) []Edge {
	edges := make([]Edge, 0, 2*(n-1))
	for i := 0; i < n; i++ {
		nid := simtime.NodeID(i)
		if nid == hub {
			continue
		}
		edges = append(edges,
			Edge{Src: hub, Dst: nid},
			Edge{Src: nid, Dst: hub},
		)
	}
	return edges
}

// karyTree lays nodes out as a complete k-ary tree by index (node i's
// parent is (i-1)/k) and connects parent-child pairs in both
// directions. k < 1 is treated as 1 (a chain).
func karyTree(n int, k int) []Edge {
	if k < 1 {
		k = 1
	}
	edges := make([]Edge, 0, 2*n)
	for i := 1; i < n; i++ {
		parent := (i - 1) / k
		edges = append(edges,
			Edge{Src: simtime.NodeID(parent), Dst: simtime.NodeID(i)},
			Edge{Src: simtime.NodeID(i), Dst: simtime.NodeID(parent)},
		)
	}
	return edges
}

// erdosRenyi includes each of the n*(n-1) possible directed edges
// independently with probability p, each draw labeled and recorded via
// sampler so the result is reproducible under a fixed seed. Candidate
// edges are visited in a fixed (src, dst) nested-loop order so draw
// order, and therefore the resulting graph, is deterministic.
func erdosRenyi(n int, p float64, sampler Sampler) []Edge {
	var edges []Edge
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if sampler != nil && sampler.Bernoulli(p) {
				edges = append(edges, Edge{Src: simtime.NodeID(i), Dst: simtime.NodeID(j)})
			}
		}
	}
	return edges
}
