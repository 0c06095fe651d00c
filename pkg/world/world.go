// Package world holds the World container: the ordered node list and the
// network graph that together make up the simulation's entire state.
package world

import (
	"github.com/lucaskim/ftsim/pkg/network"
	"github.com/lucaskim/ftsim/pkg/node"
	"github.com/lucaskim/ftsim/pkg/simerr"
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/telemetry"
)

// World is the top-level container for everything a running simulation
// needs to reach: every node, indexed by NodeID, and the network
// connecting them.
type World struct {
	Nodes []*node.Node
	Net   *network.Net
}

// New returns an empty World with a network built from edges.
func New(edges []network.EdgePair) *World {
	return &World{Net: network.FromEdges(edges)}
}

// AddNode appends a node to the world. Nodes must be added in NodeID
// order (0, 1, 2, ...): the world indexes nodes by slice position.
func (w *World) AddNode(n *node.Node) {
	w.Nodes = append(w.Nodes, n)
}

// Node returns the node with the given ID, or an error if id is out of
// range.
func (w *World) Node(id simtime.NodeID) (*node.Node, error) {
	if int(id) >= len(w.Nodes) {
		return nil, simerr.NodeNotFound(uint32(id))
	}
	return w.Nodes[id], nil
}

// MustNode returns the node with the given ID and panics if it is out of
// range; used only where the caller has already validated id (e.g. a
// freshly constructed world whose topology guarantees every referenced
// ID exists).
func (w *World) MustNode(id simtime.NodeID) *node.Node {
	return w.Nodes[id]
}

// Len returns the number of nodes in the world.
func (w *World) Len() int { return len(w.Nodes) }

// NodeAt returns the node at slice position i, satisfying
// telemetry.WorldView.
func (w *World) NodeAt(i int) *node.Node { return w.Nodes[i] }

// Links returns every network link as a telemetry.LinkSnap, satisfying
// telemetry.WorldView.
func (w *World) Links() []telemetry.LinkSnap {
	links := w.Net.AllLinks()
	out := make([]telemetry.LinkSnap, 0, len(links))
	for _, l := range links {
		out = append(out, telemetry.LinkSnap{
			ID:            l.ID,
			Src:           l.Src,
			Dst:           l.Dst,
			IsPartitioned: l.Faults.Partitioned,
		})
	}
	return out
}

var _ telemetry.WorldView = (*World)(nil)
