// Package network models the directed link graph connecting nodes, each
// link's fault model, and the send-path that turns an outgoing Envelope
// into zero or more scheduled Deliver events. No third-party graph
// library fits a small, stable-ID directed multigraph with per-edge
// mutable fault state; plain adjacency maps are the idiomatic Go choice
// for a graph this size. See DESIGN.md.
package network

import (
	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/simtime"
)

// LinkFaultModel holds the per-link fault and shaping parameters: drop,
// duplication, corruption, delay, jitter, reorder window, and optional
// bandwidth/MTU shaping.
type LinkFaultModel struct {
	Drop       float64
	Duplicate  float64
	Corrupt    float64
	BaseDelay  event.DelaySpec
	Jitter     event.DelaySpec
	ReorderWin int

	Partitioned bool

	BandwidthBytesPerMs uint64 // 0 means unbounded
	MTUBytes            int    // 0 means unbounded
}

// DefaultLinkFaultModel is the default link shape: no faults, a 10ms
// base delay with up to 2ms of jitter.
func DefaultLinkFaultModel() LinkFaultModel {
	return LinkFaultModel{
		BaseDelay: event.DelaySpec{Kind: event.DelayConst, Const: simtime.FromMillis(10)},
		Jitter:    event.DelaySpec{Kind: event.DelayUniform, Lo: simtime.Epoch, Hi: simtime.FromMillis(2)},
	}
}

// BroadcastLinkID is the sentinel link ID attached to an engine-injected
// broadcast_bytes delivery, which bypasses every link's fault model and so
// is not associated with any real edge.
const BroadcastLinkID simtime.LinkID = 0

// NetLink is one directed edge of the network graph.
type NetLink struct {
	ID     simtime.LinkID
	Src    simtime.NodeID
	Dst    simtime.NodeID
	Faults LinkFaultModel
}

// Net is the network graph: a directed adjacency structure keyed by
// stable LinkIDs, plus a (src, dst) index for O(1) link lookup on send.
type Net struct {
	links      map[simtime.LinkID]*NetLink
	bySrcDst   map[[2]simtime.NodeID]simtime.LinkID
	peersOf    map[simtime.NodeID][]simtime.NodeID
	nextLinkID simtime.LinkID
}

// NewNet returns an empty Net. Real link IDs start at 1: 0 is reserved for
// BroadcastLinkID so a broadcast-injected delivery's link ID never
// aliases a real edge.
func NewNet() *Net {
	return &Net{
		links:      make(map[simtime.LinkID]*NetLink),
		bySrcDst:   make(map[[2]simtime.NodeID]simtime.LinkID),
		peersOf:    make(map[simtime.NodeID][]simtime.NodeID),
		nextLinkID: 1,
	}
}

// FromEdges builds a Net from a directed edge list, every link starting
// with DefaultLinkFaultModel.
func FromEdges(edges []EdgePair) *Net {
	net := NewNet()
	for _, e := range edges {
		net.AddLink(e.Src, e.Dst, DefaultLinkFaultModel())
	}
	return net
}

// EdgePair mirrors topology.Edge without importing pkg/topology, keeping
// pkg/network's dependency surface limited to pkg/event and pkg/simtime.
type EdgePair struct {
	Src simtime.NodeID
	Dst simtime.NodeID
}

// AddLink inserts a new directed link and returns its stable ID.
func (n *Net) AddLink(src, dst simtime.NodeID, faults LinkFaultModel) simtime.LinkID {
	id := n.nextLinkID
	n.nextLinkID++
	n.links[id] = &NetLink{ID: id, Src: src, Dst: dst, Faults: faults}
	n.bySrcDst[[2]simtime.NodeID{src, dst}] = id
	n.peersOf[src] = append(n.peersOf[src], dst)
	return id
}

// Link returns the link with the given ID, or nil if absent.
func (n *Net) Link(id simtime.LinkID) *NetLink {
	return n.links[id]
}

// LinkBetween returns the link from src to dst, or nil if no such edge
// exists.
func (n *Net) LinkBetween(src, dst simtime.NodeID) *NetLink {
	id, ok := n.bySrcDst[[2]simtime.NodeID{src, dst}]
	if !ok {
		return nil
	}
	return n.links[id]
}

// AllLinks returns every link in the graph, in ascending LinkID order.
func (n *Net) AllLinks() []*NetLink {
	out := make([]*NetLink, 0, len(n.links))
	for id := simtime.LinkID(0); id < n.nextLinkID; id++ {
		if link, ok := n.links[id]; ok {
			out = append(out, link)
		}
	}
	return out
}

// PeersOf returns the destinations src has an outbound link to, in
// insertion order.
func (n *Net) PeersOf(src simtime.NodeID) []simtime.NodeID {
	return n.peersOf[src]
}

// SetPartition marks partitioned every link whose endpoints fall in two
// different sets. A link between two nodes in the SAME set, or where
// either endpoint appears in no set at all, is left untouched.
func (n *Net) SetPartition(sets [][]simtime.NodeID) {
	setIndex := make(map[simtime.NodeID]int)
	for i, set := range sets {
		for _, nid := range set {
			setIndex[nid] = i
		}
	}
	for _, link := range n.links {
		srcSet, srcOK := setIndex[link.Src]
		dstSet, dstOK := setIndex[link.Dst]
		if srcOK && dstOK && srcSet != dstSet {
			link.Faults.Partitioned = true
		}
	}
}

// HealPartition clears the partitioned flag on every link. Idempotent:
// calling it with no active partition is a no-op.
func (n *Net) HealPartition() {
	for _, link := range n.links {
		link.Faults.Partitioned = false
	}
}

// UpdateLinkModel applies a live fault-model change to one link.
func (n *Net) UpdateLinkModel(id simtime.LinkID, change event.LinkModelChange) {
	link := n.links[id]
	if link == nil {
		return
	}
	switch change.Kind {
	case event.LinkModelSetDelay:
		link.Faults.BaseDelay = change.Delay
	case event.LinkModelSetDrop:
		link.Faults.Drop = change.Rate
	case event.LinkModelSetDuplicate:
		link.Faults.Duplicate = change.Rate
	case event.LinkModelSetCorrupt:
		link.Faults.Corrupt = change.Rate
	}
}
