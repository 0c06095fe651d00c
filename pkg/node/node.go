// Package node implements the per-node runtime: the status machine, the
// hosted protocol instance, storage, and timer bookkeeping that together
// answer an event addressed to one node.
package node

import (
	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/sdk"
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/store"
)

// Status is a node's operational state.
type Status int

const (
	Up Status = iota
	Down
	Recovering
)

func (s Status) String() string {
	switch s {
	case Up:
		return "up"
	case Down:
		return "down"
	case Recovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// Node is a single participant in the simulated system: a protocol
// instance hosted over storage, timers, and a peer list.
type Node struct {
	ID           simtime.NodeID
	Status       Status
	ClockSkewNs  int64
	Proto        sdk.ProtocolDyn
	StoreView    store.View
	StoreFaults  *store.FaultModel
	Timers       *TimerWheel
	PeerList     []simtime.NodeID
	IsByzantine  bool
}

// New builds a node hosting proto over storeView, with an empty timer
// wheel and peer list and default (zero-rate) store fault model.
func New(id simtime.NodeID, proto sdk.ProtocolDyn, storeView store.View) *Node {
	return &Node{
		ID:          id,
		Status:      Up,
		Proto:       proto,
		StoreView:   storeView,
		StoreFaults: &store.FaultModel{},
		Timers:      NewTimerWheel(),
	}
}

// Init forwards initialization to the hosted protocol.
func (n *Node) Init(ctx sdk.ProtoCtx) {
	n.Proto.Init(ctx)
}

// ProtoTag returns the hosted protocol's tag.
func (n *Node) ProtoTag() sdk.ProtoTag { return n.Proto.ProtoTag() }

// SetPeers replaces the node's peer list.
func (n *Node) SetPeers(peers []simtime.NodeID) { n.PeerList = peers }

// Peers returns the node's peer list.
func (n *Node) Peers() []simtime.NodeID { return n.PeerList }

// HandleMessage dispatches a delivered envelope to the hosted protocol,
// unless the node is not Up: a message arriving at a down node is
// silently dropped, with the telemetry-visible drop counted by the
// caller.
func (n *Node) HandleMessage(ctx sdk.ProtoCtx, env event.Envelope) error {
	if n.Status != Up {
		return ErrNodeDown
	}
	return n.Proto.OnMessage(ctx, env.Src, env.Payload)
}

// HandleTimer dispatches a fired timer to the hosted protocol, unless the
// node is down or the timer was canceled.
func (n *Node) HandleTimer(ctx sdk.ProtoCtx, timerID simtime.TimerID) bool {
	if n.Status != Up {
		return false
	}
	if !n.Timers.Fire(timerID) {
		return false
	}
	n.Proto.OnTimer(ctx, timerID)
	return true
}

// ApplyFault updates node-local state for a fault already applied by the
// kernel (crash/restart/skew/store-rate/byzantine) and notifies the
// hosted protocol.
func (n *Node) ApplyFault(ctx sdk.ProtoCtx, internal event.FaultInternal) {
	switch internal.Kind {
	case event.FaultCrash:
		n.Status = Down
		n.Timers.Clear()
		n.Proto.OnFault(ctx, sdk.FaultEvent{Kind: sdk.FaultNodeCrashed})
	case event.FaultRestart:
		n.Status = Up
		n.Proto.Init(ctx)
		n.Proto.OnFault(ctx, sdk.FaultEvent{Kind: sdk.FaultNodeRecovered})
	case event.FaultClockSkew:
		n.ClockSkewNs = internal.SkewNs
		n.Proto.OnFault(ctx, sdk.FaultEvent{Kind: sdk.FaultClockSkewed, SkewNs: internal.SkewNs})
	case event.FaultStoreFault:
		n.Proto.OnFault(ctx, sdk.FaultEvent{Kind: sdk.FaultStoreFaulted, StoreKind: storeFaultKind(internal.StoreKind)})
	case event.FaultByzantineFlip:
		n.IsByzantine = internal.Enabled
		n.Proto.OnFault(ctx, sdk.FaultEvent{Kind: sdk.FaultByzantineEnabled, Enabled: internal.Enabled})
	}
}

func storeFaultKind(k event.StoreFaultKind) store.FaultKind {
	switch k {
	case event.StoreFaultFsyncFail:
		return store.FaultFsyncFail
	case event.StoreFaultFsyncDelay:
		return store.FaultFsyncDelay
	case event.StoreFaultWriteError:
		return store.FaultWriteError
	case event.StoreFaultReadError:
		return store.FaultReadError
	case event.StoreFaultTornWrite:
		return store.FaultTornWrite
	case event.StoreFaultStaleRead:
		return store.FaultStaleRead
	default:
		return store.FaultFsyncFail
	}
}

// ApplyStoreRate updates the single fault rate named by kind, then clamps
// the resulting model to the valid [0, 1] range.
func (n *Node) ApplyStoreRate(kind event.StoreFaultKind, rate float64) {
	switch kind {
	case event.StoreFaultFsyncFail:
		n.StoreFaults.FsyncFailRate = rate
	case event.StoreFaultFsyncDelay:
		n.StoreFaults.FsyncDelayRate = rate
	case event.StoreFaultWriteError:
		n.StoreFaults.WriteErrRate = rate
	case event.StoreFaultReadError:
		n.StoreFaults.ReadErrRate = rate
	case event.StoreFaultTornWrite:
		n.StoreFaults.TornWriteRate = rate
	case event.StoreFaultStaleRead:
		n.StoreFaults.StaleReadRate = rate
	}
	n.StoreFaults.Clamp()
}

type nodeDownError struct{}

func (nodeDownError) Error() string { return "node is down" }

// ErrNodeDown is returned by HandleMessage when the destination node is
// not Up; callers use it to distinguish an omission drop from a protocol
// error.
var ErrNodeDown error = nodeDownError{}
