package kernel

import (
	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/rng"
	"github.com/lucaskim/ftsim/pkg/sdk"
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/store"
	"github.com/lucaskim/ftsim/pkg/telemetry"
)

// EngineCtx is the concrete sdk.ProtoCtx the kernel builds fresh for every
// callback: a (*Simulation, NodeID) pair scoped to the single node the
// current event addresses. It carries no state across calls; a protocol
// that stashes one beyond the callback that received it is misusing the
// SDK.
type EngineCtx struct {
	sim    *Simulation
	nodeID simtime.NodeID
	err    error
}

var _ sdk.ProtoCtx = (*EngineCtx)(nil)

// engineCtx builds the EngineCtx for nodeID.
func (s *Simulation) engineCtx(nodeID simtime.NodeID) *EngineCtx {
	return &EngineCtx{sim: s, nodeID: nodeID}
}

func (c *EngineCtx) fail(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

// SendRaw builds an Envelope from c's node to dst and hands it to the
// network model. A fresh MsgID is minted even though the send may end up
// dropped by the fault model: the id space tracks attempts, not
// deliveries.
func (c *EngineCtx) SendRaw(dst simtime.NodeID, tag sdk.ProtoTag, payload []byte) {
	s := c.sim
	msgID, err := s.idGen.NextMsgID()
	if err != nil {
		c.fail(err)
		return
	}
	env := event.Envelope{
		Src:        c.nodeID,
		Dst:        dst,
		ProtoTag:   uint16(tag),
		Payload:    payload,
		MsgID:      msgID,
		CreateTime: s.clock,
	}
	s.telemetry.IncrementMetric(telemetry.MetricMessagesSent)
	if err := s.world.Net.Send(netScheduler{ctx: c}, s.disc, s.telemetry, env); err != nil {
		// An MTU rejection only prevents this send; the run continues.
		s.log.WithError(err).Warn("send rejected by network model")
	}
}

// netScheduler adapts the Simulation to network.Scheduler for one send,
// recording a scheduling failure (an ID-counter overflow) on ctx.
type netScheduler struct{ ctx *EngineCtx }

func (n netScheduler) Now() simtime.SimTime { return n.ctx.sim.clock }

func (n netScheduler) ScheduleAt(at simtime.SimTime, payload event.Payload, disc event.Discriminant) {
	if _, err := n.ctx.sim.ScheduleAt(at, payload, disc); err != nil {
		n.ctx.fail(err)
	}
}

// BroadcastRaw sends payload to every peer of c's node for which filter
// returns true (a nil filter sends to all peers).
func (c *EngineCtx) BroadcastRaw(tag sdk.ProtoTag, payload []byte, filter func(simtime.NodeID) bool) {
	n, err := c.sim.world.Node(c.nodeID)
	if err != nil {
		c.fail(err)
		return
	}
	for _, peer := range n.Peers() {
		if filter != nil && !filter(peer) {
			continue
		}
		c.SendRaw(peer, tag, payload)
	}
}

// SetTimer schedules a TimerFired event after the given delay from the
// current clock, registering it with the node's timer wheel so a crash
// clears it and a cancellation can tombstone it.
func (c *EngineCtx) SetTimer(after simtime.SimTime) simtime.TimerID {
	s := c.sim
	id, err := s.idGen.NextTimerID()
	if err != nil {
		c.fail(err)
		return 0
	}
	n, err := s.world.Node(c.nodeID)
	if err != nil {
		c.fail(err)
		return id
	}
	fireAt, overflowed := simtime.Add(s.clock, after)
	if overflowed {
		fireAt = simtime.Max
	}
	n.Timers.Add(id)
	if _, err := s.ScheduleAt(fireAt, event.TimerFired{NodeID: c.nodeID, TimerID: id}, event.TimerDiscriminant(c.nodeID)); err != nil {
		c.fail(err)
	}
	return id
}

// CancelTimer tombstones id so a future fire is silently skipped.
func (c *EngineCtx) CancelTimer(id simtime.TimerID) bool {
	n, err := c.sim.world.Node(c.nodeID)
	if err != nil {
		c.fail(err)
		return false
	}
	return n.Timers.Cancel(id)
}

// Now returns the master clock adjusted by the node's clock skew, using
// saturating add/sub so an extreme skew clamps rather than wraps.
func (c *EngineCtx) Now() simtime.SimTime {
	n, err := c.sim.world.Node(c.nodeID)
	if err != nil {
		return c.sim.clock
	}
	skew := n.ClockSkewNs
	if skew >= 0 {
		t, overflowed := simtime.Add(c.sim.clock, simtime.FromNanos(uint64(skew)))
		if overflowed {
			return simtime.Max
		}
		return t
	}
	t, underflowed := simtime.Sub(c.sim.clock, simtime.FromNanos(uint64(-skew)))
	if underflowed {
		return simtime.Epoch
	}
	return t
}

// NodeID returns the node this context is scoped to.
func (c *EngineCtx) NodeID() simtime.NodeID { return c.nodeID }

// Store returns the node's storage view wrapped in a FaultyView bound to
// this node's fault rates, each draw labeled with a per-node rng.Site so
// the determinism audit can attribute it.
func (c *EngineCtx) Store() store.View {
	n, err := c.sim.world.Node(c.nodeID)
	if err != nil {
		c.fail(err)
		return nil
	}
	nodeID := uint32(c.nodeID)
	roll := func(kind store.FaultKind, p float64) bool {
		return c.sim.disc.Bernoulli(rng.NodeSite(storeFaultSite(kind), nodeID), p)
	}
	onHint := func(store.FaultKind) {
		c.sim.telemetry.IncrementMetric(telemetry.MetricFaultsInjected)
	}
	return store.NewFaultyView(n.StoreView, n.StoreFaults, roll, onHint)
}

func storeFaultSite(kind store.FaultKind) rng.SiteKind {
	switch kind {
	case store.FaultFsyncFail:
		return rng.SiteStoreFsyncFail
	case store.FaultFsyncDelay:
		return rng.SiteStoreFsyncDelay
	case store.FaultWriteError:
		return rng.SiteStoreWriteError
	case store.FaultReadError:
		return rng.SiteStoreReadError
	case store.FaultTornWrite:
		return rng.SiteStoreTornWrite
	case store.FaultStaleRead:
		return rng.SiteStoreStaleRead
	default:
		return rng.SiteStoreFsyncFail
	}
}

// RngU64 draws a raw value at a per-node site, for a protocol that needs
// randomness beyond the network/store fault models (e.g. jittering its
// own retry schedule).
func (c *EngineCtx) RngU64() uint64 {
	return c.sim.disc.Uint64(rng.NodeSite(rng.SiteProtocolRNG, uint32(c.nodeID)))
}

// LogKV attaches a visualization key/value to this context's node.
func (c *EngineCtx) LogKV(key, val string) {
	c.sim.telemetry.LogNodeKV(c.nodeID, key, val)
}
