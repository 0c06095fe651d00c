// Package event defines the simulator's unified event model: envelopes,
// the discriminant used for deterministic tie-breaking, the queued event
// wrapper, and the closed set of event and internal-fault payload
// variants. It sits below every other core package so
// that network, store, node, scenario, and kernel can all share one
// vocabulary without importing each other.
package event

import "github.com/lucaskim/ftsim/pkg/simtime"

// Envelope is the inter-node message: {src, dst,
// proto_tag, payload_bytes, msg_id, create_time, trace_id}. Src ==
// simtime.NodeIDMax denotes an engine-injected message.
type Envelope struct {
	Src        simtime.NodeID
	Dst        simtime.NodeID
	ProtoTag   uint16
	Payload    []byte
	MsgID      simtime.MsgID
	CreateTime simtime.SimTime
	TraceID    string
}

// KindPriority is the primary half of a Discriminant: the event category,
// ordered Fault < Timer < Delivery < UiSnapshot.
type KindPriority uint8

const (
	KindFault     KindPriority = 0
	KindTimer     KindPriority = 1
	KindDelivery  KindPriority = 2
	KindUISnapshot KindPriority = 255
)

// Discriminant is the pair (kind_priority, source_node) used
// as the tertiary sort key among events sharing a fire time and insertion
// sequence.
type Discriminant struct {
	Kind   KindPriority
	Source simtime.NodeID
}

// FaultDiscriminant is the discriminant every scheduled fault uses: it
// always sorts first among same-time, same-sequence events.
func FaultDiscriminant() Discriminant {
	return Discriminant{Kind: KindFault, Source: simtime.NodeIDMax}
}

// TimerDiscriminant is the discriminant for a TimerFired event owned by src.
func TimerDiscriminant(src simtime.NodeID) Discriminant {
	return Discriminant{Kind: KindTimer, Source: src}
}

// DeliveryDiscriminant is the discriminant for a Deliver event originating
// from src (the link's source node, not necessarily the original sender
// in the case of an engine-injected broadcast).
func DeliveryDiscriminant(src simtime.NodeID) Discriminant {
	return Discriminant{Kind: KindDelivery, Source: src}
}

// UISnapshotDiscriminant is the discriminant every snapshot tick uses: it
// always sorts last among same-time, same-sequence events.
func UISnapshotDiscriminant() Discriminant {
	return Discriminant{Kind: KindUISnapshot, Source: simtime.NodeIDMax}
}

// Less implements the tertiary comparison: smaller Kind first, then
// smaller Source.
func (d Discriminant) Less(o Discriminant) bool {
	if d.Kind != o.Kind {
		return d.Kind < o.Kind
	}
	return d.Source < o.Source
}

// Payload is the closed set of event payload variants:
// Deliver, TimerFired, Fault, UiSnapshotTick. It is implemented only by
// the types in this package.
type Payload interface {
	isPayload()
}

// Deliver delivers env over the link it was scheduled on.
type Deliver struct {
	Env    Envelope
	LinkID simtime.LinkID
}

func (Deliver) isPayload() {}

// TimerFired notifies node that timerID (if still live) has fired.
type TimerFired struct {
	NodeID  simtime.NodeID
	TimerID simtime.TimerID
}

func (TimerFired) isPayload() {}

// Fault carries one internal fault variant to be applied to the world.
type Fault struct {
	Internal FaultInternal
}

func (Fault) isPayload() {}

// UISnapshotTick requests a telemetry snapshot be built and published,
// then rescheduled at the fixed cadence.
type UISnapshotTick struct{}

func (UISnapshotTick) isPayload() {}

// Queued wraps a Payload with its scheduling metadata, the type stored in
// the kernel's priority queue.
type Queued struct {
	ID           simtime.EventID
	Time         simtime.SimTime
	InsertSeq    uint64
	Discriminant Discriminant
	Payload      Payload
}

// Less orders two Queued events by the total order:
// earlier Time, then earlier InsertSeq, then smaller Discriminant.
func Less(a, b Queued) bool {
	if c := simtime.Compare(a.Time, b.Time); c != 0 {
		return c < 0
	}
	if a.InsertSeq != b.InsertSeq {
		return a.InsertSeq < b.InsertSeq
	}
	return a.Discriminant.Less(b.Discriminant)
}
