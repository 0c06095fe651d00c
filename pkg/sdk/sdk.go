// Package sdk defines the protocol SDK boundary: the capability contract
// the kernel hands to every protocol callback, and the two-layer trait
// split (a dyn-safe, raw-bytes ProtocolDyn the kernel drives, and an
// ergonomic generic Protocol[M] protocol authors implement).
package sdk

import (
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/store"
)

// ProtoTag is the 16-bit namespace that routes a payload to a protocol on
// the destination node.
type ProtoTag uint16

// FaultEventKind enumerates the fault notifications a protocol's
// on_fault callback may receive.
type FaultEventKind int

const (
	FaultNodeCrashed FaultEventKind = iota
	FaultNodeRecovered
	FaultPartitioned
	FaultPartitionHealed
	FaultClockSkewed
	FaultStoreFaulted
	FaultByzantineEnabled
)

// FaultEvent is the protocol-facing notification of an applied fault,
// distinct from the kernel-internal FaultInternal variant that caused it.
type FaultEvent struct {
	Kind      FaultEventKind
	Peers     []simtime.NodeID
	SkewNs    int64
	StoreKind store.FaultKind
	Enabled   bool
}

// ProtoCtx is the capability contract a protocol callback receives,
// re-bound for each event and never stored across calls. It is the
// dyn-safe, raw-bytes half of the SDK boundary; ProtocolDyn is driven
// directly against it, and Ctx[M] wraps it for typed protocols.
type ProtoCtx interface {
	SendRaw(dst simtime.NodeID, tag ProtoTag, payload []byte)
	BroadcastRaw(tag ProtoTag, payload []byte, filter func(simtime.NodeID) bool)
	SetTimer(after simtime.SimTime) simtime.TimerID
	CancelTimer(id simtime.TimerID) bool
	Now() simtime.SimTime
	NodeID() simtime.NodeID
	Store() store.View
	RngU64() uint64
	LogKV(key, val string)
}

// ProtocolDyn is the dynamic, engine-facing trait the kernel drives
// directly: it operates on raw byte slices so the kernel need not know
// any protocol's concrete message type.
type ProtocolDyn interface {
	Name() string
	ProtoTag() ProtoTag
	Init(ctx ProtoCtx)
	OnMessage(ctx ProtoCtx, src simtime.NodeID, payload []byte) error
	OnTimer(ctx ProtoCtx, timer simtime.TimerID)
	OnFault(ctx ProtoCtx, fault FaultEvent)
}

// Factory constructs a ProtocolDyn instance for one node. Protocols that
// hold per-node state return a fresh value from Factory for each node.
type Factory func() ProtocolDyn

// Registry is the stable (name, proto_tag) -> Factory mapping a scenario
// resolves against. ProtoTag uniqueness is enforced at Register time; an unknown
// tag at world construction is a fatal configuration error, surfaced as
// simerr.ProtocolNotRegisteredError from the caller that looks it up.
type Registry struct {
	byTag map[ProtoTag]registryEntry
}

type registryEntry struct {
	name    string
	factory Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byTag: make(map[ProtoTag]registryEntry)}
}

// Register adds a (name, tag) -> factory mapping. It panics on a
// duplicate tag: this is a programming-time configuration error the
// caller is expected to catch before building any scenario, so a
// registry never silently shadows a handler.
func (r *Registry) Register(name string, tag ProtoTag, factory Factory) {
	if _, exists := r.byTag[tag]; exists {
		panic("sdk: duplicate proto_tag registered: " + name)
	}
	r.byTag[tag] = registryEntry{name: name, factory: factory}
}

// Lookup returns the factory registered for tag, or ok=false.
func (r *Registry) Lookup(tag ProtoTag) (Factory, bool) {
	entry, ok := r.byTag[tag]
	if !ok {
		return nil, false
	}
	return entry.factory, true
}

// Name returns the protocol name registered for tag, or "" if unknown.
func (r *Registry) Name(tag ProtoTag) string {
	return r.byTag[tag].name
}
