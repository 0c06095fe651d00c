package sdk

import (
	"encoding/json"

	"github.com/lucaskim/ftsim/pkg/simerr"
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/store"
)

// Protocol is the ergonomic, typed trait protocol authors implement,
// generic over the protocol's own message type M. encoding/json is the
// codec Ctx[M] uses under the hood; see DESIGN.md for why no binary
// codec was a better fit here.
type Protocol[M any] interface {
	Name() string
	ProtoTag() ProtoTag
	Init(ctx *Ctx[M])
	OnMessage(ctx *Ctx[M], src simtime.NodeID, msg M)
	OnTimer(ctx *Ctx[M], timer simtime.TimerID)
	OnFault(ctx *Ctx[M], fault FaultEvent)
}

// Ctx is the typed context wrapper handed to Protocol[M] callbacks. It
// wraps the raw ProtoCtx and handles message (de)serialization so
// protocol authors never see bytes.
type Ctx[M any] struct {
	inner    ProtoCtx
	protoTag ProtoTag
}

func newCtx[M any](inner ProtoCtx, tag ProtoTag) *Ctx[M] {
	return &Ctx[M]{inner: inner, protoTag: tag}
}

// Send serializes msg and sends it to dst.
func (c *Ctx[M]) Send(dst simtime.NodeID, msg *M) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return &simerr.CodecError{Msg: "serialization failed", Err: err}
	}
	c.inner.SendRaw(dst, c.protoTag, b)
	return nil
}

// Broadcast serializes msg and sends it to every peer satisfying filter
// (nil filter means every peer).
func (c *Ctx[M]) Broadcast(msg *M, filter func(simtime.NodeID) bool) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return &simerr.CodecError{Msg: "serialization failed", Err: err}
	}
	c.inner.BroadcastRaw(c.protoTag, b, filter)
	return nil
}

// SetTimer sets a timer that fires after the given offset.
func (c *Ctx[M]) SetTimer(after simtime.SimTime) simtime.TimerID {
	return c.inner.SetTimer(after)
}

// CancelTimer cancels a pending timer.
func (c *Ctx[M]) CancelTimer(id simtime.TimerID) bool {
	return c.inner.CancelTimer(id)
}

// Now returns the current skew-adjusted simulation time for this node.
func (c *Ctx[M]) Now() simtime.SimTime { return c.inner.Now() }

// NodeID returns the current node's identifier.
func (c *Ctx[M]) NodeID() simtime.NodeID { return c.inner.NodeID() }

// Store provides access to the node's fault-injected storage view.
func (c *Ctx[M]) Store() store.View { return c.inner.Store() }

// RngU64 draws a deterministic value from the master RNG, recorded under
// this node's per-protocol site label.
func (c *Ctx[M]) RngU64() uint64 { return c.inner.RngU64() }

// LogKV attaches a visualization-only key/value to the current node.
func (c *Ctx[M]) LogKV(key, val string) { c.inner.LogKV(key, val) }

// LogKVJSON marshals val to JSON and attaches it via LogKV, a
// convenience wrapper for structured values.
func (c *Ctx[M]) LogKVJSON(key string, val any) {
	if b, err := json.Marshal(val); err == nil {
		c.inner.LogKV(key, string(b))
	}
}

// protocolAdapter bridges a Protocol[M] into the dyn-safe ProtocolDyn the
// kernel drives, deserializing each incoming payload into M via
// encoding/json before invoking the typed callback.
type protocolAdapter[M any] struct {
	impl Protocol[M]
}

// Adapt wraps a typed Protocol[M] implementation as a ProtocolDyn, so it
// can be registered in a Registry alongside raw-bytes protocols.
func Adapt[M any](impl Protocol[M]) ProtocolDyn {
	return &protocolAdapter[M]{impl: impl}
}

func (a *protocolAdapter[M]) Name() string      { return a.impl.Name() }
func (a *protocolAdapter[M]) ProtoTag() ProtoTag { return a.impl.ProtoTag() }

func (a *protocolAdapter[M]) Init(ctx ProtoCtx) {
	a.impl.Init(newCtx[M](ctx, a.impl.ProtoTag()))
}

// OnMessage deserializes payload into M. A deserialization error is not
// propagated as a crash: it is returned to the caller, which logs it and
// treats the event as consumed.
func (a *protocolAdapter[M]) OnMessage(ctx ProtoCtx, src simtime.NodeID, payload []byte) error {
	var msg M
	if err := json.Unmarshal(payload, &msg); err != nil {
		return &simerr.CodecError{Msg: "deserialization failed", Err: err}
	}
	a.impl.OnMessage(newCtx[M](ctx, a.impl.ProtoTag()), src, msg)
	return nil
}

func (a *protocolAdapter[M]) OnTimer(ctx ProtoCtx, timer simtime.TimerID) {
	a.impl.OnTimer(newCtx[M](ctx, a.impl.ProtoTag()), timer)
}

func (a *protocolAdapter[M]) OnFault(ctx ProtoCtx, fault FaultEvent) {
	a.impl.OnFault(newCtx[M](ctx, a.impl.ProtoTag()), fault)
}

var _ ProtocolDyn = (*protocolAdapter[int])(nil)
