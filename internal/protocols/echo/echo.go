// Package echo is a minimal demonstration protocol built against the
// typed sdk.Protocol[M] layer: on Init it arms a
// recurring ping timer, on message receipt it echoes the payload back to
// the sender, and it logs every fault notification through LogKV so a
// connected telemetry viewer can see fault delivery without any
// protocol-specific UI code. It exists to exercise the full Protocol[M]
// surface end to end, not as a reference consensus algorithm.
package echo

import (
	"fmt"

	"github.com/lucaskim/ftsim/pkg/sdk"
	"github.com/lucaskim/ftsim/pkg/simtime"
)

// ProtoTag is the fixed tag this package registers under.
const ProtoTag sdk.ProtoTag = 1

// PingInterval is how often a node pings every one of its peers.
var PingInterval = simtime.FromMillis(200)

// Msg is the single wire message echo exchanges: a ping carries no
// meaningful reply expectation beyond its Seq, a pong is any message sent
// back to the original sender.
type Msg struct {
	Seq  uint64 `json:"seq"`
	Text string `json:"text"`
}

// Protocol implements sdk.Protocol[Msg].
type Protocol struct {
	seq uint64
}

// New returns a fresh Protocol instance. Echo keeps no state that must
// survive Init being called again on restart, so a single long-lived
// value would do too, but a factory per node matches the SDK's Factory
// contract for protocols that do hold per-node state.
func New() *Protocol { return &Protocol{} }

func (p *Protocol) Name() string          { return "echo" }
func (p *Protocol) ProtoTag() sdk.ProtoTag { return ProtoTag }

// Init arms the first ping timer.
func (p *Protocol) Init(ctx *sdk.Ctx[Msg]) {
	ctx.SetTimer(PingInterval)
}

// OnMessage echoes any message whose text is not already prefixed
// "pong:" back to its sender, tagged as a pong; this avoids a ping-pong
// loop running forever between two nodes.
func (p *Protocol) OnMessage(ctx *sdk.Ctx[Msg], src simtime.NodeID, msg Msg) {
	ctx.LogKV("last_received", fmt.Sprintf("seq=%d from=%d", msg.Seq, src))
	if len(msg.Text) >= 5 && msg.Text[:5] == "pong:" {
		return
	}
	reply := Msg{Seq: msg.Seq, Text: "pong:" + msg.Text}
	if err := ctx.Send(src, &reply); err != nil {
		ctx.LogKV("send_error", err.Error())
	}
}

// OnTimer pings every peer and rearms itself. Broadcast is a no-op when
// the node has no peers, so this is safe to call unconditionally.
func (p *Protocol) OnTimer(ctx *sdk.Ctx[Msg], timer simtime.TimerID) {
	p.seq++
	msg := Msg{Seq: p.seq, Text: "ping"}
	if err := ctx.Broadcast(&msg, nil); err != nil {
		ctx.LogKV("send_error", err.Error())
	}
	ctx.SetTimer(PingInterval)
}

// OnFault records every fault notification for visualization.
func (p *Protocol) OnFault(ctx *sdk.Ctx[Msg], fault sdk.FaultEvent) {
	ctx.LogKV("last_fault", fmt.Sprintf("kind=%d", fault.Kind))
}

var _ sdk.Protocol[Msg] = (*Protocol)(nil)
