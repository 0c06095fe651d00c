// Package control defines the out-of-band messages an external
// controller (the websocket control channel, a CLI REPL) can send into a
// running simulation, and the simulation's own run-state enum.
package control

import "github.com/lucaskim/ftsim/pkg/simtime"

// MsgKind enumerates the control message variants.
type MsgKind int

const (
	Pause MsgKind = iota
	Resume
	Step
	KillNode
	RestartNode
	InjectPartition
	HealPartition
	SetSpeed
)

// Msg is a single control-channel message. Only the fields relevant to
// Kind are meaningful.
type Msg struct {
	Kind MsgKind

	NodeID simtime.NodeID // KillNode, RestartNode

	Sets [][]simtime.NodeID // InjectPartition

	Speed float32 // SetSpeed
}

// State is the simulation's run-state.
type State int

const (
	Running State = iota
	Paused
	Stepping
	Completed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stepping:
		return "stepping"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Channel is a non-blocking single-producer/single-consumer mailbox: the
// controller sends via TrySend, the kernel drains via TryRecv between
// steps. Buffered, so a burst of control messages during one step is held
// until the next drain, up to the buffer's capacity; once the buffer is
// full, TrySend drops the message and reports false.
type Channel struct {
	ch chan Msg
}

// NewChannel returns a Channel with the given buffer capacity.
func NewChannel(capacity int) *Channel {
	return &Channel{ch: make(chan Msg, capacity)}
}

// TrySend enqueues msg, returning false if the buffer is full.
func (c *Channel) TrySend(msg Msg) bool {
	select {
	case c.ch <- msg:
		return true
	default:
		return false
	}
}

// TryRecv drains one pending message, or ok=false if none is queued.
func (c *Channel) TryRecv() (Msg, bool) {
	select {
	case msg := <-c.ch:
		return msg, true
	default:
		return Msg{}, false
	}
}
