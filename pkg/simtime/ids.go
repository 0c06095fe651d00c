package simtime

import "github.com/lucaskim/ftsim/pkg/simerr"

// NodeID identifies a node; contiguous 0..N-1 for the nodes present at
// world construction.
type NodeID uint32

// LinkID identifies a directed link; stable across the run.
type LinkID uint64

// TimerID identifies a single set_timer call; unique per run.
type TimerID uint64

// EventID identifies a queued event; unique per run.
type EventID uint64

// MsgID identifies an envelope; unique per run. Duplicated deliveries of
// the same send reuse the original MsgID.
type MsgID uint64

// NodeIDMax is the sentinel source used for engine-injected envelopes.
const NodeIDMax NodeID = ^NodeID(0)

// IDGen hands out monotonically increasing IDs for every identifier kind
// the kernel needs, plus the insertion sequence used to break ties in the
// event queue. All counters are 64-bit; overflow is a fatal engine error.
type IDGen struct {
	eventID      uint64
	msgID        uint64
	timerID      uint64
	insertionSeq uint64
}

// NewIDGen returns a generator with every counter at zero.
func NewIDGen() *IDGen { return &IDGen{} }

func bump(counter *uint64, what string) (uint64, error) {
	if *counter == ^uint64(0) {
		return 0, simerr.IDOverflow(what)
	}
	id := *counter
	*counter++
	return id, nil
}

// NextEventID returns the next EventID, or an IDOverflow error.
func (g *IDGen) NextEventID() (EventID, error) {
	id, err := bump(&g.eventID, "event_id")
	return EventID(id), err
}

// NextMsgID returns the next MsgID, or an IDOverflow error.
func (g *IDGen) NextMsgID() (MsgID, error) {
	id, err := bump(&g.msgID, "msg_id")
	return MsgID(id), err
}

// NextTimerID returns the next TimerID, or an IDOverflow error.
func (g *IDGen) NextTimerID() (TimerID, error) {
	id, err := bump(&g.timerID, "timer_id")
	return TimerID(id), err
}

// NextInsertionSeq returns the next insertion sequence number, used purely
// for deterministic tie-breaking in the event queue.
func (g *IDGen) NextInsertionSeq() (uint64, error) {
	return bump(&g.insertionSeq, "insertion_seq")
}
