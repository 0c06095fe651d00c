package node

import "github.com/lucaskim/ftsim/pkg/simtime"

// TimerWheel tracks a node's pending timers using a tombstone
// cancellation pattern: canceling a timer does not unschedule its
// underlying queue event (the kernel has no way to pull an arbitrary item
// out of the priority queue cheaply); it only marks the TimerID so the
// fire is ignored when the event eventually surfaces.
type TimerWheel struct {
	active   map[simtime.TimerID]struct{}
	canceled map[simtime.TimerID]struct{}
}

// NewTimerWheel returns an empty TimerWheel.
func NewTimerWheel() *TimerWheel {
	return &TimerWheel{
		active:   make(map[simtime.TimerID]struct{}),
		canceled: make(map[simtime.TimerID]struct{}),
	}
}

// Add registers a newly scheduled timer.
func (w *TimerWheel) Add(id simtime.TimerID) {
	w.active[id] = struct{}{}
}

// Cancel marks id as canceled, returning true if it was active. Calling
// Cancel on an unknown or already-fired timer returns false.
func (w *TimerWheel) Cancel(id simtime.TimerID) bool {
	if _, ok := w.active[id]; !ok {
		return false
	}
	w.canceled[id] = struct{}{}
	return true
}

// Fire consumes one firing of id and reports whether it should actually
// be dispatched to the protocol (false if it was canceled).
func (w *TimerWheel) Fire(id simtime.TimerID) bool {
	delete(w.active, id)
	if _, wasCanceled := w.canceled[id]; wasCanceled {
		delete(w.canceled, id)
		return false
	}
	return true
}

// Clear drops all bookkeeping, used on crash: pending timer events will
// still surface from the queue but no longer match anything in active or
// canceled, so Fire's caller must separately check node status before
// consulting the wheel at all (handled in Node.HandleTimer).
func (w *TimerWheel) Clear() {
	w.active = make(map[simtime.TimerID]struct{})
	w.canceled = make(map[simtime.TimerID]struct{})
}

// Len returns the number of timers currently active (not yet fired or
// canceled).
func (w *TimerWheel) Len() int {
	return len(w.active) - len(w.canceled)
}
