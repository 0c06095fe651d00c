package kernel

import (
	"time"

	"github.com/lucaskim/ftsim/pkg/control"
	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/simtime"
)

// pausedPollInterval is how long Run sleeps between control-channel polls
// while paused.
const pausedPollInterval = 50 * time.Millisecond

// Run drains the event queue to completion, honoring control messages
// (pause/resume/step/kill/restart/partition/heal/speed) as they arrive.
// It returns when the queue empties or Step reports an error.
func (s *Simulation) Run() error {
	return s.RunUntil(simtime.Max)
}

// RunUntil runs the simulation until the queue empties or the next event's
// fire time would exceed stopAt, whichever comes first.
func (s *Simulation) RunUntil(stopAt simtime.SimTime) error {
	for {
		s.processControlMessages()

		if s.state == control.Completed {
			return nil
		}
		if s.state == control.Paused {
			time.Sleep(pausedPollInterval)
			continue
		}

		next, has := s.queue.Peek()
		if !has {
			return nil
		}
		if simtime.Less(stopAt, next.Time) {
			return nil
		}

		_, ok, err := s.Step()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if s.state == control.Stepping {
			s.state = control.Paused
		}
	}
}

func (s *Simulation) processControlMessages() {
	if s.controlCh == nil {
		return
	}
	for {
		msg, ok := s.controlCh.TryRecv()
		if !ok {
			return
		}
		s.handleControlMessage(msg)
	}
}

func (s *Simulation) handleControlMessage(msg control.Msg) {
	switch msg.Kind {
	case control.Pause:
		s.state = control.Paused
	case control.Resume:
		s.state = control.Running
	case control.Step:
		s.state = control.Stepping
	case control.KillNode:
		s.scheduleImmediateFault(event.FaultInternal{Kind: event.FaultCrash, NodeID: msg.NodeID, Duration: simtime.Max})
	case control.RestartNode:
		s.scheduleImmediateFault(event.FaultInternal{Kind: event.FaultRestart, NodeID: msg.NodeID})
	case control.InjectPartition:
		s.scheduleImmediateFault(event.FaultInternal{Kind: event.FaultPartition, Sets: msg.Sets})
	case control.HealPartition:
		s.scheduleImmediateFault(event.FaultInternal{Kind: event.FaultHealPartition})
	case control.SetSpeed:
		// Wall-clock pacing is a transport-layer concern; the kernel itself
		// is speed-agnostic, so SetSpeed is accepted and ignored here; the
		// requested speed is not stored.
	}
}

func (s *Simulation) scheduleImmediateFault(internal event.FaultInternal) {
	if _, err := s.ScheduleAt(s.clock, event.Fault{Internal: internal}, event.FaultDiscriminant()); err != nil {
		s.recordErr(err)
	}
}
