// Package kernel implements the Simulation orchestrator: the master
// clock, the priority queue, the step loop, and the EngineCtx bridge that
// gives protocol callbacks their capability-scoped view of the world.
// Ordinary Go pointer receivers let a node/net call reborrow the same
// Simulation without any of the unsafe-pointer juggling a borrow-checked
// language would need for the equivalent access pattern.
package kernel

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/lucaskim/ftsim/pkg/control"
	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/node"
	"github.com/lucaskim/ftsim/pkg/rng"
	"github.com/lucaskim/ftsim/pkg/simerr"
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/telemetry"
	"github.com/lucaskim/ftsim/pkg/world"
)

// SnapshotCadence is the fixed interval between UiSnapshotTick events.
var SnapshotCadence = simtime.FromMillis(50)

// Simulation is the master orchestrator owning the clock, the event
// queue, the world, and the single seeded randomness stream.
type Simulation struct {
	clock simtime.SimTime
	queue *event.Queue
	world *world.World

	rngSource   *rng.Source
	rngRecorder *rng.Recorder
	disc        *rng.Discipline

	idGen     *simtime.IDGen
	telemetry *telemetry.Bus
	state     control.State
	controlCh *control.Channel

	// pendingErr is set by a handler that hit a fatal condition (an
	// ID-counter overflow, or a reference to a node outside the world),
	// possibly deep inside an EngineCtx call that cannot
	// itself return an error through the sdk.ProtoCtx interface; Step
	// surfaces it to the caller once the current event finishes.
	pendingErr error

	log *logrus.Entry
}

// New builds a Simulation over world w, seeded for determinism, reporting
// through tel.
func New(seed uint64, w *world.World, tel *telemetry.Bus, log *logrus.Logger) *Simulation {
	source := rng.NewSource(seed)
	recorder := rng.NewRecorder(seed)
	return NewWithDiscipline(source, recorder, rng.NewDiscipline(source, recorder), w, tel, log)
}

// NewWithDiscipline builds a Simulation over a Discipline the caller has
// already used to make pre-world decisions (e.g. sampling an
// Erdos-Renyi topology) from the same single seeded stream the rest of
// the run draws from, preserving the one-stream-per-run invariant that a
// fresh New call alone could not.
func NewWithDiscipline(source *rng.Source, recorder *rng.Recorder, disc *rng.Discipline, w *world.World, tel *telemetry.Bus, log *logrus.Logger) *Simulation {
	if log == nil {
		log = logrus.New()
	}
	return &Simulation{
		clock:       simtime.Epoch,
		queue:       event.NewQueue(),
		world:       w,
		rngSource:   source,
		rngRecorder: recorder,
		disc:        disc,
		idGen:       simtime.NewIDGen(),
		telemetry:   tel,
		state:       control.Running,
		log:         log.WithField("component", "kernel"),
	}
}

// SetControlChannel attaches an external controller's channel; Run and
// RunUntil drain pending control messages before each step (Step itself
// does not read the channel).
func (s *Simulation) SetControlChannel(ch *control.Channel) { s.controlCh = ch }

// ControlChannel returns the simulation's control channel, or nil if none
// has been attached.
func (s *Simulation) ControlChannel() *control.Channel { return s.controlCh }

// Now returns the master clock.
func (s *Simulation) Now() simtime.SimTime { return s.clock }

// Telemetry returns the telemetry bus.
func (s *Simulation) Telemetry() *telemetry.Bus { return s.telemetry }

// World returns the world.
func (s *Simulation) World() *world.World { return s.world }

// Recorder exposes the RNG determinism-audit recorder.
func (s *Simulation) Recorder() *rng.Recorder { return s.rngRecorder }

// ScheduleAt enqueues payload at time at with the given discriminant,
// returning its fresh EventID. This is the only way any part of the
// kernel or a protocol callback inserts work into the future.
func (s *Simulation) ScheduleAt(at simtime.SimTime, payload event.Payload, disc event.Discriminant) (simtime.EventID, error) {
	id, err := s.idGen.NextEventID()
	if err != nil {
		return 0, err
	}
	seq, err := s.idGen.NextInsertionSeq()
	if err != nil {
		return 0, err
	}
	s.queue.Push(event.Queued{ID: id, Time: at, InsertSeq: seq, Discriminant: disc, Payload: payload})
	return id, nil
}

// Init runs every node's protocol Init callback, in NodeID order.
func (s *Simulation) Init() error {
	for i := 0; i < s.world.Len(); i++ {
		nid := simtime.NodeID(i)
		ctx := s.engineCtx(nid)
		s.world.MustNode(nid).Init(ctx)
		if ctx.err != nil {
			return ctx.err
		}
	}
	return nil
}

// Step pops and processes exactly one event, advancing the clock to its
// fire time. ok is false when the queue was empty; err is non-nil only on
// an unrecoverable engine condition (a clock regression, an ID-counter
// overflow, or a reference to a node outside the world).
func (s *Simulation) Step() (t simtime.SimTime, ok bool, err error) {
	queued, has := s.queue.Pop()
	if !has {
		return s.clock, false, nil
	}
	if simtime.Less(queued.Time, s.clock) {
		err := &simerr.ClockRegressionError{EventID: uint64(queued.ID), Clock: s.clock, FireTime: queued.Time}
		s.log.WithField("event_id", queued.ID).WithError(err).Error("scheduled event fires before the current clock")
		return s.clock, true, err
	}
	s.clock = queued.Time
	s.telemetry.SetCurrentTime(s.clock, queued.ID)

	switch payload := queued.Payload.(type) {
	case event.Deliver:
		s.handleDeliver(payload)
	case event.TimerFired:
		s.handleTimerFired(payload)
	case event.Fault:
		s.handleFault(payload.Internal)
	case event.UISnapshotTick:
		s.handleSnapshotTick()
	}
	if s.pendingErr != nil {
		err, s.pendingErr = s.pendingErr, nil
		return s.clock, true, err
	}
	return s.clock, true, nil
}

func (s *Simulation) handleDeliver(d event.Deliver) {
	dst := d.Env.Dst
	isFaultInjected := d.Env.Src == simtime.NodeIDMax
	if isFaultInjected {
		s.log.WithFields(logrus.Fields{"dst": dst, "msg_id": d.Env.MsgID}).Info("fault-injected message delivered")
	} else {
		s.log.WithFields(logrus.Fields{"src": d.Env.Src, "dst": dst, "msg_id": d.Env.MsgID}).Info("message delivered")
	}
	nid := dst
	ctx := s.engineCtx(nid)
	n, err := s.world.Node(nid)
	if err != nil {
		s.recordErr(err)
		return
	}
	if err := n.HandleMessage(ctx, d.Env); err != nil {
		if errors.Is(err, node.ErrNodeDown) {
			s.telemetry.IncrementDropped("node_down")
		}
		s.log.WithError(err).Debug("message not delivered to protocol")
	} else {
		s.telemetry.IncrementMetric(telemetry.MetricMessagesDelivered)
	}
	s.recordErr(ctx.err)
}

func (s *Simulation) handleTimerFired(t event.TimerFired) {
	s.log.WithFields(logrus.Fields{"node_id": t.NodeID, "timer_id": t.TimerID}).Info("timer fired")
	n, err := s.world.Node(t.NodeID)
	if err != nil {
		s.recordErr(err)
		return
	}
	ctx := s.engineCtx(t.NodeID)
	if n.HandleTimer(ctx, t.TimerID) {
		s.telemetry.IncrementMetric(telemetry.MetricTimersFired)
	}
	s.recordErr(ctx.err)
}

func (s *Simulation) handleSnapshotTick() {
	snap := s.telemetry.BuildSnapshot(s.world, s.clock)
	s.telemetry.PublishSnapshot(snap)
	next, overflowed := simtime.Add(s.clock, SnapshotCadence)
	if overflowed {
		next = simtime.Max
	}
	if _, err := s.ScheduleAt(next, event.UISnapshotTick{}, event.UISnapshotDiscriminant()); err != nil {
		s.recordErr(err)
	}
}

func (s *Simulation) recordErr(err error) {
	if err != nil {
		s.pendingErr = err
	}
}
