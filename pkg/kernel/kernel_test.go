package kernel

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaskim/ftsim/pkg/control"
	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/network"
	"github.com/lucaskim/ftsim/pkg/node"
	"github.com/lucaskim/ftsim/pkg/sdk"
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/store"
	"github.com/lucaskim/ftsim/pkg/telemetry"
	"github.com/lucaskim/ftsim/pkg/world"
)

// dummyProto counts lifecycle calls and echoes every message back to the
// sender once, so tests can drive a real Deliver/TimerFired round trip.
type dummyProto struct {
	inits    int
	received []string
	timers   []simtime.TimerID
	faults   []sdk.FaultEventKind
}

func (p *dummyProto) Name() string          { return "dummy" }
func (p *dummyProto) ProtoTag() sdk.ProtoTag { return 1 }
func (p *dummyProto) Init(ctx sdk.ProtoCtx)  { p.inits++ }
func (p *dummyProto) OnMessage(ctx sdk.ProtoCtx, src simtime.NodeID, payload []byte) error {
	p.received = append(p.received, string(payload))
	ctx.SendRaw(src, 1, []byte("ack"))
	return nil
}
func (p *dummyProto) OnTimer(ctx sdk.ProtoCtx, id simtime.TimerID) { p.timers = append(p.timers, id) }
func (p *dummyProto) OnFault(ctx sdk.ProtoCtx, f sdk.FaultEvent)   { p.faults = append(p.faults, f.Kind) }

func twoNodeSim(t *testing.T) (*Simulation, *dummyProto, *dummyProto) {
	t.Helper()
	net := network.FromEdges([]network.EdgePair{{Src: 0, Dst: 1}, {Src: 1, Dst: 0}})
	w := &world.World{Net: net}

	p0, p1 := &dummyProto{}, &dummyProto{}
	n0 := node.New(0, p0, store.NewMemStore())
	n0.SetPeers([]simtime.NodeID{1})
	n1 := node.New(1, p1, store.NewMemStore())
	n1.SetPeers([]simtime.NodeID{0})
	w.AddNode(n0)
	w.AddNode(n1)

	tel := telemetry.NewBus(prometheus.NewRegistry(), 2, nil)
	sim := New(1, w, tel, nil)
	require.NoError(t, sim.Init())
	return sim, p0, p1
}

func TestInitCallsEveryNodeInOrder(t *testing.T) {
	_, p0, p1 := twoNodeSim(t)
	assert.Equal(t, 1, p0.inits)
	assert.Equal(t, 1, p1.inits)
}

func TestStepOnEmptyQueueReturnsNotOK(t *testing.T) {
	sim, _, _ := twoNodeSim(t)
	_, ok, err := sim.Step()
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestStepDeliversMessageToDestination(t *testing.T) {
	sim, _, p1 := twoNodeSim(t)
	env := event.Envelope{Src: 0, Dst: 1, MsgID: 1, Payload: []byte("hello")}
	_, err := sim.ScheduleAt(simtime.FromMillis(1), event.Deliver{Env: env, LinkID: 0}, event.DeliveryDiscriminant(0))
	require.NoError(t, err)

	clock, ok, err := sim.Step()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, simtime.FromMillis(1), clock)
	assert.Equal(t, []string{"hello"}, p1.received)
}

func TestStepDispatchesTimerFired(t *testing.T) {
	sim, p0, _ := twoNodeSim(t)
	n0 := sim.world.MustNode(0)
	n0.Timers.Add(9)
	_, err := sim.ScheduleAt(simtime.FromMillis(1), event.TimerFired{NodeID: 0, TimerID: 9}, event.TimerDiscriminant(0))
	require.NoError(t, err)

	_, ok, err := sim.Step()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []simtime.TimerID{9}, p0.timers)
}

func TestStepHandlesCrashFault(t *testing.T) {
	sim, p0, _ := twoNodeSim(t)
	_, err := sim.ScheduleAt(simtime.Epoch, event.Fault{Internal: event.FaultInternal{Kind: event.FaultCrash, NodeID: 0}}, event.FaultDiscriminant())
	require.NoError(t, err)

	_, ok, err := sim.Step()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, node.Down, sim.world.MustNode(0).Status)
	assert.Equal(t, []sdk.FaultEventKind{sdk.FaultNodeCrashed}, p0.faults)
}

func TestStepHandlesPartitionAndHeal(t *testing.T) {
	sim, _, _ := twoNodeSim(t)
	_, err := sim.ScheduleAt(simtime.Epoch, event.Fault{Internal: event.FaultInternal{
		Kind: event.FaultPartition, Sets: [][]simtime.NodeID{{0}, {1}},
	}}, event.FaultDiscriminant())
	require.NoError(t, err)
	_, ok, err := sim.Step()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, sim.world.Net.LinkBetween(0, 1).Faults.Partitioned)

	_, err = sim.ScheduleAt(simtime.FromMillis(1), event.Fault{Internal: event.FaultInternal{Kind: event.FaultHealPartition}}, event.FaultDiscriminant())
	require.NoError(t, err)
	_, ok, err = sim.Step()
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, sim.world.Net.LinkBetween(0, 1).Faults.Partitioned)
}

func TestRunUntilStopsAtHorizon(t *testing.T) {
	sim, _, _ := twoNodeSim(t)
	_, err := sim.ScheduleAt(simtime.FromMillis(100), event.UISnapshotTick{}, event.UISnapshotDiscriminant())
	require.NoError(t, err)

	require.NoError(t, sim.RunUntil(simtime.FromMillis(10)))
	assert.True(t, simtime.Less(sim.Now(), simtime.FromMillis(100)))
}

func TestControlChannelPauseThenResumeChangesState(t *testing.T) {
	sim, _, _ := twoNodeSim(t)
	ch := control.NewChannel(4)
	sim.SetControlChannel(ch)

	ch.TrySend(control.Msg{Kind: control.Pause})
	sim.processControlMessages()
	assert.Equal(t, control.Paused, sim.state)

	ch.TrySend(control.Msg{Kind: control.Resume})
	sim.processControlMessages()
	assert.Equal(t, control.Running, sim.state)
}

func TestControlChannelKillNodeSchedulesImmediateCrash(t *testing.T) {
	sim, _, _ := twoNodeSim(t)
	ch := control.NewChannel(4)
	sim.SetControlChannel(ch)

	ch.TrySend(control.Msg{Kind: control.KillNode, NodeID: 0})
	sim.processControlMessages()

	_, ok, err := sim.Step()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, node.Down, sim.world.MustNode(0).Status)
}
