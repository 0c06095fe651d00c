package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/rng"
	"github.com/lucaskim/ftsim/pkg/simtime"
)

func TestSetPartitionOnlySeparatesCrossSetLinks(t *testing.T) {
	net := NewNet()
	abID := net.AddLink(0, 1, DefaultLinkFaultModel())
	baID := net.AddLink(1, 0, DefaultLinkFaultModel())
	acID := net.AddLink(0, 2, DefaultLinkFaultModel())

	net.SetPartition([][]simtime.NodeID{{0}, {1}})

	assert.True(t, net.Link(abID).Faults.Partitioned)
	assert.True(t, net.Link(baID).Faults.Partitioned)
	assert.False(t, net.Link(acID).Faults.Partitioned, "node 2 is in no set, so its links are untouched")

	net.HealPartition()
	assert.False(t, net.Link(abID).Faults.Partitioned)
	assert.False(t, net.Link(baID).Faults.Partitioned)
}

func TestSetPartitionLeavesSameSetLinksAlone(t *testing.T) {
	net := NewNet()
	id := net.AddLink(0, 1, DefaultLinkFaultModel())
	net.SetPartition([][]simtime.NodeID{{0, 1}, {2}})
	assert.False(t, net.Link(id).Faults.Partitioned)
}

func TestUpdateLinkModel(t *testing.T) {
	net := NewNet()
	id := net.AddLink(0, 1, DefaultLinkFaultModel())

	net.UpdateLinkModel(id, event.LinkModelChange{Kind: event.LinkModelSetDrop, Rate: 0.5})
	assert.Equal(t, 0.5, net.Link(id).Faults.Drop)

	net.UpdateLinkModel(id, event.LinkModelChange{Kind: event.LinkModelSetDuplicate, Rate: 0.25})
	assert.Equal(t, 0.25, net.Link(id).Faults.Duplicate)

	net.UpdateLinkModel(id, event.LinkModelChange{Kind: event.LinkModelSetCorrupt, Rate: 0.1})
	assert.Equal(t, 0.1, net.Link(id).Faults.Corrupt)

	net.UpdateLinkModel(id, event.LinkModelChange{
		Kind:  event.LinkModelSetDelay,
		Delay: event.DelaySpec{Kind: event.DelayConst, Const: simtime.FromMillis(99)},
	})
	assert.Equal(t, simtime.FromMillis(99), net.Link(id).Faults.BaseDelay.Const)
}

func TestUpdateLinkModelOnUnknownLinkIsNoop(t *testing.T) {
	net := NewNet()
	assert.NotPanics(t, func() {
		net.UpdateLinkModel(simtime.LinkID(999), event.LinkModelChange{Kind: event.LinkModelSetDrop, Rate: 1})
	})
}

type fakeScheduler struct {
	now       simtime.SimTime
	scheduled []scheduledCall
}

type scheduledCall struct {
	at      simtime.SimTime
	payload event.Payload
}

func (f *fakeScheduler) Now() simtime.SimTime { return f.now }

func (f *fakeScheduler) ScheduleAt(at simtime.SimTime, payload event.Payload, _ event.Discriminant) {
	f.scheduled = append(f.scheduled, scheduledCall{at: at, payload: payload})
}

func envBetween(src, dst simtime.NodeID) event.Envelope {
	return event.Envelope{Src: src, Dst: dst, MsgID: 1}
}

type fakeDropRecorder struct {
	reasons []string
}

func (f *fakeDropRecorder) IncrementDropped(reason string) {
	f.reasons = append(f.reasons, reason)
}

func newDiscipline(seed uint64) *rng.Discipline {
	source := rng.NewSource(seed)
	recorder := rng.NewRecorder(seed)
	return rng.NewDiscipline(source, recorder)
}

func TestSendSkipsPartitionedLink(t *testing.T) {
	net := NewNet()
	net.AddLink(0, 1, DefaultLinkFaultModel())
	net.SetPartition([][]simtime.NodeID{{0}, {1}})

	sched := &fakeScheduler{}
	drops := &fakeDropRecorder{}
	require.NoError(t, net.Send(sched, newDiscipline(1), drops, envBetween(0, 1)))
	assert.Empty(t, sched.scheduled)
	assert.Equal(t, []string{"partition"}, drops.reasons)
}

func TestSendSkipsOnDropRoll(t *testing.T) {
	net := NewNet()
	model := DefaultLinkFaultModel()
	model.Drop = 1
	net.AddLink(0, 1, model)

	sched := &fakeScheduler{}
	drops := &fakeDropRecorder{}
	require.NoError(t, net.Send(sched, newDiscipline(1), drops, envBetween(0, 1)))
	assert.Empty(t, sched.scheduled, "drop probability of 1 must always drop")
	assert.Equal(t, []string{"drop_probability"}, drops.reasons)
}

func TestSendSchedulesOneDeliveryWithoutDuplication(t *testing.T) {
	net := NewNet()
	model := DefaultLinkFaultModel()
	model.Jitter = event.DelaySpec{Kind: event.DelayConst, Const: simtime.Epoch}
	net.AddLink(0, 1, model)

	sched := &fakeScheduler{now: simtime.Epoch}
	drops := &fakeDropRecorder{}
	require.NoError(t, net.Send(sched, newDiscipline(1), drops, envBetween(0, 1)))

	require.Len(t, sched.scheduled, 1)
	assert.Empty(t, drops.reasons)
	deliver, ok := sched.scheduled[0].payload.(event.Deliver)
	require.True(t, ok)
	assert.Equal(t, simtime.NodeID(0), deliver.Env.Src)
	assert.Equal(t, model.BaseDelay.Const, sched.scheduled[0].at)
}

func TestSendSchedulesDuplicateWithSameMsgID(t *testing.T) {
	net := NewNet()
	model := DefaultLinkFaultModel()
	model.Jitter = event.DelaySpec{Kind: event.DelayConst, Const: simtime.Epoch}
	model.Duplicate = 1
	net.AddLink(0, 1, model)

	sched := &fakeScheduler{now: simtime.Epoch}
	drops := &fakeDropRecorder{}
	require.NoError(t, net.Send(sched, newDiscipline(1), drops, envBetween(0, 1)))

	require.Len(t, sched.scheduled, 2, "duplicate probability of 1 must always duplicate")
	first := sched.scheduled[0].payload.(event.Deliver)
	second := sched.scheduled[1].payload.(event.Deliver)
	assert.Equal(t, first.Env.MsgID, second.Env.MsgID)
	assert.Equal(t, first.LinkID, second.LinkID)
}

func TestSendRejectsPayloadOverMTU(t *testing.T) {
	net := NewNet()
	model := DefaultLinkFaultModel()
	model.MTUBytes = 4
	net.AddLink(0, 1, model)

	env := envBetween(0, 1)
	env.Payload = []byte("too long")

	sched := &fakeScheduler{}
	drops := &fakeDropRecorder{}
	err := net.Send(sched, newDiscipline(1), drops, env)
	require.Error(t, err)
	assert.Empty(t, sched.scheduled)
}

func TestSendAllowsPayloadAtOrUnderMTU(t *testing.T) {
	net := NewNet()
	model := DefaultLinkFaultModel()
	model.MTUBytes = 4
	net.AddLink(0, 1, model)

	env := envBetween(0, 1)
	env.Payload = []byte("abcd")

	sched := &fakeScheduler{now: simtime.Epoch}
	drops := &fakeDropRecorder{}
	require.NoError(t, net.Send(sched, newDiscipline(1), drops, env))
	assert.Len(t, sched.scheduled, 1)
}

func TestSendOnMissingLinkIsNoop(t *testing.T) {
	net := NewNet()
	sched := &fakeScheduler{}
	drops := &fakeDropRecorder{}
	require.NoError(t, net.Send(sched, newDiscipline(1), drops, envBetween(0, 1)))
	assert.Empty(t, sched.scheduled)
}

func TestSampleDelayConstIsFixed(t *testing.T) {
	d := newDiscipline(1)
	spec := event.DelaySpec{Kind: event.DelayConst, Const: simtime.FromMillis(7)}
	assert.Equal(t, simtime.FromMillis(7), SampleDelay(d, rng.GlobalSite(rng.SiteNetDelayBase), spec))
}

func TestSampleDelayUniformStaysInRange(t *testing.T) {
	d := newDiscipline(1)
	spec := event.DelaySpec{Kind: event.DelayUniform, Lo: simtime.FromMillis(10), Hi: simtime.FromMillis(20)}
	for i := 0; i < 20; i++ {
		out := SampleDelay(d, rng.GlobalSite(rng.SiteNetDelayBase), spec)
		assert.True(t, simtime.Compare(out, spec.Lo) >= 0)
		assert.True(t, simtime.Compare(out, spec.Hi) <= 0)
	}
}

func TestSampleDelayUniformCollapsesWhenLoGEHi(t *testing.T) {
	d := newDiscipline(1)
	spec := event.DelaySpec{Kind: event.DelayUniform, Lo: simtime.FromMillis(20), Hi: simtime.FromMillis(10)}
	assert.Equal(t, spec.Lo, SampleDelay(d, rng.GlobalSite(rng.SiteNetDelayBase), spec))
}

func TestSampleDelayNormalNeverNegative(t *testing.T) {
	d := newDiscipline(1)
	spec := event.DelaySpec{Kind: event.DelayNormal, Mu: 0, Sigma: 1}
	for i := 0; i < 50; i++ {
		out := SampleDelay(d, rng.GlobalSite(rng.SiteNetDelayBase), spec)
		assert.True(t, simtime.Compare(out, simtime.Epoch) >= 0)
	}
}

func TestSampleDelayParetoPositive(t *testing.T) {
	d := newDiscipline(1)
	spec := event.DelaySpec{Kind: event.DelayPareto, Shape: 2, Scale: 5}
	out := SampleDelay(d, rng.GlobalSite(rng.SiteNetDelayBase), spec)
	assert.True(t, simtime.Compare(out, simtime.Epoch) >= 0)
}

func TestFromEdgesBuildsDefaultLinks(t *testing.T) {
	net := FromEdges([]EdgePair{{Src: 0, Dst: 1}, {Src: 1, Dst: 0}})
	assert.Len(t, net.AllLinks(), 2)
	assert.NotNil(t, net.LinkBetween(0, 1))
	assert.ElementsMatch(t, []simtime.NodeID{1}, net.PeersOf(0))
}
