package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameSeedProducesSameSequence(t *testing.T) {
	a := NewSource(42)
	b := NewSource(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Next64(), b.Next64())
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a := NewSource(1)
	b := NewSource(2)
	assert.NotEqual(t, a.Next64(), b.Next64())
}

func TestBernoulliBoundaryCasesNeverDraw(t *testing.T) {
	source := NewSource(7)
	recorder := NewRecorder(7)
	disc := NewDiscipline(source, recorder)
	site := GlobalSite(SiteNetDrop)

	assert.False(t, disc.Bernoulli(site, 0))
	assert.True(t, disc.Bernoulli(site, 1))

	snapshot := recorder.Snapshot()
	assert.Empty(t, snapshot, "p==0 and p==1 must not advance the stream or record a draw")
}

func TestBernoulliRecordsOneDrawPerSite(t *testing.T) {
	source := NewSource(7)
	recorder := NewRecorder(7)
	disc := NewDiscipline(source, recorder)
	site := GlobalSite(SiteNetDrop)

	disc.Bernoulli(site, 0.5)
	disc.Bernoulli(site, 0.5)

	snapshot := recorder.Snapshot()
	assert.Len(t, snapshot, 1)
	assert.Equal(t, uint64(2), snapshot[0].Count)
}

func TestNodeSiteDistinctFromGlobalSite(t *testing.T) {
	a := NodeSite(SiteProtocolRNG, 0)
	b := GlobalSite(SiteProtocolRNG)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "protocol.rng_u64.node[0]", a.Label())
	assert.Equal(t, "protocol.rng_u64", b.Label())
}

func TestSnapshotIsSortedDeterministically(t *testing.T) {
	source := NewSource(1)
	recorder := NewRecorder(1)
	disc := NewDiscipline(source, recorder)

	disc.Uint64(NodeSite(SiteProtocolRNG, 3))
	disc.Uint64(NodeSite(SiteProtocolRNG, 1))
	disc.Uint64(GlobalSite(SiteNetDrop))

	snapshot := recorder.Snapshot()
	require := assert.New(t)
	require.Len(snapshot, 3)
	require.Equal(SiteNetDrop, snapshot[0].Site.Kind)
	require.Equal(int64(1), snapshot[1].Site.NodeID)
	require.Equal(int64(3), snapshot[2].Site.NodeID)
}
