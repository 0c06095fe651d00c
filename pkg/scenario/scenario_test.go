package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/sdk"
	"github.com/lucaskim/ftsim/pkg/simtime"
)

func TestValidateRejectsOutOfRangeNode(t *testing.T) {
	s := &Scenario{
		Initial:    InitialSpec{Nodes: 2},
		Directives: []Directive{{Kind: DirectiveAt, Action: Action{Kind: ActionCrash, Node: 5}}},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node 5")
}

func TestValidateRejectsOverlappingPartitionSets(t *testing.T) {
	s := &Scenario{
		Initial: InitialSpec{Nodes: 3},
		Directives: []Directive{{
			Kind:   DirectiveAt,
			Action: Action{Kind: ActionPartition, Sets: [][]simtime.NodeID{{0, 1}, {1, 2}}},
		}},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestValidateRejectsPartitionCoveringAllNodes(t *testing.T) {
	s := &Scenario{
		Initial: InitialSpec{Nodes: 2},
		Directives: []Directive{{
			Kind:   DirectiveAt,
			Action: Action{Kind: ActionPartition, Sets: [][]simtime.NodeID{{0}, {1}}},
		}},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict subset")
}

func TestValidateRejectsRateOutOfRange(t *testing.T) {
	s := &Scenario{
		Initial:    InitialSpec{Nodes: 1},
		Directives: []Directive{{Kind: DirectiveAt, Action: Action{Kind: ActionStoreFault, Node: 0, Rate: 1.5}}},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of [0, 1]")
}

func TestValidateAcceptsWellFormedScenario(t *testing.T) {
	s := &Scenario{
		Initial: InitialSpec{Nodes: 3},
		Directives: []Directive{
			{Kind: DirectiveAt, Action: Action{Kind: ActionPartition, Sets: [][]simtime.NodeID{{0}, {1}}}},
			{Kind: DirectiveAfter, Action: Action{Kind: ActionHealPartition}},
		},
	}
	assert.NoError(t, s.Validate())
}

func TestResolveAtUsesAbsoluteTime(t *testing.T) {
	s := &Scenario{Directives: []Directive{
		{Kind: DirectiveAt, At: simtime.FromMillis(50), Action: Action{Kind: ActionHealPartition}},
	}}
	resolved := s.Resolve()
	require.Len(t, resolved, 1)
	assert.Equal(t, simtime.FromMillis(50), resolved[0].At)
	assert.Equal(t, event.FaultHealPartition, resolved[0].Internal.Kind)
}

func TestResolveAfterChainsFromPreviousOffset(t *testing.T) {
	s := &Scenario{Directives: []Directive{
		{Kind: DirectiveAfter, Offset: simtime.FromMillis(10), Action: Action{Kind: ActionHealPartition}},
		{Kind: DirectiveAfter, Offset: simtime.FromMillis(10), Action: Action{Kind: ActionHealPartition}},
	}}
	resolved := s.Resolve()
	require.Len(t, resolved, 2)
	assert.Equal(t, simtime.FromMillis(10), resolved[0].At)
	assert.Equal(t, simtime.FromMillis(20), resolved[1].At, "second After chains from the first, not from epoch")
}

func TestResolveEveryExpandsRepeats(t *testing.T) {
	s := &Scenario{Directives: []Directive{
		{Kind: DirectiveEvery, Period: simtime.FromMillis(5), Repeats: 3, Action: Action{Kind: ActionHealPartition}},
	}}
	resolved := s.Resolve()
	require.Len(t, resolved, 3)
	assert.Equal(t, simtime.Epoch, resolved[0].At)
	assert.Equal(t, simtime.FromMillis(5), resolved[1].At)
	assert.Equal(t, simtime.FromMillis(10), resolved[2].At)
}

func TestScaledOffsetSaturatesOnOverflow(t *testing.T) {
	at, ok := scaledOffset(simtime.Max, simtime.FromMillis(1), 1)
	assert.False(t, ok)
	assert.Equal(t, simtime.Max, at)
}

func TestActionToInternalMapsBroadcastBytesProtoTag(t *testing.T) {
	pt := sdk.ProtoTag(7)
	a := Action{Kind: ActionBroadcastBytes, PayloadHex: "deadbeef", ProtoTag: &pt}
	internal := actionToInternal(a)

	require.NotNil(t, internal.ProtoTag)
	assert.Equal(t, uint16(7), *internal.ProtoTag)
	assert.Equal(t, "deadbeef", internal.PayloadHex)
}
