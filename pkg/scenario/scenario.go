// Package scenario defines the declarative experiment description: the
// scenario's initial world shape, its topology, and the timed sequence of
// fault directives to schedule.
package scenario

import (
	"fmt"

	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/sdk"
	"github.com/lucaskim/ftsim/pkg/simerr"
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/topology"
)

// InitialSpec describes the world's starting shape.
type InitialSpec struct {
	Nodes int        `yaml:"nodes" toml:"nodes"`
	Proto sdk.ProtoTag `yaml:"proto" toml:"proto"`
}

// Scenario is the top-level, file-loadable experiment description.
type Scenario struct {
	Name       string          `yaml:"name" toml:"name"`
	Seed       *uint64         `yaml:"seed,omitempty" toml:"seed,omitempty"`
	Initial    InitialSpec     `yaml:"initial" toml:"initial"`
	Topology   topology.Spec   `yaml:"topology" toml:"topology"`
	Directives []Directive     `yaml:"directives" toml:"directives"`
	StopAt     *simtime.SimTime `yaml:"stop_at,omitempty" toml:"stop_at,omitempty"`
}

// DirectiveKind enumerates the three timing forms a directive may take.
type DirectiveKind int

const (
	DirectiveAt DirectiveKind = iota
	DirectiveAfter
	DirectiveEvery
)

// Directive schedules one Action under one of three timing rules.
type Directive struct {
	Kind DirectiveKind

	At      simtime.SimTime // DirectiveAt
	Offset  simtime.SimTime // DirectiveAfter
	Period  simtime.SimTime // DirectiveEvery
	Repeats uint64          // DirectiveEvery

	Action Action
}

// ActionKind enumerates the surface fault actions a scenario may
// schedule.
type ActionKind int

const (
	ActionPartition ActionKind = iota
	ActionHealPartition
	ActionCrash
	ActionRestart
	ActionLinkDelay
	ActionLinkDrop
	ActionBroadcastBytes
	ActionClockSkew
	ActionStoreFault
	ActionByzantineFlip
	ActionCustom
)

// Action is one surface-level fault directive. Only the fields Kind uses
// are meaningful, mirroring the tagged-struct shape used throughout
// pkg/event.
type Action struct {
	Kind ActionKind

	Sets [][]simtime.NodeID // Partition

	Node     simtime.NodeID  // Crash, Restart, ClockSkew, StoreFault, ByzantineFlip
	Duration simtime.SimTime // Crash

	Link simtime.LinkID  // LinkDelay, LinkDrop
	Dist event.DelaySpec // LinkDelay
	P    float64         // LinkDrop

	PayloadHex string    // BroadcastBytes
	ProtoTag   *sdk.ProtoTag // BroadcastBytes

	SkewNs int64 // ClockSkew

	StoreKind event.StoreFaultKind // StoreFault
	Rate      float64              // StoreFault

	Enabled bool // ByzantineFlip

	Name string         // Custom
	Args map[string]any // Custom
}

// nodeIDRef returns the node ID an action references, if any, for range
// validation.
func (a Action) nodeIDRef() (simtime.NodeID, bool) {
	switch a.Kind {
	case ActionCrash, ActionRestart, ActionClockSkew, ActionStoreFault, ActionByzantineFlip:
		return a.Node, true
	default:
		return 0, false
	}
}

func (d Directive) action() Action { return d.Action }

// Validate checks the scenario for logical consistency: node references
// in range, partition sets disjoint and covering a strict subset of
// nodes, and rate fields within [0, 1]. Validation errors are
// configuration errors: they abort before any event fires.
func (s *Scenario) Validate() error {
	numNodes := s.Initial.Nodes
	for i, d := range s.Directives {
		action := d.action()

		if nodeID, ok := action.nodeIDRef(); ok {
			if int(nodeID) >= numNodes {
				return &simerr.ConfigError{
					Kind:    simerr.ConfigValidation,
					Name:    s.Name,
					Message: fmt.Sprintf("directive %d references node %d; max is %d", i, nodeID, numNodes-1),
				}
			}
		}

		if action.Kind == ActionPartition {
			seen := make(map[simtime.NodeID]struct{})
			total := 0
			for _, set := range action.Sets {
				if len(set) == 0 {
					return &simerr.ConfigError{
						Kind:    simerr.ConfigValidation,
						Name:    s.Name,
						Message: fmt.Sprintf("directive %d contains an empty partition set", i),
					}
				}
				for _, nid := range set {
					if _, dup := seen[nid]; dup {
						return &simerr.ConfigError{
							Kind:    simerr.ConfigValidation,
							Name:    s.Name,
							Message: fmt.Sprintf("directive %d has duplicate node %d in partition sets", i, nid),
						}
					}
					seen[nid] = struct{}{}
				}
				total += len(set)
			}
			if total >= numNodes {
				return &simerr.ConfigError{
					Kind:    simerr.ConfigValidation,
					Name:    s.Name,
					Message: fmt.Sprintf("directive %d partition must cover a strict subset of nodes", i),
				}
			}
		}

		if action.Kind == ActionStoreFault || action.Kind == ActionLinkDrop {
			if action.Rate < 0 || action.Rate > 1 {
				return &simerr.ConfigError{
					Kind:    simerr.ConfigValidation,
					Name:    s.Name,
					Message: fmt.Sprintf("directive %d rate %f out of [0, 1]", i, action.Rate),
				}
			}
			if action.Kind == ActionLinkDrop && (action.P < 0 || action.P > 1) {
				return &simerr.ConfigError{
					Kind:    simerr.ConfigValidation,
					Name:    s.Name,
					Message: fmt.Sprintf("directive %d drop probability %f out of [0, 1]", i, action.P),
				}
			}
		}
	}
	if s.StopAt != nil && simtime.Less(*s.StopAt, simtime.Epoch) {
		return &simerr.ConfigError{Kind: simerr.ConfigValidation, Name: s.Name, Message: "stop_at must be non-negative"}
	}
	return nil
}

// Scheduled is one fully resolved (fire time, internal fault) pair ready
// to hand to a kernel's ScheduleAt.
type Scheduled struct {
	At       simtime.SimTime
	Internal event.FaultInternal
}

// Resolve expands every directive into its concrete Scheduled fault
// events: a total mapping from the scenario's surface syntax to the
// kernel's internal fault representation. After directives accumulate a
// running relative-time base, so a chain of After directives advances
// from each other rather than from the epoch every time.
func (s *Scenario) Resolve() []Scheduled {
	var out []Scheduled
	relativeBase := simtime.Epoch
	for _, d := range s.Directives {
		switch d.Kind {
		case DirectiveAt:
			out = append(out, Scheduled{At: d.At, Internal: actionToInternal(d.Action)})
		case DirectiveAfter:
			if next, overflowed := simtime.Add(relativeBase, d.Offset); !overflowed {
				relativeBase = next
			} else {
				relativeBase = simtime.Max
			}
			out = append(out, Scheduled{At: relativeBase, Internal: actionToInternal(d.Action)})
		case DirectiveEvery:
			for i := uint64(0); i < d.Repeats; i++ {
				at, ok := scaledOffset(relativeBase, d.Period, i)
				if !ok {
					at = simtime.Max
				}
				out = append(out, Scheduled{At: at, Internal: actionToInternal(d.Action)})
			}
		}
	}
	return out
}

// scaledOffset computes base + period*i with overflow saturating to Max,
// avoiding a 128-bit multiply by repeated addition; Every directives in
// practice repeat a small, bounded number of times.
func scaledOffset(base, period simtime.SimTime, i uint64) (simtime.SimTime, bool) {
	at := base
	for n := uint64(0); n < i; n++ {
		next, overflowed := simtime.Add(at, period)
		if overflowed {
			return simtime.Max, false
		}
		at = next
	}
	return at, true
}

func actionToInternal(a Action) event.FaultInternal {
	switch a.Kind {
	case ActionPartition:
		return event.FaultInternal{Kind: event.FaultPartition, Sets: a.Sets}
	case ActionHealPartition:
		return event.FaultInternal{Kind: event.FaultHealPartition}
	case ActionCrash:
		return event.FaultInternal{Kind: event.FaultCrash, NodeID: a.Node, Duration: a.Duration}
	case ActionRestart:
		return event.FaultInternal{Kind: event.FaultRestart, NodeID: a.Node}
	case ActionLinkDelay:
		return event.FaultInternal{
			Kind:   event.FaultLinkModelUpdate,
			LinkID: a.Link,
			Change: event.LinkModelChange{Kind: event.LinkModelSetDelay, Delay: a.Dist},
		}
	case ActionLinkDrop:
		return event.FaultInternal{
			Kind:   event.FaultLinkModelUpdate,
			LinkID: a.Link,
			Change: event.LinkModelChange{Kind: event.LinkModelSetDrop, Rate: a.P},
		}
	case ActionBroadcastBytes:
		var tag *uint16
		if a.ProtoTag != nil {
			v := uint16(*a.ProtoTag)
			tag = &v
		}
		return event.FaultInternal{Kind: event.FaultBroadcastBytes, PayloadHex: a.PayloadHex, ProtoTag: tag}
	case ActionClockSkew:
		return event.FaultInternal{Kind: event.FaultClockSkew, NodeID: a.Node, SkewNs: a.SkewNs}
	case ActionStoreFault:
		return event.FaultInternal{Kind: event.FaultStoreFault, NodeID: a.Node, StoreKind: a.StoreKind, Rate: a.Rate}
	case ActionByzantineFlip:
		return event.FaultInternal{Kind: event.FaultByzantineFlip, NodeID: a.Node, Enabled: a.Enabled}
	case ActionCustom:
		return event.FaultInternal{Kind: event.FaultCustom, Name: a.Name, Args: a.Args}
	default:
		return event.FaultInternal{Kind: event.FaultCustom, Name: "unknown"}
	}
}
