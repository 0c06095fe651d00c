// Package engine wires a loaded scenario.Scenario into a ready-to-run
// kernel.Simulation: it expands the topology into a world, instantiates
// one protocol per node from a registry, resolves every directive into
// scheduled faults, and arms the first snapshot tick. This is the one
// place that needs to know about every core package at once.
package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/lucaskim/ftsim/pkg/control"
	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/kernel"
	"github.com/lucaskim/ftsim/pkg/network"
	"github.com/lucaskim/ftsim/pkg/node"
	"github.com/lucaskim/ftsim/pkg/rng"
	"github.com/lucaskim/ftsim/pkg/scenario"
	"github.com/lucaskim/ftsim/pkg/sdk"
	"github.com/lucaskim/ftsim/pkg/simerr"
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/store"
	"github.com/lucaskim/ftsim/pkg/telemetry"
	"github.com/lucaskim/ftsim/pkg/topology"
	"github.com/lucaskim/ftsim/pkg/world"
)

// erdosRenyiSampler adapts a rng.Discipline to topology.Sampler, labeling
// every inclusion draw at rng.SiteTopologyErdosRenyi.
type erdosRenyiSampler struct{ disc *rng.Discipline }

func (s erdosRenyiSampler) Bernoulli(p float64) bool {
	return s.disc.Bernoulli(rng.GlobalSite(rng.SiteTopologyErdosRenyi), p)
}

// Build constructs a fully wired Simulation from s, using registry to
// look up a Factory for s.Initial.Proto, reporting through tel and log.
// The returned Simulation has every node initialized and every directive
// already scheduled; the caller still owns calling Run/RunUntil.
func Build(s *scenario.Scenario, registry *sdk.Registry, tel *telemetry.Bus, log *logrus.Logger) (*kernel.Simulation, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	factory, ok := registry.Lookup(s.Initial.Proto)
	if !ok {
		return nil, &simerr.ProtocolNotRegisteredError{ProtoTag: uint16(s.Initial.Proto)}
	}

	seed := uint64(0)
	if s.Seed != nil {
		seed = *s.Seed
	}
	source := rng.NewSource(seed)
	recorder := rng.NewRecorder(seed)
	disc := rng.NewDiscipline(source, recorder)

	var sampler topology.Sampler
	if s.Topology.Kind == topology.ErdosRenyi {
		sampler = erdosRenyiSampler{disc: disc}
	}
	edges := topology.Build(s.Initial.Nodes, s.Topology, sampler)
	netEdges := make([]network.EdgePair, 0, len(edges))
	for _, e := range edges {
		netEdges = append(netEdges, network.EdgePair{Src: e.Src, Dst: e.Dst})
	}

	w := world.New(netEdges)
	peers := make(map[simtime.NodeID][]simtime.NodeID)
	for _, e := range edges {
		peers[e.Src] = append(peers[e.Src], e.Dst)
	}
	for i := 0; i < s.Initial.Nodes; i++ {
		nid := simtime.NodeID(i)
		n := node.New(nid, factory(), store.NewMemStore())
		n.SetPeers(peers[nid])
		w.AddNode(n)
	}

	sim := kernel.NewWithDiscipline(source, recorder, disc, w, tel, log)
	sim.SetControlChannel(control.NewChannel(64))

	for _, sched := range s.Resolve() {
		if _, err := sim.ScheduleAt(sched.At, event.Fault{Internal: sched.Internal}, event.FaultDiscriminant()); err != nil {
			return nil, err
		}
	}
	if _, err := sim.ScheduleAt(kernel.SnapshotCadence, event.UISnapshotTick{}, event.UISnapshotDiscriminant()); err != nil {
		return nil, err
	}

	if err := sim.Init(); err != nil {
		return nil, err
	}
	return sim, nil
}
