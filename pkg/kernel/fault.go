package kernel

import (
	"encoding/hex"

	"github.com/sirupsen/logrus"

	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/network"
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/telemetry"
)

// handleFault applies one internal fault to the world, mirroring the
// original Simulation::handle_fault dispatch exactly: Partition and
// HealPartition mutate the network directly with no node involved;
// ClockSkew, StoreFault, Crash, Restart, and ByzantineFlip mutate node
// state and then notify the hosted protocol via Node.ApplyFault;
// LinkModelUpdate mutates a link's fault model with no protocol
// notification; BroadcastBytes bypasses the network fault model entirely;
// Custom is currently a no-op, logged only.
func (s *Simulation) handleFault(internal event.FaultInternal) {
	s.telemetry.IncrementMetric(telemetry.MetricFaultsInjected)

	switch internal.Kind {
	case event.FaultPartition:
		s.world.Net.SetPartition(internal.Sets)
	case event.FaultHealPartition:
		s.world.Net.HealPartition()
	case event.FaultLinkModelUpdate:
		s.world.Net.UpdateLinkModel(internal.LinkID, internal.Change)
	case event.FaultBroadcastBytes:
		s.handleBroadcastBytes(internal)
	case event.FaultCrash:
		s.applyNodeFault(internal.NodeID, internal)
		if internal.Duration.Hi != 0 || internal.Duration.Lo != 0 {
			if restartAt, overflowed := simtime.Add(s.clock, internal.Duration); !overflowed {
				restart := event.FaultInternal{Kind: event.FaultRestart, NodeID: internal.NodeID}
				if _, err := s.ScheduleAt(restartAt, event.Fault{Internal: restart}, event.FaultDiscriminant()); err != nil {
					s.recordErr(err)
				}
			}
		}
	case event.FaultRestart, event.FaultClockSkew, event.FaultStoreFault, event.FaultByzantineFlip:
		if internal.Kind == event.FaultStoreFault {
			if n, err := s.world.Node(internal.NodeID); err == nil {
				n.ApplyStoreRate(internal.StoreKind, internal.Rate)
			}
		}
		s.applyNodeFault(internal.NodeID, internal)
	case event.FaultCustom:
		s.log.WithFields(logrus.Fields{"name": internal.Name}).Info("custom fault directive (no-op)")
	}
}

func (s *Simulation) applyNodeFault(nodeID simtime.NodeID, internal event.FaultInternal) {
	n, err := s.world.Node(nodeID)
	if err != nil {
		s.recordErr(err)
		return
	}
	ctx := s.engineCtx(nodeID)
	n.ApplyFault(ctx, internal)
	s.recordErr(ctx.err)
}

// handleBroadcastBytes decodes the hex payload and schedules an immediate
// Deliver to every node in the world, bypassing Net.Send's fault model
// entirely: each envelope carries simtime.NodeIDMax as Src and
// network.BroadcastLinkID as LinkID so it is visibly distinct from an
// ordinary protocol send.
func (s *Simulation) handleBroadcastBytes(internal event.FaultInternal) {
	payload, err := hex.DecodeString(internal.PayloadHex)
	if err != nil {
		s.log.WithError(err).Warn("broadcast_bytes fault has invalid hex payload")
		return
	}
	var tag uint16
	if internal.ProtoTag != nil {
		tag = *internal.ProtoTag
	}
	for i := 0; i < s.world.Len(); i++ {
		dst := simtime.NodeID(i)
		msgID, err := s.idGen.NextMsgID()
		if err != nil {
			s.recordErr(err)
			return
		}
		env := event.Envelope{
			Src:        simtime.NodeIDMax,
			Dst:        dst,
			ProtoTag:   tag,
			Payload:    payload,
			MsgID:      msgID,
			CreateTime: s.clock,
		}
		if _, err := s.ScheduleAt(s.clock, event.Deliver{Env: env, LinkID: network.BroadcastLinkID}, event.DeliveryDiscriminant(simtime.NodeIDMax)); err != nil {
			s.recordErr(err)
			return
		}
	}
}
