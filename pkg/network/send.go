package network

import (
	"math"

	"github.com/lucaskim/ftsim/pkg/event"
	"github.com/lucaskim/ftsim/pkg/rng"
	"github.com/lucaskim/ftsim/pkg/simerr"
	"github.com/lucaskim/ftsim/pkg/simtime"
)

// Scheduler is the minimal kernel surface Send needs: the current clock
// and the ability to enqueue a Deliver event at a future time.
type Scheduler interface {
	Now() simtime.SimTime
	ScheduleAt(at simtime.SimTime, payload event.Payload, disc event.Discriminant)
}

// DropRecorder is the minimal telemetry surface Send needs to count a
// dropped delivery by reason label ("partition", "drop_probability").
// Satisfied by *telemetry.Bus.
type DropRecorder interface {
	IncrementDropped(reason string)
}

// SampleDelay draws a duration from spec using d at site. Const is a
// fixed value with no draw. Uniform draws one Float64 and scales it into
// [Lo, Hi] (Lo >= Hi collapses to Lo). Normal and Pareto sample via
// closed-form transforms of the underlying uniform stream so both
// remain exactly reproducible under a fixed seed (see DESIGN.md).
func SampleDelay(d *rng.Discipline, site rng.Site, spec event.DelaySpec) simtime.SimTime {
	switch spec.Kind {
	case event.DelayConst:
		return spec.Const
	case event.DelayUniform:
		if simtime.Compare(spec.Lo, spec.Hi) >= 0 {
			return spec.Lo
		}
		span, underflowed := simtime.Sub(spec.Hi, spec.Lo)
		if underflowed {
			return spec.Lo
		}
		u := d.Float64(site)
		offsetNs := uint64(u * spanNanosApprox(span))
		out, overflowed := simtime.Add(spec.Lo, simtime.FromNanos(offsetNs))
		if overflowed {
			return spec.Hi
		}
		return out
	case event.DelayNormal:
		// Box-Muller transform: two independent uniforms at the same site
		// produce one standard normal sample, scaled by sigma and shifted
		// by mu. Negative results clamp to zero (a delay cannot be
		// negative).
		u1 := d.Float64(site)
		u2 := d.Float64(site)
		if u1 <= 0 {
			u1 = minPositiveFloat
		}
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
		ns := spec.Mu + z*spec.Sigma
		if ns < 0 {
			ns = 0
		}
		return simtime.FromNanos(uint64(ns))
	case event.DelayPareto:
		// Inverse-transform sampling: for CDF F(x) = 1 - (scale/x)^shape,
		// x = scale / (1-u)^(1/shape). A single uniform draw fully
		// determines the sample.
		u := d.Float64(site)
		shape := spec.Shape
		if shape <= 0 {
			shape = 1
		}
		scale := spec.Scale
		if scale <= 0 {
			scale = 1
		}
		x := scale / math.Pow(1-u, 1/shape)
		if x < 0 {
			x = 0
		}
		return simtime.FromNanos(uint64(x))
	default:
		return simtime.Epoch
	}
}

const minPositiveFloat = 1e-300

// spanNanosApprox reduces a SimTime span to a float64 nanosecond count.
// Delay spans in practice fit comfortably within 64 bits (milliseconds to
// seconds of simulated network delay), so the high half is dropped; this
// is a display/sampling-only approximation, never used for the
// authoritative clock arithmetic in simtime itself.
func spanNanosApprox(span simtime.SimTime) float64 {
	if span.Hi != 0 {
		return math.MaxFloat64
	}
	return float64(span.Lo)
}

// Send applies link's fault model to env and schedules 0, 1, or 2
// Deliver events, following a precise sequence: MTU check, partition
// check, drop trial, base delay + jitter scheduling, duplicate trial,
// and (if triggered) a second Deliver with an independently sampled
// delay but the same msg_id and discriminant as the first. Every drop is
// recorded against drops with a reason label; a non-nil error means the
// payload exceeded the link's configured MTU and nothing was scheduled.
func (n *Net) Send(sched Scheduler, disc *rng.Discipline, drops DropRecorder, env event.Envelope) error {
	link := n.LinkBetween(env.Src, env.Dst)
	if link == nil {
		return nil
	}

	if mtu := link.Faults.MTUBytes; mtu > 0 && len(env.Payload) > mtu {
		return &simerr.NetError{Kind: simerr.NetExceedsMTU, MTU: mtu}
	}

	if link.Faults.Partitioned {
		drops.IncrementDropped("partition")
		return nil
	}

	if disc.Bernoulli(rng.GlobalSite(rng.SiteNetDrop), link.Faults.Drop) {
		drops.IncrementDropped("drop_probability")
		return nil
	}

	baseDelay := SampleDelay(disc, rng.GlobalSite(rng.SiteNetDelayBase), link.Faults.BaseDelay)
	jitter := SampleDelay(disc, rng.GlobalSite(rng.SiteNetDelayJitter), link.Faults.Jitter)
	totalDelay, overflowed := simtime.Add(baseDelay, jitter)
	if overflowed {
		totalDelay = simtime.Max
	}
	deliveryTime, overflowed := simtime.Add(sched.Now(), totalDelay)
	if overflowed {
		deliveryTime = simtime.Max
	}

	discriminant := event.DeliveryDiscriminant(env.Src)
	sched.ScheduleAt(deliveryTime, event.Deliver{Env: env, LinkID: link.ID}, discriminant)

	if disc.Bernoulli(rng.GlobalSite(rng.SiteNetDuplicate), link.Faults.Duplicate) {
		dupDelay := SampleDelay(disc, rng.GlobalSite(rng.SiteNetDelayDup), link.Faults.BaseDelay)
		dupDeliveryTime, overflowed := simtime.Add(sched.Now(), dupDelay)
		if overflowed {
			dupDeliveryTime = simtime.Max
		}
		sched.ScheduleAt(dupDeliveryTime, event.Deliver{Env: env, LinkID: link.ID}, discriminant)
	}
	return nil
}
