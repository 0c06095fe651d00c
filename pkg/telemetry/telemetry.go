// Package telemetry is the simulator's observability bus: best-effort
// snapshot publishing, a bounded recent-events ring buffer, per-node
// visualization key/values, and run counters backed by real
// prometheus.Counter instruments, the way client_golang is used for
// operational counters elsewhere in the ecosystem.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/lucaskim/ftsim/pkg/node"
	"github.com/lucaskim/ftsim/pkg/simtime"
)

const recentEventsCap = 100

// NodeSnap is a point-in-time view of one node.
type NodeSnap struct {
	ID        simtime.NodeID
	Status    node.Status
	Timers    int
	Byzantine bool
	Custom    map[string]string
}

// LinkSnap is a point-in-time view of one network link.
type LinkSnap struct {
	ID            simtime.LinkID
	Src           simtime.NodeID
	Dst           simtime.NodeID
	IsPartitioned bool
}

// LogSnap is one recent event retained for visualization.
type LogSnap struct {
	EventID   simtime.EventID
	Time      simtime.SimTime
	EventType string
	Details   string
	NodeID    *simtime.NodeID
}

// MetricsSnapshot is a read-only copy of the run counters at the moment a
// Snapshot was built.
type MetricsSnapshot struct {
	MessagesSent      uint64
	MessagesDelivered uint64
	TimersFired       uint64
	FaultsInjected    uint64
}

// Snapshot is a full point-in-time view of the simulation, the payload
// published at each UiSnapshotTick.
type Snapshot struct {
	Time         simtime.SimTime
	Nodes        []NodeSnap
	Links        []LinkSnap
	RecentEvents []LogSnap
	Metrics      MetricsSnapshot
}

// Subscriber is a recipient of published snapshots. SendSnapshot must
// never block the caller for long; a websocket hub implements this by
// buffering per-connection with a bounded channel.
type Subscriber interface {
	SendSnapshot(snap Snapshot)
}

// Bus is the central telemetry hub one Simulation owns.
type Bus struct {
	mu           sync.Mutex
	time         simtime.SimTime
	eventID      simtime.EventID
	nodeKVs      []map[string]string
	recentEvents []LogSnap
	metrics      MetricsSnapshot

	subscribers []Subscriber

	log *logrus.Entry

	counterMessagesSent      prometheus.Counter
	counterMessagesDeliv     prometheus.Counter
	counterTimersFired       prometheus.Counter
	counterFaultsInjected    prometheus.Counter
	counterMessagesDroppedBy *prometheus.CounterVec
}

// NewBus builds a Bus for a world with numNodes nodes, registering its
// counters into reg (pass prometheus.NewRegistry() for test isolation, or
// prometheus.DefaultRegisterer in production).
func NewBus(reg prometheus.Registerer, numNodes int, log *logrus.Logger) *Bus {
	if log == nil {
		log = logrus.New()
	}
	b := &Bus{
		nodeKVs: make([]map[string]string, numNodes),
		log:     log.WithField("component", "telemetry"),

		counterMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ftsim_messages_sent_total",
			Help: "Total messages sent by protocol code via send_raw/broadcast_raw.",
		}),
		counterMessagesDeliv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ftsim_messages_delivered_total",
			Help: "Total Deliver events dispatched to a node.",
		}),
		counterTimersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ftsim_timers_fired_total",
			Help: "Total timers dispatched to a protocol (excludes canceled timers).",
		}),
		counterFaultsInjected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ftsim_faults_injected_total",
			Help: "Total internal fault events processed.",
		}),
		counterMessagesDroppedBy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ftsim_messages_dropped_total",
			Help: "Total messages dropped by the network model, labeled by reason.",
		}, []string{"reason"}),
	}
	for i := range b.nodeKVs {
		b.nodeKVs[i] = make(map[string]string)
	}
	if reg != nil {
		reg.MustRegister(
			b.counterMessagesSent,
			b.counterMessagesDeliv,
			b.counterTimersFired,
			b.counterFaultsInjected,
			b.counterMessagesDroppedBy,
		)
	}
	return b
}

// Subscribe registers sub to receive future published snapshots.
func (b *Bus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

// PublishSnapshot hands snap to every subscriber; a slow or full
// subscriber must not hold up the simulation loop, so subscribers own
// their own non-blocking delivery.
func (b *Bus) PublishSnapshot(snap Snapshot) {
	b.mu.Lock()
	subs := append([]Subscriber(nil), b.subscribers...)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.SendSnapshot(snap)
	}
}

// SetCurrentTime records the clock value associated with the event
// currently being processed, used to timestamp subsequent LogEvent calls.
func (b *Bus) SetCurrentTime(t simtime.SimTime, eventID simtime.EventID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.time = t
	b.eventID = eventID
}

// LogNodeKV attaches a visualization key/value to nodeID, overwriting any
// previous value under the same key.
func (b *Bus) LogNodeKV(nodeID simtime.NodeID, key, val string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(nodeID) >= len(b.nodeKVs) {
		return
	}
	b.nodeKVs[nodeID][key] = val
}

// LogEvent appends one entry to the recent-events ring buffer, evicting
// the oldest entry once the buffer reaches recentEventsCap.
func (b *Bus) LogEvent(eventType, details string, nodeID *simtime.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := LogSnap{EventID: b.eventID, Time: b.time, EventType: eventType, Details: details, NodeID: nodeID}
	if len(b.recentEvents) >= recentEventsCap {
		b.recentEvents = b.recentEvents[1:]
	}
	b.recentEvents = append(b.recentEvents, entry)
	b.log.WithFields(logrus.Fields{
		"event_type": eventType,
		"time":       b.time.String(),
	}).Debug(details)
}

// Metric is a named run counter, kept as typed constants instead of
// magic strings.
type Metric int

const (
	MetricMessagesSent Metric = iota
	MetricMessagesDelivered
	MetricTimersFired
	MetricFaultsInjected
)

// IncrementMetric bumps both the in-process snapshot counter and the
// matching prometheus counter for metric.
func (b *Bus) IncrementMetric(metric Metric) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch metric {
	case MetricMessagesSent:
		b.metrics.MessagesSent++
		b.counterMessagesSent.Inc()
	case MetricMessagesDelivered:
		b.metrics.MessagesDelivered++
		b.counterMessagesDeliv.Inc()
	case MetricTimersFired:
		b.metrics.TimersFired++
		b.counterTimersFired.Inc()
	case MetricFaultsInjected:
		b.metrics.FaultsInjected++
		b.counterFaultsInjected.Inc()
	}
}

// IncrementDropped bumps the labeled drop counter, for reasons like
// "partition" or "drop_probability".
func (b *Bus) IncrementDropped(reason string) {
	b.counterMessagesDroppedBy.WithLabelValues(reason).Inc()
}

// WorldView is the minimal surface BuildSnapshot needs from pkg/world,
// kept here (rather than importing pkg/world directly) so pkg/telemetry
// has no dependency on pkg/network's NetLink type beyond this shape.
type WorldView interface {
	Len() int
	NodeAt(i int) *node.Node
	Links() []LinkSnap
}

// BuildSnapshot assembles a full Snapshot of world at time.
func (b *Bus) BuildSnapshot(world WorldView, time simtime.SimTime) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	nodes := make([]NodeSnap, 0, world.Len())
	for i := 0; i < world.Len(); i++ {
		n := world.NodeAt(i)
		kv := make(map[string]string, len(b.nodeKVs[i]))
		for k, v := range b.nodeKVs[i] {
			kv[k] = v
		}
		nodes = append(nodes, NodeSnap{
			ID:        n.ID,
			Status:    n.Status,
			Timers:    n.Timers.Len(),
			Byzantine: n.IsByzantine,
			Custom:    kv,
		})
	}

	return Snapshot{
		Time:         time,
		Nodes:        nodes,
		Links:        world.Links(),
		RecentEvents: append([]LogSnap(nil), b.recentEvents...),
		Metrics:      b.metrics,
	}
}
