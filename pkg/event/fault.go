package event

import "github.com/lucaskim/ftsim/pkg/simtime"

// DelayKind enumerates the delay distribution families: Const, Uniform,
// Normal, Pareto.
type DelayKind int

const (
	DelayConst DelayKind = iota
	DelayUniform
	DelayNormal
	DelayPareto
)

// DelaySpec is a declarative delay distribution. Only the fields that
// apply to Kind are meaningful; the rest are zero.
type DelaySpec struct {
	Kind  DelayKind
	Const simtime.SimTime // DelayConst
	Lo    simtime.SimTime // DelayUniform
	Hi    simtime.SimTime // DelayUniform
	Mu    float64         // DelayNormal: mean, nanoseconds
	Sigma float64         // DelayNormal: stddev, nanoseconds
	Scale float64         // DelayPareto
	Shape float64         // DelayPareto
}

// StoreFaultKind enumerates which storage fault rate a StoreFault event
// updates.
type StoreFaultKind int

const (
	StoreFaultFsyncFail StoreFaultKind = iota
	StoreFaultFsyncDelay
	StoreFaultWriteError
	StoreFaultReadError
	StoreFaultTornWrite
	StoreFaultStaleRead
)

// LinkModelChangeKind enumerates the kinds of live link-model update a
// LinkModelUpdate fault may apply.
type LinkModelChangeKind int

const (
	LinkModelSetDelay LinkModelChangeKind = iota
	LinkModelSetDrop
	LinkModelSetDuplicate
	LinkModelSetCorrupt
)

// LinkModelChange carries one live update to a link's fault model.
type LinkModelChange struct {
	Kind  LinkModelChangeKind
	Delay DelaySpec // LinkModelSetDelay
	Rate  float64   // LinkModelSetDrop / SetDuplicate / SetCorrupt
}

// FaultInternalKind selects which of the closed set of internal fault
// variants a FaultInternal carries. FaultInternal is a tagged struct
// standing in for what would be a sum type in a language with one: only
// the fields of the variant selected by Kind are meaningful.
type FaultInternalKind int

const (
	FaultCrash FaultInternalKind = iota
	FaultRestart
	FaultPartition
	FaultHealPartition
	FaultLinkModelUpdate
	FaultClockSkew
	FaultStoreFault
	FaultByzantineFlip
	FaultBroadcastBytes
	FaultCustom
)

// FaultInternal is a single internal fault event payload.
type FaultInternal struct {
	Kind FaultInternalKind

	// Crash
	NodeID   simtime.NodeID
	Duration simtime.SimTime

	// Partition
	Sets [][]simtime.NodeID

	// LinkModelUpdate
	LinkID simtime.LinkID
	Change LinkModelChange

	// ClockSkew
	SkewNs int64

	// StoreFault
	StoreKind StoreFaultKind
	Rate      float64

	// ByzantineFlip
	Enabled bool

	// BroadcastBytes
	PayloadHex string
	ProtoTag   *uint16

	// Custom
	Name string
	Args map[string]any
}
