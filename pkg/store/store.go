// Package store implements the per-node log+KV storage view and the
// fault-injection wrapper around it.
package store

import (
	"github.com/lucaskim/ftsim/pkg/simerr"
)

// LogRecord is one entry in a node's append-only log.
type LogRecord struct {
	Term uint64
	Data []byte
}

// View is the surface a protocol sees through ProtoCtx.store(): an
// append-only log with contiguous indices, plus a small key-value store.
type View interface {
	AppendLog(rec LogRecord) (uint64, error)
	ReadLog(idx uint64) (*LogRecord, error)
	KVPut(k, v []byte) error
	KVGet(k []byte) ([]byte, error)
	FSync() error
}

// MemStore is a deterministic, in-memory View: an ordered log slice and a
// map keyed by string(k) (Go map iteration order is irrelevant here since
// no operation iterates the map; every access is by explicit key).
type MemStore struct {
	log []LogRecord
	kv  map[string][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{kv: make(map[string][]byte)}
}

// AppendLog appends rec and returns its index.
func (m *MemStore) AppendLog(rec LogRecord) (uint64, error) {
	idx := uint64(len(m.log))
	m.log = append(m.log, rec)
	return idx, nil
}

// ReadLog returns the record at idx, or nil if idx is out of range.
func (m *MemStore) ReadLog(idx uint64) (*LogRecord, error) {
	if idx >= uint64(len(m.log)) {
		return nil, nil
	}
	rec := m.log[idx]
	return &rec, nil
}

// KVPut stores v under k, copying both so the caller may reuse its buffers.
func (m *MemStore) KVPut(k, v []byte) error {
	kc := append([]byte(nil), k...)
	vc := append([]byte(nil), v...)
	m.kv[string(kc)] = vc
	return nil
}

// KVGet returns the value stored under k, or nil if absent.
func (m *MemStore) KVGet(k []byte) ([]byte, error) {
	v, ok := m.kv[string(k)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// FSync is a no-op for an in-memory store.
func (m *MemStore) FSync() error { return nil }

var _ View = (*MemStore)(nil)

// FaultModel holds per-node injection rates, each in [0, 1] after
// validation clamps it.
type FaultModel struct {
	FsyncFailRate  float64
	FsyncDelayRate float64
	WriteErrRate   float64
	ReadErrRate    float64
	TornWriteRate  float64
	StaleReadRate  float64
}

// Clamp restricts every rate to [0, 1].
func (m *FaultModel) Clamp() {
	clamp := func(r float64) float64 {
		switch {
		case r < 0:
			return 0
		case r > 1:
			return 1
		default:
			return r
		}
	}
	m.FsyncFailRate = clamp(m.FsyncFailRate)
	m.FsyncDelayRate = clamp(m.FsyncDelayRate)
	m.WriteErrRate = clamp(m.WriteErrRate)
	m.ReadErrRate = clamp(m.ReadErrRate)
	m.TornWriteRate = clamp(m.TornWriteRate)
	m.StaleReadRate = clamp(m.StaleReadRate)
}

// Roller describes a single labeled Bernoulli draw. FaultyView does not
// use it: it takes a roll function instead (see NewFaultyView).
// pkg/rng.Discipline does not implement Roller, since its Bernoulli takes
// an rng.Site rather than a RollSite.
type Roller interface {
	Bernoulli(site RollSite, p float64) bool
}

// RollSite is the site type Roller takes, an alias for any so this
// package does not import pkg/rng. The kernel binds each draw to a real
// rng.Site in the roll function it builds in EngineCtx.Store.
type RollSite = any

// FaultyView wraps an inner View and injects faults deterministically:
// each applicable rate draws one Bernoulli at a per-node labeled site,
// in the order append/read perform their own checks before delegating
// to the inner view.
type FaultyView struct {
	inner  View
	model  *FaultModel
	roll   func(kind FaultKind, p float64) bool
	onHint func(kind FaultKind)
}

// FaultKind names which rate a FaultyView draw is checking, so the
// caller-supplied roll function can build the right rng.Site.
type FaultKind int

const (
	FaultFsyncFail FaultKind = iota
	FaultFsyncDelay
	FaultWriteError
	FaultReadError
	FaultTornWrite
	FaultStaleRead
)

// NewFaultyView builds a FaultyView. roll is called with the rate already
// looked up from model; it must itself skip the draw when p==0 (pkg/rng's
// Discipline.Bernoulli already does this), preserving the determinism
// invariant that a zero rate never advances the RNG. onHint, if non-nil,
// is invoked whenever a fault fires, letting the caller (the kernel's
// EngineCtx.Store) bump a telemetry counter without this package
// depending on telemetry.
func NewFaultyView(inner View, model *FaultModel, roll func(kind FaultKind, p float64) bool, onHint func(kind FaultKind)) *FaultyView {
	return &FaultyView{inner: inner, model: model, roll: roll, onHint: onHint}
}

func (f *FaultyView) hint(kind FaultKind) {
	if f.onHint != nil {
		f.onHint(kind)
	}
}

// AppendLog checks write_error then torn_write before delegating.
func (f *FaultyView) AppendLog(rec LogRecord) (uint64, error) {
	if f.roll(FaultWriteError, f.model.WriteErrRate) {
		f.hint(FaultWriteError)
		return 0, simerr.NewStoreFaultInjected()
	}
	if f.roll(FaultTornWrite, f.model.TornWriteRate) {
		f.hint(FaultTornWrite)
		return 0, simerr.NewStoreFaultInjected()
	}
	return f.inner.AppendLog(rec)
}

// ReadLog checks read_error then stale_read before delegating.
func (f *FaultyView) ReadLog(idx uint64) (*LogRecord, error) {
	if f.roll(FaultReadError, f.model.ReadErrRate) {
		f.hint(FaultReadError)
		return nil, simerr.NewStoreFaultInjected()
	}
	if f.roll(FaultStaleRead, f.model.StaleReadRate) {
		f.hint(FaultStaleRead)
		return nil, nil
	}
	return f.inner.ReadLog(idx)
}

// KVPut passes through untouched: no fault applies on the KV path,
// only on the log and fsync paths.
func (f *FaultyView) KVPut(k, v []byte) error { return f.inner.KVPut(k, v) }

// KVGet passes through untouched.
func (f *FaultyView) KVGet(k []byte) ([]byte, error) { return f.inner.KVGet(k) }

// FSync checks fsync_fail, then fsync_delay, which simply records a
// latency hint for simple backends that cannot model extra delay.
func (f *FaultyView) FSync() error {
	if f.roll(FaultFsyncFail, f.model.FsyncFailRate) {
		f.hint(FaultFsyncFail)
		return simerr.NewStoreFaultInjected()
	}
	if f.roll(FaultFsyncDelay, f.model.FsyncDelayRate) {
		f.hint(FaultFsyncDelay)
	}
	return f.inner.FSync()
}

var _ View = (*FaultyView)(nil)
