package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreAppendAndReadLog(t *testing.T) {
	m := NewMemStore()
	idx, err := m.AppendLog(LogRecord{Term: 1, Data: []byte("a")})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx)

	rec, err := m.ReadLog(idx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "a", string(rec.Data))
}

func TestMemStoreKVRoundTrip(t *testing.T) {
	m := NewMemStore()
	require.NoError(t, m.KVPut([]byte("k"), []byte("v")))
	v, err := m.KVGet([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}

func TestFaultModelClampBounds(t *testing.T) {
	fm := &FaultModel{WriteErrRate: 2, ReadErrRate: -1}
	fm.Clamp()
	assert.Equal(t, 1.0, fm.WriteErrRate)
	assert.Equal(t, 0.0, fm.ReadErrRate)
}

func alwaysRoll(only FaultKind) func(FaultKind, float64) bool {
	return func(kind FaultKind, _ float64) bool { return kind == only }
}

func neverRoll(FaultKind, float64) bool { return false }

func TestFaultyViewAppendLogChecksWriteErrorBeforeTornWrite(t *testing.T) {
	inner := NewMemStore()
	var hinted []FaultKind
	fv := NewFaultyView(inner, &FaultModel{WriteErrRate: 1, TornWriteRate: 1}, alwaysRoll(FaultWriteError),
		func(kind FaultKind) { hinted = append(hinted, kind) })

	_, err := fv.AppendLog(LogRecord{})
	assert.Error(t, err)
	assert.Equal(t, []FaultKind{FaultWriteError}, hinted, "write_error short-circuits before torn_write is checked")
}

func TestFaultyViewAppendLogFallsThroughToTornWrite(t *testing.T) {
	inner := NewMemStore()
	var hinted []FaultKind
	fv := NewFaultyView(inner, &FaultModel{TornWriteRate: 1}, alwaysRoll(FaultTornWrite),
		func(kind FaultKind) { hinted = append(hinted, kind) })

	_, err := fv.AppendLog(LogRecord{})
	assert.Error(t, err)
	assert.Equal(t, []FaultKind{FaultTornWrite}, hinted)
}

func TestFaultyViewAppendLogDelegatesWhenNoFaultFires(t *testing.T) {
	inner := NewMemStore()
	fv := NewFaultyView(inner, &FaultModel{}, neverRoll, nil)

	idx, err := fv.AppendLog(LogRecord{Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx)
}

func TestFaultyViewReadLogStaleReadReturnsNilWithoutError(t *testing.T) {
	inner := NewMemStore()
	inner.AppendLog(LogRecord{Data: []byte("x")})
	fv := NewFaultyView(inner, &FaultModel{StaleReadRate: 1}, alwaysRoll(FaultStaleRead), nil)

	rec, err := fv.ReadLog(0)
	assert.NoError(t, err)
	assert.Nil(t, rec, "a stale read returns no record but is not itself an error")
}

func TestFaultyViewReadLogReadErrorTakesPriorityOverStaleRead(t *testing.T) {
	inner := NewMemStore()
	var hinted []FaultKind
	fv := NewFaultyView(inner, &FaultModel{ReadErrRate: 1, StaleReadRate: 1}, alwaysRoll(FaultReadError),
		func(kind FaultKind) { hinted = append(hinted, kind) })

	_, err := fv.ReadLog(0)
	assert.Error(t, err)
	assert.Equal(t, []FaultKind{FaultReadError}, hinted)
}

func TestFaultyViewFSyncFailTakesPriorityOverDelay(t *testing.T) {
	inner := NewMemStore()
	fv := NewFaultyView(inner, &FaultModel{FsyncFailRate: 1, FsyncDelayRate: 1}, alwaysRoll(FaultFsyncFail), nil)
	assert.Error(t, fv.FSync())
}

func TestFaultyViewKVPassesThroughUntouched(t *testing.T) {
	inner := NewMemStore()
	fv := NewFaultyView(inner, &FaultModel{WriteErrRate: 1}, alwaysRoll(FaultWriteError), nil)

	require.NoError(t, fv.KVPut([]byte("k"), []byte("v")))
	v, err := fv.KVGet([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}
