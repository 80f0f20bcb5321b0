package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestParseScanMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ScanMode
		wantErr bool
	}{
		{"quick", ScanModeQuick, false},
		{"FULL", ScanModeFull, false},
		{" Full ", ScanModeFull, false},
		{"deep", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseScanMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestMergedResultSet_FirstSeenWins(t *testing.T) {
	s := NewMergedResultSet()

	assert.True(t, s.Add(DeviceRecord{Identity: "1.2.3.4", Product: "A"}))
	assert.True(t, s.Add(DeviceRecord{Identity: "5.6.7.8", Product: "C"}))
	assert.False(t, s.Add(DeviceRecord{Identity: "1.2.3.4", Product: "B", City: "Los Angeles"}))

	rec, ok := s.Get("1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, "A", rec.Product)
	assert.Empty(t, rec.City)
	assert.Equal(t, 2, s.Len())
}

func TestMergedResultSet_InsertionOrder(t *testing.T) {
	s := NewMergedResultSet()
	for _, id := range []string{"c", "a", "b", "a", "c"} {
		s.Add(DeviceRecord{Identity: id})
	}

	var ids []string
	for _, r := range s.Records() {
		ids = append(ids, r.Identity)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestMergedResultSet_RejectsEmptyIdentity(t *testing.T) {
	s := NewMergedResultSet()
	assert.False(t, s.Add(DeviceRecord{Product: "orphan"}))
	assert.Equal(t, 0, s.Len())
}

func TestMergedResultSet_ZeroValueUsable(t *testing.T) {
	var s MergedResultSet
	assert.True(t, s.Add(DeviceRecord{Identity: "x"}))
	assert.Equal(t, 1, s.Len())

	var nilSet *MergedResultSet
	assert.Equal(t, 0, nilSet.Len())
	assert.Nil(t, nilSet.Records())
}

func TestDeviceRecord_Position(t *testing.T) {
	full := DeviceRecord{Identity: "a", Latitude: ptr(33.97), Longitude: ptr(-118.25)}
	pos, ok := full.Position()
	require.True(t, ok)
	assert.InDelta(t, 33.97, pos.Latitude, 1e-9)
	assert.InDelta(t, -118.25, pos.Longitude, 1e-9)

	half := DeviceRecord{Identity: "b", Latitude: ptr(33.97)}
	_, ok = half.Position()
	assert.False(t, ok)
	assert.False(t, half.HasLocation())
}

func TestClassifyOutcome(t *testing.T) {
	assert.Equal(t, OutcomeFound, ClassifyOutcome(3, 0))
	assert.Equal(t, OutcomePartial, ClassifyOutcome(3, 1))
	assert.Equal(t, OutcomeFailed, ClassifyOutcome(0, 2))
	assert.Equal(t, OutcomeEmpty, ClassifyOutcome(0, 0))
}

func TestSearchFailure_Error(t *testing.T) {
	f := SearchFailure{Query: QuerySpec{Signature: "dahua"}, Err: "rate limited"}
	assert.Equal(t, "search dahua: rate limited", f.Error())
}
