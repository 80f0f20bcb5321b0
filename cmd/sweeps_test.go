//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/internal/monitoring"
)

func TestFormatSweepsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	sweeps := []model.Sweep{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			PostalCode: "90001",
			Mode:       model.ScanModeFull,
			Status:     model.SweepStatusComplete,
			Summary: &model.SweepSummary{
				Outcome: model.OutcomePartial,
				Devices: []model.DeviceRecord{{Identity: "a"}, {Identity: "b"}},
			},
			CreatedAt: now,
			UpdatedAt: now.Add(12 * time.Second),
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			PostalCode: "00000",
			Mode:       model.ScanModeQuick,
			Status:     model.SweepStatusNotFound,
			CreatedAt:  now.Add(-time.Hour),
			UpdatedAt:  now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatSweepsList(&buf, sweeps)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "ZIP")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "90001")
	assert.Contains(t, out, "full")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "2025-06-15 10:30")
	assert.Contains(t, out, "12s")
	assert.Contains(t, out, "not_found")
}

func sampleSweep() *model.Sweep {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	return &model.Sweep{
		ID:         "sweep-1",
		PostalCode: "90001",
		Mode:       model.ScanModeQuick,
		Status:     model.SweepStatusComplete,
		Summary:    &model.SweepSummary{Outcome: model.OutcomeEmpty, Queries: 1},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestWriteSweep_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSweep(&buf, sampleSweep(), "json"))
	assert.Contains(t, buf.String(), `"postal_code": "90001"`)
	assert.Contains(t, buf.String(), `"outcome": "empty"`)
}

func TestWriteSweep_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSweep(&buf, sampleSweep(), "yaml"))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "sweep-1", got["id"])
	assert.Equal(t, "complete", got["status"])

	summary, ok := got["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "empty", summary["outcome"])
}

func TestWriteSweep_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := writeSweep(&buf, sampleSweep(), "toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "toml")
}

func TestFormatSweepStats(t *testing.T) {
	snap := &monitoring.MetricsSnapshot{
		SweepsTotal:    6,
		SweepsComplete: 4,
		OutcomeFound:   2,
		OutcomePartial: 1,
		OutcomeFailed:  1,
		SweepsNotFound: 2,
		QueriesTotal:   12,
		QueriesFailed:  3,
		QueryFailRate:  0.25,
		DevicesFound:   7,
		AvgDurationMs:  1500,
		LookbackHours:  24,
	}

	var buf bytes.Buffer
	formatSweepStats(&buf, snap)
	out := buf.String()

	assert.Contains(t, out, "24h")
	assert.Contains(t, out, "Total sweeps:")
	assert.Contains(t, out, "3 of 12 (25.0%)")
	assert.Contains(t, out, "Avg duration:")
	assert.Contains(t, out, "1.5s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcdefgh", truncateID("abcdefgh-1234"))
	assert.Equal(t, "short", truncateID("short"))
}
