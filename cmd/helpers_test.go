//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/camera-recon/internal/config"
	"github.com/sells-group/camera-recon/internal/delivery"
	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/internal/store"
	"github.com/sells-group/camera-recon/internal/sweep"
)

func ptr(f float64) *float64 { return &f }

// recordingSink captures every delivery.
type recordingSink struct {
	mu  sync.Mutex
	got []delivery.Delivery
	err error
}

func (s *recordingSink) Deliver(_ context.Context, d delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, d)
	return s.err
}

func (s *recordingSink) deliveries() []delivery.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]delivery.Delivery, len(s.got))
	copy(out, s.got)
	return out
}

func sampleReport(id, postal string) *sweep.Report {
	start := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	return &sweep.Report{
		SweepID:    id,
		PostalCode: postal,
		Mode:       model.ScanModeQuick,
		Center:     model.Coordinates{Latitude: 33.97, Longitude: -118.25},
		Queries:    []model.QuerySpec{{Signature: "rtsp", Query: "port:554 has_screenshot:true geo:33.97,-118.25"}},
		Records: []model.DeviceRecord{
			{Identity: "1.2.3.4", Organization: "Acme ISP", City: "Los Angeles", Latitude: ptr(33.97), Longitude: ptr(-118.25), Port: 554},
		},
		Payloads: []model.DisplayPayload{
			{Identity: "1.2.3.4", Text: "1.2.3.4 Acme ISP Los Angeles", Image: []byte{0xff, 0xd8}, ImageMime: "image/jpeg"},
		},
		Map:        &model.MapArtifact{Name: sweep.MapName(id), HTML: []byte("<html></html>")},
		Outcome:    model.OutcomeFound,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}
}

// testStore opens a migrated SQLite store in a temp dir.
func testStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// withConfig installs c as the package config for the duration of the test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	orig := cfg
	cfg = c
	t.Cleanup(func() { cfg = orig })
}
