// Package monitoring watches sweep history for signs that the search
// backend or geocoder is unhealthy and raises webhook alerts.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/internal/store"
)

// MetricsSnapshot holds a point-in-time view of sweep health.
type MetricsSnapshot struct {
	// Sweeps created within the lookback window.
	SweepsTotal    int `json:"sweeps_total"`
	SweepsComplete int `json:"sweeps_complete"`
	SweepsNotFound int `json:"sweeps_not_found"`
	SweepsInFlight int `json:"sweeps_in_flight"`

	// Outcomes of complete sweeps.
	OutcomeFound   int `json:"outcome_found"`
	OutcomePartial int `json:"outcome_partial"`
	OutcomeEmpty   int `json:"outcome_empty"`
	OutcomeFailed  int `json:"outcome_failed"`

	// Query-level health across complete sweeps.
	QueriesTotal  int     `json:"queries_total"`
	QueriesFailed int     `json:"queries_failed"`
	QueryFailRate float64 `json:"query_fail_rate"`

	// NotFoundRate is not-found sweeps over finished sweeps.
	NotFoundRate  float64 `json:"not_found_rate"`
	DevicesFound  int     `json:"devices_found"`
	AvgDurationMs int64   `json:"avg_duration_ms"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished returns the number of sweeps that reached a terminal status.
func (s *MetricsSnapshot) Finished() int {
	return s.SweepsComplete + s.SweepsNotFound
}

// SweepLister is the slice of the store the collector reads.
type SweepLister interface {
	ListSweeps(ctx context.Context, filter store.SweepFilter) ([]model.Sweep, error)
}

// Collector gathers metrics from sweep history.
type Collector struct {
	store SweepLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st SweepLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot of sweep metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	sweeps, err := c.store.ListSweeps(ctx, store.SweepFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sweeps")
	}

	snap.SweepsTotal = len(sweeps)
	var totalDuration int64
	var timed int

	for _, sw := range sweeps {
		switch sw.Status {
		case model.SweepStatusNotFound:
			snap.SweepsNotFound++
			continue
		case model.SweepStatusComplete:
			snap.SweepsComplete++
		default:
			snap.SweepsInFlight++
			continue
		}

		if sw.Summary == nil {
			continue
		}
		switch sw.Summary.Outcome {
		case model.OutcomeFound:
			snap.OutcomeFound++
		case model.OutcomePartial:
			snap.OutcomePartial++
		case model.OutcomeEmpty:
			snap.OutcomeEmpty++
		case model.OutcomeFailed:
			snap.OutcomeFailed++
		}
		snap.QueriesTotal += sw.Summary.Queries
		snap.QueriesFailed += len(sw.Summary.Failures)
		snap.DevicesFound += len(sw.Summary.Devices)
		if sw.Summary.DurationMs > 0 {
			totalDuration += sw.Summary.DurationMs
			timed++
		}
	}

	if snap.QueriesTotal > 0 {
		snap.QueryFailRate = float64(snap.QueriesFailed) / float64(snap.QueriesTotal)
	}
	if finished := snap.Finished(); finished > 0 {
		snap.NotFoundRate = float64(snap.SweepsNotFound) / float64(finished)
	}
	if timed > 0 {
		snap.AvgDurationMs = totalDuration / int64(timed)
	}

	return snap, nil
}
