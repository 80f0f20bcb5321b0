package model

import "time"

// SweepStatus tracks where a sweep is in the pipeline.
type SweepStatus string

const (
	SweepStatusResolving SweepStatus = "resolving"
	SweepStatusSearching SweepStatus = "searching"
	SweepStatusNotFound  SweepStatus = "not_found"
	SweepStatusComplete  SweepStatus = "complete"
)

// SweepOutcome classifies a finished sweep.
type SweepOutcome string

const (
	// OutcomeFound means matches were found and every query succeeded.
	OutcomeFound SweepOutcome = "found"
	// OutcomePartial means matches were found but at least one query failed.
	OutcomePartial SweepOutcome = "partial"
	// OutcomeEmpty means every query succeeded and nothing matched.
	OutcomeEmpty SweepOutcome = "empty"
	// OutcomeFailed means nothing matched and at least one query failed.
	OutcomeFailed SweepOutcome = "failed"
	// OutcomeNotFound means the postal code could not be resolved.
	OutcomeNotFound SweepOutcome = "not_found"
)

// ClassifyOutcome derives the outcome from the merged size and failure count.
func ClassifyOutcome(matches, failures int) SweepOutcome {
	switch {
	case matches > 0 && failures > 0:
		return OutcomePartial
	case matches > 0:
		return OutcomeFound
	case failures > 0:
		return OutcomeFailed
	default:
		return OutcomeEmpty
	}
}

// Sweep is the persisted history record of one sweep.
type Sweep struct {
	ID         string        `json:"id" yaml:"id"`
	PostalCode string        `json:"postal_code" yaml:"postal_code"`
	Mode       ScanMode      `json:"mode" yaml:"mode"`
	Status     SweepStatus   `json:"status" yaml:"status"`
	Summary    *SweepSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	CreatedAt  time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" yaml:"updated_at"`
}

// SweepSummary is the result stored once a sweep completes.
type SweepSummary struct {
	Outcome    SweepOutcome    `json:"outcome" yaml:"outcome"`
	Center     *Coordinates    `json:"center,omitempty" yaml:"center,omitempty"`
	Queries    int             `json:"queries" yaml:"queries"`
	Devices    []DeviceRecord  `json:"devices,omitempty" yaml:"devices,omitempty"`
	Failures   []SearchFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
	MapName    string          `json:"map_name,omitempty" yaml:"map_name,omitempty"`
	DurationMs int64           `json:"duration_ms" yaml:"duration_ms"`
}
