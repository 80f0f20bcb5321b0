// Package store persists sweep history and the postal-code geocoding cache.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/pkg/geocode"
)

// ErrSweepNotFound is returned by GetSweep for an unknown id.
var ErrSweepNotFound = eris.New("store: sweep not found")

// SweepFilter specifies criteria for listing sweeps.
type SweepFilter struct {
	Status     model.SweepStatus `json:"status,omitempty"`
	PostalCode string            `json:"postal_code,omitempty"`
	// CreatedAfter, when non-zero, keeps only sweeps created at or after it.
	CreatedAfter time.Time `json:"created_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Offset       int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for camera sweeps.
type Store interface {
	// Sweeps
	CreateSweep(ctx context.Context, sw *model.Sweep) error
	UpdateSweepStatus(ctx context.Context, id string, status model.SweepStatus) error
	CompleteSweep(ctx context.Context, id string, status model.SweepStatus, summary *model.SweepSummary) error
	GetSweep(ctx context.Context, id string) (*model.Sweep, error)
	ListSweeps(ctx context.Context, filter SweepFilter) ([]model.Sweep, error)

	// Postal-code cache
	GetCachedPostal(ctx context.Context, key string) (*geocode.Result, error)
	SetCachedPostal(ctx context.Context, key string, r *geocode.Result, ttl time.Duration) error
	DeleteExpiredPostal(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
