package sweep

import (
	"context"
	"time"
)

// Pacer enforces the delay between successive backend queries in a sweep.
type Pacer interface {
	// Pause blocks for the pacing interval or until ctx is done.
	Pause(ctx context.Context) error
}

// DefaultPacingInterval is the pause between queries when none is configured.
const DefaultPacingInterval = time.Second

type fixedPacer struct {
	interval time.Duration
}

// FixedPacer pauses for d between queries. A non-positive d disables pacing.
func FixedPacer(d time.Duration) Pacer {
	return fixedPacer{interval: d}
}

// NoPacer never pauses.
func NoPacer() Pacer {
	return fixedPacer{}
}

func (p fixedPacer) Pause(ctx context.Context) error {
	if p.interval <= 0 {
		return nil
	}
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
