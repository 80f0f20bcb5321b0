package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls how a delivery is attempted again after a transient
// failure. Waits double from InitialBackoff, with the upper half jittered,
// unless the receiver asked for a specific delay via Retry-After.
type RetryConfig struct {
	// MaxAttempts counts the first try. 1 disables retries. Default: 3.
	MaxAttempts int

	// InitialBackoff is the nominal wait before the first retry. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps every wait, including a receiver's Retry-After. Default: 30s.
	MaxBackoff time.Duration

	// OnRetry runs before each wait. Nil logs the retry at warn level.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultRetryConfig returns the retry policy used for delivery sinks.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// FromRetryConfig builds a RetryConfig from flat config values, keeping the
// default for any value that is not positive.
func FromRetryConfig(maxAttempts, initialBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	return cfg
}

// Do calls fn until it succeeds or returns a permanent error. It also stops
// once the attempts run out or ctx is done, returning the last error.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = withRetryDefaults(cfg)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= cfg.MaxAttempts || ctx.Err() != nil || !IsTransient(err) {
			return err
		}

		wait := nextWait(attempt, cfg, err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, wait, err)
		} else {
			zap.L().Warn("delivery: retrying",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func withRetryDefaults(cfg RetryConfig) RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return cfg
}

// nextWait returns the pause after the given failed attempt (1-based).
func nextWait(attempt int, cfg RetryConfig, err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return min(te.RetryAfter, cfg.MaxBackoff)
	}

	wait := cfg.InitialBackoff
	for i := 1; i < attempt && wait < cfg.MaxBackoff; i++ {
		wait *= 2
	}
	wait = min(wait, cfg.MaxBackoff)

	half := wait / 2
	if half <= 0 {
		return wait
	}
	return half + rand.N(half+1)
}

// ParseRetryAfter reads a Retry-After header given as delta-seconds or an
// HTTP date. It returns 0 when the header is absent, malformed or in the past.
func ParseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(header)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}
