package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Config controls retry behaviour.
type Config struct {
	// MaxRetries is the number of re-invocations after the first attempt,
	// so fn runs at most MaxRetries+1 times.
	MaxRetries int
	// BaseDelay is the base for exponential backoff with full jitter.
	// The wait before re-running after failed attempt n (1-indexed) is
	// drawn uniformly from [0, BaseDelay * 2^n).
	BaseDelay time.Duration
	// OnRetry is called after a failed attempt and before the next delay.
	// attempt is 1-indexed (1 = first attempt just failed).
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds or MaxRetries re-invocations have been
// spent, sleeping a jittered exponential delay between attempts.
//
// Every error is treated as retryable; there is no error classification,
// so a clearly fatal error still burns through the full schedule. Callers
// depend on this uniformity; do not add short-circuiting here. On
// exhaustion the last attempt's error is returned unmodified, with no
// aggregation of earlier errors.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries {
			return lastErr
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		// Full jitter: uniform over [0, BaseDelay * 2^(attempt+1)).
		ceiling := cfg.BaseDelay << uint(attempt+1)
		var delay time.Duration
		if ceiling > 0 {
			delay = time.Duration(rand.Int63n(int64(ceiling)))
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt+1, ctx.Err())
		}
	}
}
