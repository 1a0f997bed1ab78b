package retry

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"time"

	errs "mediadl/pkg/errors"
)

// BackoffStrategy yields the delay before retry number attempt (1-based)
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per attempt, capped at
// MaxDelay, with +/- JitterFactor of random spread.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultExponentialBackoff returns a backoff with sensible defaults
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay implements BackoffStrategy
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	return jitter(math.Min(delay, float64(eb.MaxDelay)), eb.JitterFactor)
}

func jitter(delay, factor float64) time.Duration {
	if factor > 0 {
		spread := delay * factor
		delay += rand.Float64()*2*spread - spread
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// ConstantBackoff waits the same Delay before every retry
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay implements BackoffStrategy
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StatusBackoff picks a strategy from the HTTP status a fetch failed with.
// A 429 means the host is pushing back and gets the slowest schedule.
type StatusBackoff struct {
	// Network covers failures with no response (status 0)
	Network     BackoffStrategy
	RateLimited BackoffStrategy
	Server      BackoffStrategy
	Default     BackoffStrategy
}

// NewStatusBackoff returns the schedules used for live crawls
func NewStatusBackoff() *StatusBackoff {
	return &StatusBackoff{
		Network: &ExponentialBackoff{
			BaseDelay:    1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.2,
		},
		RateLimited: &ExponentialBackoff{
			BaseDelay:    30 * time.Second,
			MaxDelay:     5 * time.Minute,
			Multiplier:   1.5,
			JitterFactor: 0.3,
		},
		Server: &ExponentialBackoff{
			BaseDelay:    5 * time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Default: DefaultExponentialBackoff(),
	}
}

// ForError returns the strategy matching the status carried by err
func (sb *StatusBackoff) ForError(err error) BackoffStrategy {
	if errs.TypeOf(err) != errs.ErrorTypeScrape {
		return sb.Default
	}
	switch status := errs.StatusOf(err); {
	case status == 0:
		return sb.Network
	case status == http.StatusTooManyRequests:
		return sb.RateLimited
	case status >= 500:
		return sb.Server
	default:
		return sb.Default
	}
}

// UniformBackoff uses b for every kind of failure
func UniformBackoff(b BackoffStrategy) *StatusBackoff {
	return &StatusBackoff{Network: b, RateLimited: b, Server: b, Default: b}
}
