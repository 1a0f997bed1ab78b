package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Wait blocks until the rate limit allows another request or ctx is done
	Wait(ctx context.Context) error
}

// TokenBucket implements a token bucket rate limiter on top of x/time/rate.
// Tokens refill continuously at rps up to burst.
type TokenBucket struct {
	lim *rate.Limiter
}

// NewTokenBucket creates a bucket allowing rps requests per second with the
// given burst. A burst below one is raised to one.
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available. It never drops the request; it only
// fails when ctx is cancelled or its deadline cannot be met.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.lim.Wait(ctx)
}
