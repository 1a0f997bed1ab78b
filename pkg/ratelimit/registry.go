package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"mediadl/pkg/logger"
)

// slowWait is the wait above which a limiter acquisition gets logged
const slowWait = 250 * time.Millisecond

// Registry hands out one limiter per host. Limiters are created lazily and
// shared by every task talking to that host.
type Registry struct {
	rps       float64
	burst     int
	overrides map[string]float64
	log       logger.Logger

	mu       sync.Mutex
	limiters map[string]Limiter
}

// NewRegistry creates a registry using rps and burst for every host not named
// in overrides. Override keys are matched case-insensitively.
func NewRegistry(rps float64, burst int, overrides map[string]float64, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNopLogger()
	}
	o := make(map[string]float64, len(overrides))
	for host, r := range overrides {
		o[strings.ToLower(host)] = r
	}
	return &Registry{
		rps:       rps,
		burst:     burst,
		overrides: o,
		log:       log,
		limiters:  make(map[string]Limiter),
	}
}

// Get returns the limiter for host, creating it on first use
func (r *Registry) Get(host string) Limiter {
	host = strings.ToLower(host)

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[host]; ok {
		return l
	}

	rps := r.rps
	if o, ok := r.overrides[host]; ok {
		rps = o
	}
	l := NewTokenBucket(rps, r.burst)
	r.limiters[host] = l
	return l
}

// Wait acquires a slot on host's limiter
func (r *Registry) Wait(ctx context.Context, host string) error {
	start := time.Now()
	if err := r.Get(host).Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > slowWait {
		logger.LogRateLimit(r.log, host, waited)
	}
	return nil
}
