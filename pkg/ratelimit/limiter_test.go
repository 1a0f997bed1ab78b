package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediadl/pkg/logger"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(10, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, tb.lim.Allow(), "token %d should be available", i+1)
	}
	assert.False(t, tb.lim.Allow(), "burst exhausted")
	assert.Equal(t, 10.0, float64(tb.lim.Limit()))
}

func TestTokenBucketWaitRefills(t *testing.T) {
	tb := NewTokenBucket(20, 1)
	require.True(t, tb.lim.Allow())

	start := time.Now()
	require.NoError(t, tb.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	tb := NewTokenBucket(0.1, 1)
	require.True(t, tb.lim.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tb.Wait(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not observe cancellation")
	}
}

func TestTokenBucketZeroBurst(t *testing.T) {
	tb := NewTokenBucket(5, 0)
	assert.Equal(t, 1, tb.lim.Burst(), "burst is raised to one")
	assert.True(t, tb.lim.Allow())
}

func TestRegistryReusesLimiterPerHost(t *testing.T) {
	reg := NewRegistry(4, 4, map[string]float64{"Coomer.su": 2}, logger.NewNopLogger())

	a := reg.Get("coomer.su")
	b := reg.Get("COOMER.SU")
	assert.Same(t, a, b)

	other := reg.Get("example.com")
	assert.NotSame(t, a, other)

	assert.Equal(t, 2.0, float64(a.(*TokenBucket).lim.Limit()), "override applies")
	assert.Equal(t, 4.0, float64(other.(*TokenBucket).lim.Limit()))
}

func TestRegistryConcurrentGet(t *testing.T) {
	reg := NewRegistry(4, 4, nil, nil)

	var wg sync.WaitGroup
	got := make([]Limiter, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = reg.Get("host")
		}(i)
	}
	wg.Wait()

	for _, l := range got {
		assert.Same(t, got[0], l)
	}
}

func TestRegistryWaitLogsSlowAcquisition(t *testing.T) {
	tl := logger.NewTestLogger()
	reg := NewRegistry(2, 1, nil, tl)
	ctx := context.Background()

	require.NoError(t, reg.Wait(ctx, "slow.example"))
	require.NoError(t, reg.Wait(ctx, "slow.example"))

	assert.True(t, tl.HasMessage("Waited for rate limiter"))
}

func TestRegistryWaitCancelled(t *testing.T) {
	reg := NewRegistry(0.01, 1, nil, nil)
	require.NoError(t, reg.Wait(context.Background(), "h"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, reg.Wait(ctx, "h"))
}
