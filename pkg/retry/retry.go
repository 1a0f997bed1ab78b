package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "mediadl/pkg/errors"
	"mediadl/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// BackoffFor picks a strategy per error; it overrides Backoff when set
	BackoffFor func(err error) BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf retries transient scrape failures only: network errors, 429
// and 5xx. Auth, storage and file errors are final.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errs.IsRetryable(err)
}

// Do executes an operation with retry logic
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}

	var lastErr error
	attempt := 0

	for {
		attempt++

		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			log.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt - 1,
				"last_error": lastErr.Error(),
			})
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		lastErr = err

		if !retryIf(err) {
			return err
		}

		backoff := cfg.Backoff
		if cfg.BackoffFor != nil {
			backoff = cfg.BackoffFor(err)
		}
		var delay time.Duration
		if backoff != nil {
			delay = backoff.NextDelay(attempt)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": cfg.MaxAttempts,
		})

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// HTTPRetrier retries fetches, choosing the backoff from the failure's status
type HTTPRetrier struct {
	config  Config
	backoff *StatusBackoff
}

// NewHTTPRetrier creates a new HTTP-specific retrier
func NewHTTPRetrier(maxAttempts int, log logger.Logger) *HTTPRetrier {
	return NewHTTPRetrierWithBackoff(maxAttempts, NewStatusBackoff(), log)
}

// NewHTTPRetrierWithBackoff creates a retrier using the given per-status strategies
func NewHTTPRetrierWithBackoff(maxAttempts int, backoff *StatusBackoff, log logger.Logger) *HTTPRetrier {
	hr := &HTTPRetrier{backoff: backoff}
	hr.config = Config{
		MaxAttempts: maxAttempts,
		BackoffFor:  backoff.ForError,
		RetryIf:     DefaultRetryIf,
		Logger:      log,
	}
	return hr
}

// Do executes op, retrying transient failures
func (hr *HTTPRetrier) Do(ctx context.Context, op Operation) error {
	cfg := hr.config
	return Do(ctx, op, &cfg)
}
