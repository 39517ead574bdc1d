package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/workorder/internal/brain"
	"github.com/aristath/workorder/internal/config"
)

// retryPolicy converts the configured retry tuning into a backoff policy.
func retryPolicy(cfg config.RetryConfig) *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(cfg.InitialIntervalMS) * time.Millisecond
	policy.MaxInterval = time.Duration(cfg.MaxIntervalMS) * time.Millisecond
	policy.MaxElapsedTime = time.Duration(cfg.MaxElapsedTimeMS) * time.Millisecond
	policy.Multiplier = cfg.Multiplier
	policy.RandomizationFactor = cfg.RandomizationFactor
	return policy
}

// BreakerRegistry manages per-role circuit breakers around worker-brain
// calls, so a consistently failing role stops burning budget on retries.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given role, creating it on
// first use.
func (r *BreakerRegistry) Get(role string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[role]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        role,
		MaxRequests: 3,                // test requests allowed half-open
		Interval:    0,                // never clear counts automatically
		Timeout:     30 * time.Second, // stay open before probing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// User cancellation is not a brain failure.
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[role] = cb
	return cb
}

// executeWithRetry invokes the brain with exponential backoff retry and
// circuit breaker protection.
func executeWithRetry(ctx context.Context, b brain.Brain, prompt brain.Prompt, cb *gobreaker.CircuitBreaker, retryCfg config.RetryConfig) (brain.Result, error) {
	var result brain.Result

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		out, err := cb.Execute(func() (interface{}, error) {
			return b.Execute(ctx, prompt)
		})

		if err != nil {
			// Circuit open: retrying immediately cannot help.
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		result = out.(brain.Result)
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(retryPolicy(retryCfg), ctx))
	return result, err
}
