package resilience

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/platform/metrics"
)

// Policy bounds retries of transient failures
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the backoff before retry number attempt (0-based) scaled by
// a jitter factor in [0.5, 1.5).
func (p Policy) Delay(attempt int, jitter float64) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return time.Duration(float64(d) * jitter)
}

// Executor runs operations against one dependency with retries and a shared breaker.
type Executor struct {
	breaker *Breaker
	policy  Policy
	logger  *slog.Logger
	jitter  func() float64
	sleep   func(ctx context.Context, d time.Duration) error
}

// ExecutorOption customizes an Executor
type ExecutorOption func(*Executor)

// WithJitter replaces the random jitter source. f must return values in [0.5, 1.5).
func WithJitter(f func() float64) ExecutorOption {
	return func(e *Executor) { e.jitter = f }
}

// WithSleep replaces the backoff sleep
func WithSleep(f func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = f }
}

// NewExecutor creates an executor guarding calls with breaker
func NewExecutor(policy Policy, breaker *Breaker, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	e := &Executor{
		breaker: breaker,
		policy:  policy,
		logger:  logger.With("component", "resilience", "dependency", breaker.Name()),
		jitter:  func() float64 { return 0.5 + rand.Float64() },
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromConfig builds the breaker and executor of one dependency from the shared policy
func FromConfig(dependency string, cfg config.ResilienceConfig, logger *slog.Logger) *Executor {
	breaker := NewBreaker(dependency, BreakerSettings{
		FailureThreshold: cfg.FailureThreshold,
		FailureWindow:    cfg.FailureWindow,
		Cooldown:         cfg.Cooldown,
		MaxCooldown:      cfg.MaxCooldown,
	}, logger)
	return NewExecutor(Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}, breaker, logger)
}

// Breaker exposes the guarding breaker
func (e *Executor) Breaker() *Breaker {
	return e.breaker
}

// Do runs op until it succeeds, fails with a non-retryable error, exhausts the
// policy or the breaker refuses the call. Only errors for which
// shared.IsRetryable is true are retried.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	dependency := e.breaker.Name()

	for attempt := 0; ; attempt++ {
		generation, err := e.breaker.Allow()
		if err != nil {
			metrics.DependencyCallsTotal.WithLabelValues(dependency, "short_circuited").Inc()
			return zero, err
		}

		result, err := op(ctx)
		switch {
		case err == nil:
			e.breaker.record(generation, outcomeSuccess)
			metrics.DependencyCallsTotal.WithLabelValues(dependency, "success").Inc()
			return result, nil

		case ctx.Err() != nil:
			// the caller gave up; says nothing about the dependency
			e.breaker.record(generation, outcomeIgnored)
			metrics.DependencyCallsTotal.WithLabelValues(dependency, "cancelled").Inc()
			return zero, err

		case !shared.IsRetryable(err):
			// the remote answered, so it is healthy even if it said no
			e.breaker.record(generation, outcomeSuccess)
			metrics.DependencyCallsTotal.WithLabelValues(dependency, "rejected").Inc()
			return zero, err
		}

		e.breaker.record(generation, outcomeFailure)
		metrics.DependencyCallsTotal.WithLabelValues(dependency, "transient").Inc()

		if attempt+1 >= e.policy.MaxAttempts {
			e.logger.Warn("giving up after transient failures", "attempts", attempt+1, "error", err)
			return zero, err
		}

		delay := e.policy.Delay(attempt, e.jitter())
		e.logger.Debug("retrying after transient failure", "attempt", attempt+1, "delay", delay, "error", err)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
