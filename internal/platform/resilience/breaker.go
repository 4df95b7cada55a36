// Package resilience guards calls to external dependencies with a circuit breaker
// and jittered exponential backoff retries.
package resilience

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/platform/metrics"
)

// State of a circuit breaker
type State int32

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// BreakerSettings configures when a breaker trips and how long it stays open.
type BreakerSettings struct {
	FailureThreshold int
	FailureWindow    time.Duration
	Cooldown         time.Duration
	MaxCooldown      time.Duration
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeIgnored
)

// snapshot is immutable once published; every change swaps in a new one.
type snapshot struct {
	state       State
	generation  uint64
	failures    int
	windowStart time.Time
	openUntil   time.Time
	cooldown    time.Duration
	trialActive bool
}

// Breaker is a per-dependency circuit breaker safe for concurrent use.
// Transitions are compare-and-swap on an immutable snapshot.
type Breaker struct {
	name     string
	settings BreakerSettings
	now      func() time.Time
	logger   *slog.Logger
	current  atomic.Pointer[snapshot]
}

// BreakerOption customizes a Breaker
type BreakerOption func(*Breaker)

// WithClock replaces time.Now
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker creates a closed breaker for the named dependency
func NewBreaker(name string, settings BreakerSettings, logger *slog.Logger, opts ...BreakerOption) *Breaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 1
	}
	if settings.MaxCooldown < settings.Cooldown {
		settings.MaxCooldown = settings.Cooldown
	}
	b := &Breaker{
		name:     name,
		settings: settings,
		now:      time.Now,
		logger:   logger.With("component", "circuit_breaker", "dependency", name),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.current.Store(&snapshot{state: StateClosed, cooldown: settings.Cooldown})
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Name returns the dependency name
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state
func (b *Breaker) State() State {
	return b.current.Load().state
}

// Allow admits a call or fails fast. The returned generation must be passed
// back to record so that results from an older state are discarded.
func (b *Breaker) Allow() (uint64, error) {
	for {
		cur := b.current.Load()
		now := b.now()

		switch cur.state {
		case StateClosed:
			return cur.generation, nil

		case StateHalfOpen:
			if cur.trialActive {
				return 0, &shared.DependencyUnavailableError{Dependency: b.name, RetryAfter: cur.cooldown}
			}
			next := *cur
			next.trialActive = true
			if b.current.CompareAndSwap(cur, &next) {
				return next.generation, nil
			}

		case StateOpen:
			if now.Before(cur.openUntil) {
				return 0, &shared.DependencyUnavailableError{Dependency: b.name, RetryAfter: cur.openUntil.Sub(now)}
			}
			next := *cur
			next.state = StateHalfOpen
			next.generation++
			next.trialActive = true
			if b.current.CompareAndSwap(cur, &next) {
				b.transitioned(cur.state, next.state, next.cooldown)
				return next.generation, nil
			}
		}
	}
}

func (b *Breaker) record(generation uint64, result outcome) {
	for {
		cur := b.current.Load()
		if cur.generation != generation {
			return
		}
		now := b.now()
		next := *cur

		switch cur.state {
		case StateClosed:
			switch result {
			case outcomeSuccess:
				if cur.failures == 0 {
					return
				}
				next.failures = 0
				next.windowStart = time.Time{}
			case outcomeFailure:
				if cur.failures == 0 || now.Sub(cur.windowStart) > b.settings.FailureWindow {
					next.failures = 1
					next.windowStart = now
				} else {
					next.failures++
				}
				if next.failures >= b.settings.FailureThreshold {
					next.state = StateOpen
					next.generation++
					next.failures = 0
					next.openUntil = now.Add(next.cooldown)
				}
			default:
				return
			}

		case StateHalfOpen:
			switch result {
			case outcomeSuccess:
				next.state = StateClosed
				next.generation++
				next.failures = 0
				next.windowStart = time.Time{}
				next.cooldown = b.settings.Cooldown
				next.trialActive = false
			case outcomeFailure:
				next.state = StateOpen
				next.generation++
				next.cooldown = min(cur.cooldown*2, b.settings.MaxCooldown)
				next.openUntil = now.Add(next.cooldown)
				next.trialActive = false
			default:
				// the trial told us nothing; admit another one
				next.trialActive = false
			}

		default:
			return
		}

		if b.current.CompareAndSwap(cur, &next) {
			if next.state != cur.state {
				b.transitioned(cur.state, next.state, next.cooldown)
			}
			return
		}
	}
}

func (b *Breaker) transitioned(from, to State, cooldown time.Duration) {
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))
	metrics.BreakerTransitionsTotal.WithLabelValues(b.name, from.String(), to.String()).Inc()
	if to == StateOpen {
		b.logger.Warn("circuit breaker opened", "from", from.String(), "cooldown", cooldown)
		return
	}
	b.logger.Info("circuit breaker state changed", "from", from.String(), "to", to.String())
}
