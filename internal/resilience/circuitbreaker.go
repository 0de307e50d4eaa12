// Package resilience provides circuit breaking and provider failover for the
// request/response content calls.
//
// A [CircuitBreaker] trips after consecutive failures and rejects calls until
// a cool-down has passed, then lets a few probes through. A [FallbackGroup]
// puts one breaker in front of each provider and walks the providers in
// order. [ContentFallback] applies this to [content.Provider].
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has elapsed.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. A probe
	// failure re-opens the breaker; enough successes close it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds the tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed while half-open, and
	// the number of successes needed to close. Default: 2.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition, outside the
	// breaker lock.
	OnStateChange func(name string, from, to State)

	// now overrides the clock in tests.
	now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
//
// Errors caused by the caller giving up ([context.Canceled] and
// [context.DeadlineExceeded]) are passed through without counting as
// failures.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	successes int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value fields take their
// defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 2
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, change, err := cb.admit()
	cb.notify(change)
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	switch {
	case err == nil:
		change = cb.succeedLocked(probe)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if probe {
			cb.probes--
		}
		change = transition{}
	default:
		change = cb.failLocked(probe)
	}
	cb.mu.Unlock()
	cb.notify(change)
	return err
}

// State returns the breaker's state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooledLocked() {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.setLocked(StateClosed)
	cb.mu.Unlock()
	cb.notify(change)
}

type transition struct {
	from, to State
	changed  bool
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, change transition, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if !cb.cooledLocked() {
			return false, transition{}, ErrCircuitOpen
		}
		change = cb.setLocked(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, change, ErrCircuitOpen
		}
		cb.probes++
		return true, change, nil
	}
	return false, change, nil
}

func (cb *CircuitBreaker) succeedLocked(probe bool) transition {
	if !probe {
		cb.failures = 0
		return transition{}
	}
	cb.successes++
	if cb.successes >= cb.cfg.HalfOpenMax {
		return cb.setLocked(StateClosed)
	}
	return transition{}
}

func (cb *CircuitBreaker) failLocked(probe bool) transition {
	if probe || cb.state == StateHalfOpen {
		return cb.setLocked(StateOpen)
	}
	cb.failures++
	if cb.failures >= cb.cfg.MaxFailures {
		return cb.setLocked(StateOpen)
	}
	return transition{}
}

func (cb *CircuitBreaker) cooledLocked() bool {
	return cb.cfg.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

// setLocked moves to st and resets the counters that belong to it.
func (cb *CircuitBreaker) setLocked(st State) transition {
	from := cb.state
	cb.state = st
	cb.probes, cb.successes = 0, 0
	switch st {
	case StateClosed:
		cb.failures = 0
	case StateOpen:
		cb.openedAt = cb.cfg.now()
	}
	return transition{from: from, to: st, changed: from != st}
}

func (cb *CircuitBreaker) notify(t transition) {
	if !t.changed {
		return
	}
	level := slog.LevelInfo
	if t.to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state change",
		"name", cb.cfg.Name, "from", t.from.String(), "to", t.to.String())
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
	}
}
