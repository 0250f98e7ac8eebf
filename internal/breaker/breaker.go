// Package breaker implements the circuit breaker guarding calls to the order
// backend. One breaker instance is shared process-wide per backend target.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed allows calls to pass through.
	StateClosed State = iota
	// StateOpen short-circuits all calls until the reset timeout elapses.
	StateOpen
	// StateHalfOpen allows a single trial call to probe recovery.
	StateHalfOpen
)

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

// ErrOpen is returned when the breaker rejects a call without executing it.
var ErrOpen = errors.New("circuit breaker is open")

// OpenError carries the remaining cool-down so callers can report when the
// backend may become callable again. Unwraps to ErrOpen.
type OpenError struct {
	RetryIn time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker is open, retry in %s", e.RetryIn.Round(time.Millisecond))
}

func (e *OpenError) Unwrap() error { return ErrOpen }

// minFailureSamples is the absolute failure floor before the rate threshold
// may trip the breaker, so a single cold-start failure cannot open it.
const minFailureSamples = 3

// Config tunes a Breaker. Zero values fall back to production defaults.
type Config struct {
	// CallTimeout bounds each wrapped call; a timeout counts as a failure.
	CallTimeout time.Duration
	// ErrorThresholdPct opens the circuit when the failure rate over all
	// calls since the last CLOSED reset meets this percentage.
	ErrorThresholdPct int
	// ResetTimeout is the fixed cool-down before a trial call is allowed.
	// Distinct from the retry queue's exponential backoff.
	ResetTimeout time.Duration
}

// Breaker is a CLOSED/OPEN/HALF_OPEN state machine wrapping backend calls.
// All state is mutated only through Execute and Reset, under one mutex.
type Breaker struct {
	cfg Config

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	lastFailure   time.Time
	openUntil     time.Time
	probeInFlight bool
}

// New creates a breaker with the given configuration.
func New(cfg Config) *Breaker {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.ErrorThresholdPct <= 0 {
		cfg.ErrorThresholdPct = 50
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Execute runs fn under the breaker's call timeout and records the outcome.
// While OPEN it fails fast with an *OpenError carrying the remaining wait.
// The OPEN→HALF_OPEN transition admits exactly one caller; concurrent racers
// observe the breaker as still open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := b.admit(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	result, err := fn(callCtx)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}

	if err != nil {
		b.recordFailure()
		return nil, err
	}
	b.recordSuccess()
	return result, nil
}

// admit decides whether a call may proceed, performing the OPEN→HALF_OPEN
// transition atomically with the single-probe admission.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		remaining := time.Until(b.openUntil)
		if remaining > 0 {
			return &OpenError{RetryIn: remaining}
		}
		// Cool-down elapsed: this caller becomes the single trial probe.
		b.state = StateHalfOpen
		b.probeInFlight = true
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			// Another caller holds the trial slot. RetryIn is zero because
			// the probe outcome is imminent; callers may try again shortly.
			return &OpenError{}
		}
		b.probeInFlight = true
		return nil
	default:
		return &OpenError{RetryIn: b.cfg.ResetTimeout}
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	if b.state == StateHalfOpen {
		// Trial call succeeded: close and reset all counters.
		b.state = StateClosed
		b.failures = 0
		b.successes = 0
		b.probeInFlight = false
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case StateHalfOpen:
		// Trial call failed: reopen immediately.
		b.trip()
	case StateClosed:
		total := b.failures + b.successes
		rate := b.failures * 100 / total
		if b.failures >= minFailureSamples && rate >= b.cfg.ErrorThresholdPct {
			b.trip()
		}
	}
}

// trip opens the circuit. Caller must hold b.mu.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openUntil = time.Now().Add(b.cfg.ResetTimeout)
	b.probeInFlight = false
}

// Stats is a point-in-time snapshot of breaker state for monitoring.
type Stats struct {
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	Successes   int       `json:"successes"`
	LastFailure time.Time `json:"last_failure,omitzero"`
	OpenUntil   time.Time `json:"open_until,omitzero"`
}

// Stats returns the current breaker statistics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:       b.state.String(),
		Failures:    b.failures,
		Successes:   b.successes,
		LastFailure: b.lastFailure,
		OpenUntil:   b.openUntil,
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset returns the breaker to CLOSED with cleared counters. Safe to call
// concurrently with ongoing traffic; in-flight calls record into the fresh
// counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.lastFailure = time.Time{}
	b.openUntil = time.Time{}
	b.probeInFlight = false
}
