package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy computes the delay before a retry attempt using exponential growth
// capped at MaxDelay, plus additive jitter drawn independently per call so
// many simultaneously-failing items do not retry in lockstep.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// JitterFactor is the maximum jitter as a fraction of the computed
	// delay. Zero disables jitter for deterministic tests.
	JitterFactor float64
}

// DefaultPolicy matches the production retry schedule: one minute doubling
// up to a day, with 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: time.Minute,
		MaxDelay:     24 * time.Hour,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

// Delay returns the backoff for the given attempt, starting at 1.
// The base component is non-decreasing in attempt up to MaxDelay, and the
// result never exceeds MaxDelay multiplied by 1+JitterFactor.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := p.InitialDelay
	if initial <= 0 {
		initial = time.Minute
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 24 * time.Hour
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	base := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if base > float64(max) {
		base = float64(max)
	}

	if p.JitterFactor > 0 {
		base += rand.Float64() * p.JitterFactor * base
	}
	return time.Duration(base)
}
