package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/restohub/ingest/internal/retry"
)

func TestPolicy_DelayGrowsExponentially(t *testing.T) {
	t.Parallel()

	p := retry.Policy{
		InitialDelay: time.Minute,
		MaxDelay:     24 * time.Hour,
		Multiplier:   2,
	}

	assert.Equal(t, time.Minute, p.Delay(1))
	assert.Equal(t, 2*time.Minute, p.Delay(2))
	assert.Equal(t, 4*time.Minute, p.Delay(3))
	assert.Equal(t, 8*time.Minute, p.Delay(4))
}

func TestPolicy_DelayCappedAtMax(t *testing.T) {
	t.Parallel()

	p := retry.Policy{
		InitialDelay: time.Minute,
		MaxDelay:     24 * time.Hour,
		Multiplier:   2,
	}

	// 2^19 minutes is far past a day.
	assert.Equal(t, 24*time.Hour, p.Delay(20))
	assert.Equal(t, 24*time.Hour, p.Delay(100))
}

func TestPolicy_DelayNonPositiveAttempt(t *testing.T) {
	t.Parallel()

	p := retry.DefaultPolicy()
	assert.Zero(t, p.Delay(0))
	assert.Zero(t, p.Delay(-1))
}

func TestPolicy_JitterBounds(t *testing.T) {
	t.Parallel()

	p := retry.Policy{
		InitialDelay: time.Minute,
		MaxDelay:     24 * time.Hour,
		Multiplier:   2,
		JitterFactor: 0.1,
	}

	for attempt := 1; attempt <= 15; attempt++ {
		base := retry.Policy{
			InitialDelay: p.InitialDelay,
			MaxDelay:     p.MaxDelay,
			Multiplier:   p.Multiplier,
		}.Delay(attempt)

		for i := 0; i < 50; i++ {
			d := p.Delay(attempt)
			assert.GreaterOrEqual(t, d, base, "attempt %d", attempt)
			assert.LessOrEqual(t, float64(d), float64(base)*1.1, "attempt %d", attempt)
		}
	}
}

func TestPolicy_JitterVaries(t *testing.T) {
	t.Parallel()

	p := retry.Policy{
		InitialDelay: time.Hour,
		MaxDelay:     24 * time.Hour,
		Multiplier:   2,
		JitterFactor: 0.1,
	}

	seen := make(map[time.Duration]struct{})
	for i := 0; i < 20; i++ {
		seen[p.Delay(3)] = struct{}{}
	}
	// Independent draws should not collapse to one value.
	assert.Greater(t, len(seen), 1)
}

func TestPolicy_ZeroValuesFallBackToDefaults(t *testing.T) {
	t.Parallel()

	var p retry.Policy
	assert.Equal(t, time.Minute, p.Delay(1))
	assert.Equal(t, 24*time.Hour, p.Delay(60))
}

func TestPolicyFromConfig(t *testing.T) {
	t.Parallel()

	p := retry.PolicyFromConfig(retry.Config{
		InitialDelayMS: 60000,
		MaxDelayMS:     86400000,
		Multiplier:     2,
	})

	assert.Equal(t, time.Minute, p.InitialDelay)
	assert.Equal(t, 24*time.Hour, p.MaxDelay)
	assert.Equal(t, float64(2), p.Multiplier)
	assert.Equal(t, 0.1, p.JitterFactor)
}
