package breaker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restohub/ingest/internal/breaker"
)

var errBackend = errors.New("backend down")

func failing(context.Context) (any, error) { return nil, errBackend }

func succeeding(context.Context) (any, error) { return "ok", nil }

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	t.Parallel()

	b := breaker.New(breaker.Config{})

	result, err := b.Execute(context.Background(), succeeding)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	t.Parallel()

	b := breaker.New(breaker.Config{
		ErrorThresholdPct: 50,
		ResetTimeout:      time.Minute,
	})

	// Two failures are below the sample floor even at a 100% rate.
	for i := 0; i < 2; i++ {
		_, err := b.Execute(context.Background(), failing)
		require.ErrorIs(t, err, errBackend)
	}
	assert.Equal(t, breaker.StateClosed, b.State())

	_, err := b.Execute(context.Background(), failing)
	require.ErrorIs(t, err, errBackend)
	assert.Equal(t, breaker.StateOpen, b.State())
}

func TestBreaker_FailureRateBelowThresholdStaysClosed(t *testing.T) {
	t.Parallel()

	b := breaker.New(breaker.Config{
		ErrorThresholdPct: 50,
		ResetTimeout:      time.Minute,
	})

	// 3 failures over 10 calls is a 30% rate: under the 50% threshold even
	// though the absolute failure floor is met.
	for i := 0; i < 7; i++ {
		_, err := b.Execute(context.Background(), succeeding)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := b.Execute(context.Background(), failing)
		require.ErrorIs(t, err, errBackend)
	}
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestBreaker_OpenFailsFast(t *testing.T) {
	t.Parallel()

	b := breaker.New(breaker.Config{
		ErrorThresholdPct: 50,
		ResetTimeout:      time.Minute,
	})
	for i := 0; i < 3; i++ {
		_, _ = b.Execute(context.Background(), failing)
	}
	require.Equal(t, breaker.StateOpen, b.State())

	executed := false
	_, err := b.Execute(context.Background(), func(context.Context) (any, error) {
		executed = true
		return nil, nil
	})
	require.ErrorIs(t, err, breaker.ErrOpen)
	assert.False(t, executed)

	var openErr *breaker.OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Greater(t, openErr.RetryIn, time.Duration(0))
	assert.LessOrEqual(t, openErr.RetryIn, time.Minute)
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	t.Parallel()

	b := breaker.New(breaker.Config{
		ErrorThresholdPct: 50,
		ResetTimeout:      20 * time.Millisecond,
	})
	for i := 0; i < 3; i++ {
		_, _ = b.Execute(context.Background(), failing)
	}
	require.Equal(t, breaker.StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)

	result, err := b.Execute(context.Background(), succeeding)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, breaker.StateClosed, b.State())

	stats := b.Stats()
	assert.Equal(t, 0, stats.Failures)
	assert.Equal(t, 0, stats.Successes)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b := breaker.New(breaker.Config{
		ErrorThresholdPct: 50,
		ResetTimeout:      20 * time.Millisecond,
	})
	for i := 0; i < 3; i++ {
		_, _ = b.Execute(context.Background(), failing)
	}

	time.Sleep(30 * time.Millisecond)

	_, err := b.Execute(context.Background(), failing)
	require.ErrorIs(t, err, errBackend)
	assert.Equal(t, breaker.StateOpen, b.State())

	// Re-opened with a fresh cool-down.
	_, err = b.Execute(context.Background(), succeeding)
	require.ErrorIs(t, err, breaker.ErrOpen)
}

func TestBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	t.Parallel()

	b := breaker.New(breaker.Config{
		ErrorThresholdPct: 50,
		ResetTimeout:      10 * time.Millisecond,
	})
	for i := 0; i < 3; i++ {
		_, _ = b.Execute(context.Background(), failing)
	}
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = b.Execute(context.Background(), func(context.Context) (any, error) {
			close(started)
			<-release
			return "ok", nil
		})
	}()

	<-started
	require.Equal(t, breaker.StateHalfOpen, b.State())

	// While the probe is in flight every other caller is turned away with a
	// zero RetryIn, signalling the outcome is imminent.
	_, err := b.Execute(context.Background(), succeeding)
	require.ErrorIs(t, err, breaker.ErrOpen)
	var openErr *breaker.OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Zero(t, openErr.RetryIn)

	close(release)
	wg.Wait()
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestBreaker_CallTimeoutCountsAsFailure(t *testing.T) {
	t.Parallel()

	b := breaker.New(breaker.Config{
		CallTimeout:       10 * time.Millisecond,
		ErrorThresholdPct: 50,
		ResetTimeout:      time.Minute,
	})

	for i := 0; i < 3; i++ {
		_, err := b.Execute(context.Background(), func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, breaker.StateOpen, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := breaker.New(breaker.Config{
		ErrorThresholdPct: 50,
		ResetTimeout:      time.Minute,
	})
	for i := 0; i < 3; i++ {
		_, _ = b.Execute(context.Background(), failing)
	}
	require.Equal(t, breaker.StateOpen, b.State())

	b.Reset()
	assert.Equal(t, breaker.StateClosed, b.State())

	stats := b.Stats()
	assert.Equal(t, 0, stats.Failures)
	assert.True(t, stats.OpenUntil.IsZero())

	_, err := b.Execute(context.Background(), succeeding)
	require.NoError(t, err)
}

func TestBreaker_StatsSnapshot(t *testing.T) {
	t.Parallel()

	b := breaker.New(breaker.Config{ErrorThresholdPct: 90})

	_, _ = b.Execute(context.Background(), succeeding)
	_, _ = b.Execute(context.Background(), failing)

	stats := b.Stats()
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.Successes)
	assert.False(t, stats.LastFailure.IsZero())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", breaker.StateClosed.String())
	assert.Equal(t, "open", breaker.StateOpen.String())
	assert.Equal(t, "half-open", breaker.StateHalfOpen.String())
}
