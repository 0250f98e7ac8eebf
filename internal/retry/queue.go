// Package retry owns the durable retry lifecycle: failed deliveries enter a
// backed-off queue, exhausted ones move to the dead-letter store, and a
// periodic processor resubmits whatever is due.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/restohub/ingest/internal/storage"
)

// Config holds the retry schedule settings.
type Config struct {
	MaxAttempts     int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"10"`
	InitialDelayMS  int64         `env:"RETRY_INITIAL_DELAY_MS" envDefault:"60000"`
	MaxDelayMS      int64         `env:"RETRY_MAX_DELAY_MS" envDefault:"86400000"`
	Multiplier      float64       `env:"RETRY_BACKOFF_MULTIPLIER" envDefault:"2"`
	SweepInterval   time.Duration `env:"RETRY_SWEEP_INTERVAL" envDefault:"1m"`
	BatchSize       int           `env:"RETRY_BATCH_SIZE" envDefault:"50"`
	StaleLockWindow time.Duration `env:"RETRY_STALE_LOCK_WINDOW" envDefault:"10m"`
}

// PolicyFromConfig builds the backoff policy from millisecond env settings.
func PolicyFromConfig(cfg Config) Policy {
	return Policy{
		InitialDelay: time.Duration(cfg.InitialDelayMS) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.MaxDelayMS) * time.Millisecond,
		Multiplier:   cfg.Multiplier,
		JitterFactor: 0.1,
	}
}

// Queue is the durable retry queue over a RetryStore. It exclusively owns
// the RetryItem lifecycle; callers never mutate rows directly.
type Queue struct {
	store       storage.RetryStore
	policy      Policy
	maxAttempts int
}

// NewQueue creates a queue with the given store and backoff policy.
func NewQueue(store storage.RetryStore, policy Policy, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Queue{store: store, policy: policy, maxAttempts: maxAttempts}
}

// Enqueue records a failed delivery for later resubmission. Items already at
// or past the attempt ceiling go straight to the dead-letter state.
func (q *Queue) Enqueue(ctx context.Context, webhookID uuid.UUID, provider string, payload []byte, attempt int, lastError string) (*storage.RetryItem, error) {
	if attempt <= 0 {
		attempt = 1
	}
	now := time.Now()
	item := &storage.RetryItem{
		ID:        uuid.New(),
		WebhookID: webhookID,
		Provider:  provider,
		Payload:   payload,
		Attempt:   attempt,
		LastError: lastError,
		Status:    storage.RetryPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if attempt >= q.maxAttempts {
		item.Status = storage.RetryDeadLetter
		item.MovedAt = &now
		item.NextRetryAt = now
	} else {
		item.NextRetryAt = now.Add(q.policy.Delay(attempt))
	}

	if err := q.store.SaveRetryItem(ctx, item); err != nil {
		return nil, fmt.Errorf("save retry item: %w", err)
	}
	return item, nil
}

// DueItems returns and claims up to limit items whose retry time has passed.
func (q *Queue) DueItems(ctx context.Context, limit int) ([]*storage.RetryItem, error) {
	if limit <= 0 {
		limit = 50
	}
	return q.store.ListDue(ctx, time.Now(), limit)
}

// Resolve marks a successfully redelivered item.
func (q *Queue) Resolve(ctx context.Context, id uuid.UUID) error {
	return q.store.MarkResolved(ctx, id)
}

// Fail records another failed attempt: the attempt counter is incremented and
// a fresh backoff computed, or the item is dead-lettered once the ceiling is
// exceeded. Returns the updated item and whether it was dead-lettered.
func (q *Queue) Fail(ctx context.Context, id uuid.UUID, lastError string) (*storage.RetryItem, bool, error) {
	item, err := q.store.GetRetryItem(ctx, id)
	if err != nil {
		return nil, false, err
	}

	item.Attempt++
	item.LastError = lastError

	if item.Attempt >= q.maxAttempts {
		if err := q.store.MoveToDeadLetter(ctx, id, lastError); err != nil {
			return nil, false, err
		}
		item.Status = storage.RetryDeadLetter
		return item, true, nil
	}

	item.Status = storage.RetryPending
	item.NextRetryAt = time.Now().Add(q.policy.Delay(item.Attempt))
	if err := q.store.UpdateRetryItem(ctx, item); err != nil {
		return nil, false, err
	}
	return item, false, nil
}

// DeadLetters lists terminally failed items awaiting manual intervention.
func (q *Queue) DeadLetters(ctx context.Context) ([]*storage.RetryItem, error) {
	return q.store.ListDeadLetters(ctx)
}

// Requeue resets a dead-lettered item to attempt 1 and returns it to the
// active queue, due immediately. This is the only way out of the dead-letter
// state.
func (q *Queue) Requeue(ctx context.Context, id uuid.UUID) error {
	return q.store.Requeue(ctx, id)
}

// ReleaseStale recovers in-flight items abandoned by a previous run.
func (q *Queue) ReleaseStale(ctx context.Context, window time.Duration) (int, error) {
	return q.store.ReleaseStale(ctx, time.Now().Add(-window))
}

// Stats returns aggregate queue counts for monitoring.
func (q *Queue) Stats(ctx context.Context) (storage.Counts, error) {
	return q.store.Counts(ctx)
}
