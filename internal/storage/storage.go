// Package storage defines the narrow persistence interfaces the ingestion
// pipeline depends on, plus an in-memory implementation used as the fast
// path in tests and single-node deployments. The Postgres implementation
// lives in the pgstore subpackage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a webhook or retry item does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNotDeadLettered is returned when Requeue targets a row that is not
	// in the dead_letter state.
	ErrNotDeadLettered = errors.New("item is not dead-lettered")
)

// WebhookStore persists the inbound webhook audit log.
type WebhookStore interface {
	SaveWebhook(ctx context.Context, wh *InboundWebhook) error
	UpdateWebhookStatus(ctx context.Context, id uuid.UUID, status WebhookStatus, lastError string) error
	GetWebhook(ctx context.Context, id uuid.UUID) (*InboundWebhook, error)
}

// RetryStore persists retry and dead-letter records. Implementations own the
// row lifecycle; callers go through the retry queue rather than mutating
// rows directly.
type RetryStore interface {
	SaveRetryItem(ctx context.Context, item *RetryItem) error
	UpdateRetryItem(ctx context.Context, item *RetryItem) error
	GetRetryItem(ctx context.Context, id uuid.UUID) (*RetryItem, error)

	// ListDue returns up to limit pending items whose next_retry_at has
	// passed, marking each in_flight so overlapping sweeps cannot pick
	// them up twice.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*RetryItem, error)

	MarkResolved(ctx context.Context, id uuid.UUID) error
	MoveToDeadLetter(ctx context.Context, id uuid.UUID, lastError string) error
	ListDeadLetters(ctx context.Context) ([]*RetryItem, error)

	// Requeue resets a dead-lettered item to attempt 1 and returns it to the
	// pending state, due immediately.
	Requeue(ctx context.Context, id uuid.UUID) error

	// ReleaseStale returns in_flight items from a previous run to the
	// pending state so a crashed sweep cannot strand them forever.
	ReleaseStale(ctx context.Context, olderThan time.Time) (int, error)

	Counts(ctx context.Context) (Counts, error)
}

// Store combines both stores; the memory and pgstore implementations
// satisfy it.
type Store interface {
	WebhookStore
	RetryStore
}
