package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restohub/ingest/internal/storage"
)

func newWebhook() *storage.InboundWebhook {
	return &storage.InboundWebhook{
		ID:         uuid.New(),
		Provider:   "careem",
		Body:       []byte(`{"id":"1"}`),
		Headers:    map[string][]string{"X-Careem-Signature": {"abc"}},
		SourceIP:   "10.0.0.1",
		Status:     storage.WebhookReceived,
		ReceivedAt: time.Now(),
	}
}

func newRetryItem(status storage.RetryStatus, nextRetryAt time.Time) *storage.RetryItem {
	now := time.Now()
	return &storage.RetryItem{
		ID:          uuid.New(),
		WebhookID:   uuid.New(),
		Provider:    "careem",
		Payload:     []byte(`{}`),
		Attempt:     1,
		Status:      status,
		NextRetryAt: nextRetryAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestMemoryStore_WebhookLifecycle(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := context.Background()
	wh := newWebhook()

	require.NoError(t, s.SaveWebhook(ctx, wh))

	got, err := s.GetWebhook(ctx, wh.ID)
	require.NoError(t, err)
	assert.Equal(t, wh.Provider, got.Provider)
	assert.Equal(t, wh.Body, got.Body)

	require.NoError(t, s.UpdateWebhookStatus(ctx, wh.ID, storage.WebhookProcessed, ""))
	got, err = s.GetWebhook(ctx, wh.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.WebhookProcessed, got.Status)

	// Reads return copies; mutating them must not leak into the store.
	got.Status = storage.WebhookFailed
	fresh, err := s.GetWebhook(ctx, wh.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.WebhookProcessed, fresh.Status)
}

func TestMemoryStore_WebhookNotFound(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetWebhook(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = s.UpdateWebhookStatus(ctx, uuid.New(), storage.WebhookProcessed, "")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_ListDueClaimsOldestFirst(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	oldest := newRetryItem(storage.RetryPending, now.Add(-3*time.Hour))
	middle := newRetryItem(storage.RetryPending, now.Add(-2*time.Hour))
	newest := newRetryItem(storage.RetryPending, now.Add(-time.Hour))
	future := newRetryItem(storage.RetryPending, now.Add(time.Hour))

	for _, item := range []*storage.RetryItem{newest, oldest, future, middle} {
		require.NoError(t, s.SaveRetryItem(ctx, item))
	}

	due, err := s.ListDue(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, oldest.ID, due[0].ID)
	assert.Equal(t, middle.ID, due[1].ID)
	assert.Equal(t, storage.RetryInFlight, due[0].Status)

	// Claimed and future items are excluded from the next pass.
	rest, err := s.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, newest.ID, rest[0].ID)
}

func TestMemoryStore_MarkResolved(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := context.Background()
	item := newRetryItem(storage.RetryPending, time.Now())
	require.NoError(t, s.SaveRetryItem(ctx, item))

	require.NoError(t, s.MarkResolved(ctx, item.ID))

	got, err := s.GetRetryItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RetryResolved, got.Status)

	require.ErrorIs(t, s.MarkResolved(ctx, uuid.New()), storage.ErrNotFound)
}

func TestMemoryStore_DeadLetterFlow(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := context.Background()
	item := newRetryItem(storage.RetryPending, time.Now())
	require.NoError(t, s.SaveRetryItem(ctx, item))

	require.NoError(t, s.MoveToDeadLetter(ctx, item.ID, "gave up"))

	got, err := s.GetRetryItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RetryDeadLetter, got.Status)
	assert.Equal(t, "gave up", got.LastError)
	require.NotNil(t, got.MovedAt)

	dead, err := s.ListDeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)

	// Requeue is the only way back out.
	require.NoError(t, s.Requeue(ctx, item.ID))
	got, err = s.GetRetryItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RetryPending, got.Status)
	assert.Equal(t, 1, got.Attempt)
	assert.Nil(t, got.MovedAt)

	dead, err = s.ListDeadLetters(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestMemoryStore_RequeueErrors(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := context.Background()

	require.ErrorIs(t, s.Requeue(ctx, uuid.New()), storage.ErrNotFound)

	item := newRetryItem(storage.RetryPending, time.Now())
	require.NoError(t, s.SaveRetryItem(ctx, item))
	require.ErrorIs(t, s.Requeue(ctx, item.ID), storage.ErrNotDeadLettered)
}

func TestMemoryStore_ReleaseStale(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := context.Background()

	stale := newRetryItem(storage.RetryInFlight, time.Now().Add(-time.Hour))
	stale.UpdatedAt = time.Now().Add(-time.Hour)
	fresh := newRetryItem(storage.RetryInFlight, time.Now())
	pending := newRetryItem(storage.RetryPending, time.Now())

	for _, item := range []*storage.RetryItem{stale, fresh, pending} {
		require.NoError(t, s.SaveRetryItem(ctx, item))
	}

	released, err := s.ReleaseStale(ctx, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	got, err := s.GetRetryItem(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RetryPending, got.Status)

	got, err = s.GetRetryItem(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RetryInFlight, got.Status)
}

func TestMemoryStore_Counts(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	ctx := context.Background()

	for _, status := range []storage.RetryStatus{
		storage.RetryPending, storage.RetryPending,
		storage.RetryInFlight,
		storage.RetryDeadLetter,
		storage.RetryResolved, storage.RetryResolved, storage.RetryResolved,
	} {
		require.NoError(t, s.SaveRetryItem(ctx, newRetryItem(status, time.Now())))
	}

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Counts{Pending: 2, InFlight: 1, DeadLetter: 1, Resolved: 3}, counts)
}

func TestMemoryStore_UpdateRetryItemUnknown(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStore()
	item := newRetryItem(storage.RetryPending, time.Now())
	require.ErrorIs(t, s.UpdateRetryItem(context.Background(), item), storage.ErrNotFound)
}
