package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with mutex-guarded maps. It is the source of
// truth in single-node deployments and the backing store for tests; the
// durable deployment uses pgstore instead.
type MemoryStore struct {
	mu       sync.RWMutex
	webhooks map[uuid.UUID]*InboundWebhook
	retries  map[uuid.UUID]*RetryItem
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		webhooks: make(map[uuid.UUID]*InboundWebhook),
		retries:  make(map[uuid.UUID]*RetryItem),
	}
}

func (s *MemoryStore) SaveWebhook(ctx context.Context, wh *InboundWebhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *wh
	s.webhooks[wh.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateWebhookStatus(ctx context.Context, id uuid.UUID, status WebhookStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wh, ok := s.webhooks[id]
	if !ok {
		return ErrNotFound
	}
	wh.Status = status
	wh.LastError = lastError
	return nil
}

func (s *MemoryStore) GetWebhook(ctx context.Context, id uuid.UUID) (*InboundWebhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wh, ok := s.webhooks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wh
	return &cp, nil
}

func (s *MemoryStore) SaveRetryItem(ctx context.Context, item *RetryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *item
	s.retries[item.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateRetryItem(ctx context.Context, item *RetryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.retries[item.ID]; !ok {
		return ErrNotFound
	}
	item.UpdatedAt = time.Now()
	cp := *item
	s.retries[item.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRetryItem(ctx context.Context, id uuid.UUID) (*RetryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.retries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *MemoryStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*RetryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*RetryItem, 0, limit)
	for _, item := range s.retries {
		if item.Status != RetryPending || item.NextRetryAt.After(now) {
			continue
		}
		due = append(due, item)
	}
	// Oldest due first so long-waiting items are not starved by the batch cap.
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*RetryItem, 0, len(due))
	for _, item := range due {
		item.Status = RetryInFlight
		item.UpdatedAt = now
		cp := *item
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) MarkResolved(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.retries[id]
	if !ok {
		return ErrNotFound
	}
	item.Status = RetryResolved
	item.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MoveToDeadLetter(ctx context.Context, id uuid.UUID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.retries[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	item.Status = RetryDeadLetter
	item.LastError = lastError
	item.MovedAt = &now
	item.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ListDeadLetters(ctx context.Context) ([]*RetryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*RetryItem, 0)
	for _, item := range s.retries {
		if item.Status == RetryDeadLetter {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Requeue(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.retries[id]
	if !ok {
		return ErrNotFound
	}
	if item.Status != RetryDeadLetter {
		return ErrNotDeadLettered
	}
	item.Status = RetryPending
	item.Attempt = 1
	item.NextRetryAt = time.Now()
	item.MovedAt = nil
	item.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ReleaseStale(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for _, item := range s.retries {
		if item.Status == RetryInFlight && item.UpdatedAt.Before(olderThan) {
			item.Status = RetryPending
			item.NextRetryAt = time.Now()
			item.UpdatedAt = time.Now()
			released++
		}
	}
	return released, nil
}

func (s *MemoryStore) Counts(ctx context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Counts
	for _, item := range s.retries {
		switch item.Status {
		case RetryPending:
			c.Pending++
		case RetryInFlight:
			c.InFlight++
		case RetryDeadLetter:
			c.DeadLetter++
		case RetryResolved:
			c.Resolved++
		}
	}
	return c, nil
}
