package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// MemoryStore keeps bucket state in a mutex-guarded map. Suitable for a
// single instance; buckets untouched for an hour are dropped by a background
// sweep to bound memory.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
}

// NewMemoryStore creates a store with background cleanup.
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go ms.sweep()
	return ms
}

// Close stops the cleanup goroutine.
func (ms *MemoryStore) Close() {
	close(ms.done)
}

func (ms *MemoryStore) Take(ctx context.Context, key string, cfg Config) (int, time.Time, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	b, ok := ms.buckets[key]
	if !ok {
		b = &bucket{tokens: cfg.Capacity, lastRefill: now}
		ms.buckets[key] = b
	}

	// Refill whole intervals only, re-anchoring lastRefill to prevent drift.
	intervals := int(now.Sub(b.lastRefill) / cfg.RefillInterval)
	if intervals > 0 {
		b.tokens = min(b.tokens+intervals*cfg.RefillRate, cfg.Capacity)
		b.lastRefill = now
	}

	b.tokens--
	return b.tokens, b.lastRefill.Add(cfg.RefillInterval), nil
}

// sweep drops buckets that have been idle long enough to be fully refilled
// anyway.
func (ms *MemoryStore) sweep() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ms.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Hour)
			ms.mu.Lock()
			for key, b := range ms.buckets {
				if b.lastRefill.Before(cutoff) {
					delete(ms.buckets, key)
				}
			}
			ms.mu.Unlock()
		}
	}
}
