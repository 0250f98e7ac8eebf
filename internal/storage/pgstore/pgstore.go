// Package pgstore is the Postgres-backed storage implementation. It is the
// source of truth in multi-node deployments: retry state survives process
// restarts and in-flight rows left behind by a dead process are recovered by
// ReleaseStale on the next sweep.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restohub/ingest/internal/storage"
)

// Store implements storage.Store against a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Postgres store. The schema must already be migrated; see the
// migrations directory next to this package.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) SaveWebhook(ctx context.Context, wh *storage.InboundWebhook) error {
	headers, err := json.Marshal(wh.Headers)
	if err != nil {
		return fmt.Errorf("marshal webhook headers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhook_logs (id, provider, body, headers, source_ip, status, last_error, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wh.ID, wh.Provider, wh.Body, headers, wh.SourceIP, wh.Status, wh.LastError, wh.ReceivedAt,
	)
	return err
}

func (s *Store) UpdateWebhookStatus(ctx context.Context, id uuid.UUID, status storage.WebhookStatus, lastError string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_logs SET status = $2, last_error = $3 WHERE id = $1`,
		id, status, lastError,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, id uuid.UUID) (*storage.InboundWebhook, error) {
	var (
		wh      storage.InboundWebhook
		headers []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, provider, body, headers, source_ip, status, last_error, received_at
		FROM webhook_logs WHERE id = $1`, id,
	).Scan(&wh.ID, &wh.Provider, &wh.Body, &headers, &wh.SourceIP, &wh.Status, &wh.LastError, &wh.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(headers, &wh.Headers); err != nil {
		return nil, fmt.Errorf("unmarshal webhook headers: %w", err)
	}
	return &wh, nil
}

const retryItemColumns = `id, webhook_id, provider, payload, attempt, last_error, status, next_retry_at, moved_at, created_at, updated_at`

func scanRetryItem(row pgx.Row) (*storage.RetryItem, error) {
	var item storage.RetryItem
	err := row.Scan(
		&item.ID, &item.WebhookID, &item.Provider, &item.Payload, &item.Attempt,
		&item.LastError, &item.Status, &item.NextRetryAt, &item.MovedAt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveRetryItem(ctx context.Context, item *storage.RetryItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO retry_items (`+retryItemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.WebhookID, item.Provider, item.Payload, item.Attempt,
		item.LastError, item.Status, item.NextRetryAt, item.MovedAt,
		item.CreatedAt, item.UpdatedAt,
	)
	return err
}

func (s *Store) UpdateRetryItem(ctx context.Context, item *storage.RetryItem) error {
	item.UpdatedAt = time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE retry_items
		SET attempt = $2, last_error = $3, status = $4, next_retry_at = $5, moved_at = $6, updated_at = $7
		WHERE id = $1`,
		item.ID, item.Attempt, item.LastError, item.Status, item.NextRetryAt, item.MovedAt, item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetRetryItem(ctx context.Context, id uuid.UUID) (*storage.RetryItem, error) {
	return scanRetryItem(s.pool.QueryRow(ctx,
		`SELECT `+retryItemColumns+` FROM retry_items WHERE id = $1`, id))
}

// ListDue claims due pending rows with FOR UPDATE SKIP LOCKED so concurrent
// sweeps from other instances cannot deliver the same item twice.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*storage.RetryItem, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE retry_items
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM retry_items
			WHERE status = $3 AND next_retry_at <= $2
			ORDER BY next_retry_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+retryItemColumns,
		storage.RetryInFlight, now, storage.RetryPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*storage.RetryItem
	for rows.Next() {
		item, err := scanRetryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) MarkResolved(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE retry_items SET status = $2, updated_at = now() WHERE id = $1`,
		id, storage.RetryResolved,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) MoveToDeadLetter(ctx context.Context, id uuid.UUID, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE retry_items
		SET status = $2, last_error = $3, moved_at = now(), updated_at = now()
		WHERE id = $1`,
		id, storage.RetryDeadLetter, lastError,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListDeadLetters(ctx context.Context) ([]*storage.RetryItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+retryItemColumns+` FROM retry_items WHERE status = $1 ORDER BY created_at`,
		storage.RetryDeadLetter,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*storage.RetryItem
	for rows.Next() {
		item, err := scanRetryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) Requeue(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE retry_items
		SET status = $2, attempt = 1, next_retry_at = now(), moved_at = NULL, updated_at = now()
		WHERE id = $1 AND status = $3`,
		id, storage.RetryPending, storage.RetryDeadLetter,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a row in the wrong state.
		if _, getErr := s.GetRetryItem(ctx, id); getErr != nil {
			return getErr
		}
		return storage.ErrNotDeadLettered
	}
	return nil
}

func (s *Store) ReleaseStale(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE retry_items
		SET status = $1, next_retry_at = now(), updated_at = now()
		WHERE status = $2 AND updated_at < $3`,
		storage.RetryPending, storage.RetryInFlight, olderThan,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Counts(ctx context.Context) (storage.Counts, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, count(*) FROM retry_items GROUP BY status`)
	if err != nil {
		return storage.Counts{}, err
	}
	defer rows.Close()

	var c storage.Counts
	for rows.Next() {
		var (
			status storage.RetryStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return storage.Counts{}, err
		}
		switch status {
		case storage.RetryPending:
			c.Pending = n
		case storage.RetryInFlight:
			c.InFlight = n
		case storage.RetryDeadLetter:
			c.DeadLetter = n
		case storage.RetryResolved:
			c.Resolved = n
		}
	}
	return c, rows.Err()
}
