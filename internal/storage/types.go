package storage

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus tracks the lifecycle of one logged inbound delivery.
type WebhookStatus string

const (
	WebhookReceived   WebhookStatus = "received"
	WebhookProcessed  WebhookStatus = "processed"
	WebhookAuthFailed WebhookStatus = "auth_failed"
	WebhookInvalid    WebhookStatus = "invalid"
	WebhookFailed     WebhookStatus = "failed"
)

// InboundWebhook is the raw capture of one HTTP delivery. It is written
// before any validation so even rejected or malformed deliveries remain
// inspectable, and is never mutated except for its status and error fields.
type InboundWebhook struct {
	ID         uuid.UUID           `json:"id"`
	Provider   string              `json:"provider"`
	Body       []byte              `json:"body"`
	Headers    map[string][]string `json:"headers"`
	SourceIP   string              `json:"source_ip"`
	Status     WebhookStatus       `json:"status"`
	LastError  string              `json:"last_error,omitempty"`
	ReceivedAt time.Time           `json:"received_at"`
}

// RetryStatus distinguishes rows in the retry log.
type RetryStatus string

const (
	RetryPending    RetryStatus = "retry_pending"
	RetryInFlight   RetryStatus = "in_flight"
	RetryDeadLetter RetryStatus = "dead_letter"
	RetryResolved   RetryStatus = "resolved"
)

// RetryItem is one durable retry record. A dead-lettered item is the same
// row with status dead_letter and MovedAt set; Requeue is the only way out
// of that state.
type RetryItem struct {
	ID          uuid.UUID   `json:"id"`
	WebhookID   uuid.UUID   `json:"webhook_id"`
	Provider    string      `json:"provider"`
	Payload     []byte      `json:"payload"`
	Attempt     int         `json:"attempt"`
	LastError   string      `json:"last_error,omitempty"`
	Status      RetryStatus `json:"status"`
	NextRetryAt time.Time   `json:"next_retry_at"`
	MovedAt     *time.Time  `json:"moved_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Counts aggregates retry log rows by status for monitoring.
type Counts struct {
	Pending    int `json:"pending"`
	InFlight   int `json:"in_flight"`
	DeadLetter int `json:"dead_letter"`
	Resolved   int `json:"resolved"`
}
