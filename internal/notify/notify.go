// Package notify is the outbound event port for the ingestion pipeline.
// The orchestrator and retry processor publish sync events here instead of
// into a global emitter; consumers subscribe through the Hub.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a sync event.
type EventType string

const (
	WebhookReceived  EventType = "webhook.received"
	WebhookProcessed EventType = "webhook.processed"
	WebhookFailed    EventType = "webhook.failed"
	RetryScheduled   EventType = "retry.scheduled"
	RetryExhausted   EventType = "retry.exhausted"
	RetryResolved    EventType = "retry.resolved"
)

// Event is one pipeline notification.
type Event struct {
	Type      EventType `json:"type"`
	Provider  string    `json:"provider"`
	WebhookID uuid.UUID `json:"webhook_id"`
	OrderID   string    `json:"order_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier receives pipeline events. Implementations must not block the
// publisher.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Discard drops all events.
type Discard struct{}

func (Discard) Notify(context.Context, Event) {}

// Slog logs every event at info (or warn for failures).
type Slog struct {
	Log *slog.Logger
}

func (s Slog) Notify(ctx context.Context, evt Event) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{
		slog.String("provider", evt.Provider),
		slog.String("webhook_id", evt.WebhookID.String()),
	}
	if evt.OrderID != "" {
		attrs = append(attrs, slog.String("order_id", evt.OrderID))
	}
	if evt.Error != "" {
		attrs = append(attrs, slog.String("error", evt.Error))
		log.WarnContext(ctx, string(evt.Type), attrs...)
		return
	}
	log.InfoContext(ctx, string(evt.Type), attrs...)
}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evt Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, evt)
		}
	}
}
