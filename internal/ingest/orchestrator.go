// Package ingest wires the webhook request path: audit log, signature
// validation, sanitation, payload adaptation, backend submission, and the
// retry enqueue fallback.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/restohub/ingest/internal/backend"
	"github.com/restohub/ingest/internal/notify"
	"github.com/restohub/ingest/internal/order"
	"github.com/restohub/ingest/internal/provider"
	"github.com/restohub/ingest/internal/retry"
	"github.com/restohub/ingest/internal/signature"
	"github.com/restohub/ingest/internal/storage"
	"github.com/restohub/ingest/pkg/sanitizer"
)

// Submitter is the slice of the backend client the orchestrator needs.
type Submitter interface {
	CreateOrder(ctx context.Context, o order.Order) (string, error)
}

// Result is the HTTP outcome of one webhook delivery.
type Result struct {
	Status int
	Body   any
}

// Generic failure bodies. Intentionally content-free: external callers never
// learn which check failed or what the backend said.
var (
	resultUnsupported  = Result{Status: http.StatusBadRequest, Body: map[string]any{"error": "unsupported provider"}}
	resultUnauthorized = Result{Status: http.StatusUnauthorized, Body: map[string]any{"error": "unauthorized"}}
	resultBadPayload   = Result{Status: http.StatusBadRequest, Body: map[string]any{"error": "invalid payload"}}
)

// Orchestrator sequences the ingestion pipeline for one inbound request,
// short-circuiting on the first failure.
type Orchestrator struct {
	registry  *provider.Registry
	validator *signature.Validator
	client    Submitter
	queue     *retry.Queue
	store     storage.WebhookStore
	notifier  notify.Notifier
	log       *slog.Logger
}

// NewOrchestrator composes the pipeline from its ports.
func NewOrchestrator(
	registry *provider.Registry,
	validator *signature.Validator,
	client Submitter,
	queue *retry.Queue,
	store storage.WebhookStore,
	notifier notify.Notifier,
	log *slog.Logger,
) *Orchestrator {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		registry:  registry,
		validator: validator,
		client:    client,
		queue:     queue,
		store:     store,
		notifier:  notifier,
		log:       log,
	}
}

// Handle processes one webhook delivery and returns the HTTP response to
// send. Ordering is deliberate: the raw delivery is logged before any
// validation so rejected and malformed requests stay inspectable.
func (o *Orchestrator) Handle(ctx context.Context, providerName string, body []byte, headers http.Header, sourceIP string) Result {
	adapter, err := o.registry.Get(providerName)
	if err != nil {
		o.log.Warn("webhook for unsupported provider",
			slog.String("provider", providerName),
			slog.String("source_ip", sourceIP))
		return resultUnsupported
	}

	wh := &storage.InboundWebhook{
		ID:         uuid.New(),
		Provider:   adapter.Name(),
		Body:       body,
		Headers:    headers,
		SourceIP:   sourceIP,
		Status:     storage.WebhookReceived,
		ReceivedAt: time.Now(),
	}
	if err := o.store.SaveWebhook(ctx, wh); err != nil {
		// The audit row is best-effort: losing it must not drop the order.
		o.log.Error("saving webhook log failed",
			slog.String("provider", wh.Provider),
			slog.String("error", err.Error()))
	}
	log := o.log.With(
		slog.String("provider", wh.Provider),
		slog.String("webhook_id", wh.ID.String()))
	log.Info("webhook received", slog.String("source_ip", sourceIP), slog.Int("bytes", len(body)))
	o.notifier.Notify(ctx, notify.Event{
		Type: notify.WebhookReceived, Provider: wh.Provider, WebhookID: wh.ID, At: time.Now(),
	})

	if err := o.validator.Validate(wh.Provider, body, headers, sourceIP); err != nil {
		// Log the precise reason; the response stays generic.
		log.Warn("webhook authentication failed", slog.String("error", err.Error()))
		o.updateStatus(ctx, wh.ID, storage.WebhookAuthFailed, err.Error())
		return resultUnauthorized
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("webhook body is not valid json", slog.String("error", err.Error()))
		o.updateStatus(ctx, wh.ID, storage.WebhookInvalid, err.Error())
		return resultBadPayload
	}

	// Strip executable content before any field extraction so nothing
	// hostile survives into the canonical order or the dashboards.
	payload = sanitizer.Map(payload)

	if !adapter.ValidatePayload(payload) {
		log.Warn("webhook payload failed structural validation")
		o.updateStatus(ctx, wh.ID, storage.WebhookInvalid, "payload failed structural validation")
		return Result{Status: http.StatusBadRequest, Body: adapter.FormatAck(false, "", provider.ErrInvalidPayload)}
	}

	canonical, err := adapter.ExtractOrder(payload)
	if err != nil {
		log.Warn("webhook payload extraction failed", slog.String("error", err.Error()))
		o.updateStatus(ctx, wh.ID, storage.WebhookInvalid, err.Error())
		return Result{Status: http.StatusBadRequest, Body: adapter.FormatAck(false, "", err)}
	}

	orderID, err := o.client.CreateOrder(ctx, canonical)
	if err != nil {
		return o.handleBackendFailure(ctx, log, adapter, wh, canonical, err)
	}

	o.updateStatus(ctx, wh.ID, storage.WebhookProcessed, "")
	log.Info("webhook processed",
		slog.String("order_id", orderID),
		slog.String("external_id", canonical.ExternalID))
	o.notifier.Notify(ctx, notify.Event{
		Type: notify.WebhookProcessed, Provider: wh.Provider, WebhookID: wh.ID,
		OrderID: orderID, At: time.Now(),
	})
	return Result{Status: http.StatusOK, Body: adapter.FormatAck(true, orderID, nil)}
}

func (o *Orchestrator) handleBackendFailure(ctx context.Context, log *slog.Logger, adapter provider.Adapter, wh *storage.InboundWebhook, canonical order.Order, err error) Result {
	log.Error("backend order submission failed", slog.String("error", err.Error()))
	o.updateStatus(ctx, wh.ID, storage.WebhookFailed, err.Error())
	o.notifier.Notify(ctx, notify.Event{
		Type: notify.WebhookFailed, Provider: wh.Provider, WebhookID: wh.ID,
		Error: err.Error(), At: time.Now(),
	})

	if backend.IsRetryable(err) {
		snapshot, marshalErr := json.Marshal(canonical)
		if marshalErr != nil {
			log.Error("canonical order snapshot failed", slog.String("error", marshalErr.Error()))
		} else if item, enqErr := o.queue.Enqueue(ctx, wh.ID, wh.Provider, snapshot, 1, err.Error()); enqErr != nil {
			log.Error("retry enqueue failed", slog.String("error", enqErr.Error()))
		} else {
			log.Info("delivery queued for retry",
				slog.String("retry_id", item.ID.String()),
				slog.Time("next_retry_at", item.NextRetryAt))
			o.notifier.Notify(ctx, notify.Event{
				Type: notify.RetryScheduled, Provider: wh.Provider, WebhookID: wh.ID,
				Error: err.Error(), At: time.Now(),
			})
		}
	}

	// External callers get a generic failure regardless of the internal
	// classification.
	return Result{Status: http.StatusBadRequest, Body: adapter.FormatAck(false, "", err)}
}

func (o *Orchestrator) updateStatus(ctx context.Context, id uuid.UUID, status storage.WebhookStatus, lastError string) {
	if err := o.store.UpdateWebhookStatus(ctx, id, status, lastError); err != nil {
		o.log.Error("updating webhook status failed",
			slog.String("webhook_id", id.String()),
			slog.String("error", err.Error()))
	}
}
