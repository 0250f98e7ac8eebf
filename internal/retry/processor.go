package retry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/restohub/ingest/internal/backend"
	"github.com/restohub/ingest/internal/notify"
	"github.com/restohub/ingest/internal/order"
	"github.com/restohub/ingest/internal/storage"
)

// Submitter resubmits canonical orders to the backend. Satisfied by
// backend.Client.
type Submitter interface {
	CreateOrder(ctx context.Context, o order.Order) (string, error)
}

// Processor sweeps the retry queue on a fixed interval, plus once at
// startup. Sweeps are single-flight: a tick that fires while a sweep is
// still running is skipped rather than run concurrently, which together with
// the store's in-flight claim guarantees an item is never resubmitted twice
// at once.
type Processor struct {
	queue     *Queue
	webhooks  storage.WebhookStore
	client    Submitter
	notifier  notify.Notifier
	log       *slog.Logger
	interval  time.Duration
	batchSize int
	staleWin  time.Duration

	sweeping atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewProcessor wires a processor. Interval and batch size fall back to the
// production defaults when zero.
func NewProcessor(queue *Queue, webhooks storage.WebhookStore, client Submitter, notifier notify.Notifier, log *slog.Logger, cfg Config) *Processor {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	staleWin := cfg.StaleLockWindow
	if staleWin <= 0 {
		staleWin = 10 * time.Minute
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		queue:     queue,
		webhooks:  webhooks,
		client:    client,
		notifier:  notifier,
		log:       log,
		interval:  interval,
		batchSize: batch,
		staleWin:  staleWin,
	}
}

// Start launches the sweep loop. The first sweep runs immediately so a
// restart drains whatever came due while the process was down.
func (p *Processor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		p.Sweep(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Sweep(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-progress sweep to finish.
func (p *Processor) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Sweep processes one batch of due items. Returns false when another sweep
// was already running and this one was skipped.
func (p *Processor) Sweep(ctx context.Context) bool {
	if !p.sweeping.CompareAndSwap(false, true) {
		p.log.Debug("retry sweep already running, skipping")
		return false
	}
	defer p.sweeping.Store(false)

	// In-flight claims older than the stale window belong to a crashed run,
	// not to a sweep in progress elsewhere. Checking on every sweep means a
	// claim that was too fresh to release at startup is still picked up once
	// it crosses the window.
	if released, err := p.queue.ReleaseStale(ctx, p.staleWin); err != nil {
		p.log.Error("stale retry recovery failed", slog.String("error", err.Error()))
	} else if released > 0 {
		p.log.Warn("recovered stale in-flight retry items", slog.Int("count", released))
	}

	items, err := p.queue.DueItems(ctx, p.batchSize)
	if err != nil {
		p.log.Error("listing due retry items failed", slog.String("error", err.Error()))
		return true
	}
	if len(items) == 0 {
		return true
	}

	p.log.Info("processing due retry items", slog.Int("count", len(items)))
	for _, item := range items {
		if ctx.Err() != nil {
			return true
		}
		p.process(ctx, item)
	}
	return true
}

func (p *Processor) process(ctx context.Context, item *storage.RetryItem) {
	var o order.Order
	if err := json.Unmarshal(item.Payload, &o); err != nil {
		// Snapshot corruption cannot heal with another attempt.
		p.deadLetter(ctx, item, "corrupt payload snapshot: "+err.Error())
		return
	}

	orderID, err := p.client.CreateOrder(ctx, o)
	if err == nil {
		if resolveErr := p.queue.Resolve(ctx, item.ID); resolveErr != nil {
			p.log.Error("resolving retry item failed",
				slog.String("retry_id", item.ID.String()),
				slog.String("error", resolveErr.Error()))
			return
		}
		if err := p.webhooks.UpdateWebhookStatus(ctx, item.WebhookID, storage.WebhookProcessed, ""); err != nil {
			p.log.Error("marking webhook processed failed",
				slog.String("webhook_id", item.WebhookID.String()),
				slog.String("error", err.Error()))
		}
		p.log.Info("retry delivery succeeded",
			slog.String("retry_id", item.ID.String()),
			slog.String("provider", item.Provider),
			slog.Int("attempt", item.Attempt),
			slog.String("order_id", orderID))
		p.notifier.Notify(ctx, notify.Event{
			Type:      notify.RetryResolved,
			Provider:  item.Provider,
			WebhookID: item.WebhookID,
			OrderID:   orderID,
			At:        time.Now(),
		})
		return
	}

	if !backend.IsRetryable(err) {
		p.deadLetter(ctx, item, err.Error())
		return
	}

	updated, dead, failErr := p.queue.Fail(ctx, item.ID, err.Error())
	if failErr != nil {
		p.log.Error("recording retry failure failed",
			slog.String("retry_id", item.ID.String()),
			slog.String("error", failErr.Error()))
		return
	}
	if dead {
		p.log.Warn("retry attempts exhausted, item dead-lettered",
			slog.String("retry_id", item.ID.String()),
			slog.String("provider", item.Provider),
			slog.Int("attempt", updated.Attempt),
			slog.String("error", err.Error()))
		p.notifier.Notify(ctx, notify.Event{
			Type:      notify.RetryExhausted,
			Provider:  item.Provider,
			WebhookID: item.WebhookID,
			Error:     err.Error(),
			At:        time.Now(),
		})
		return
	}
	p.log.Info("retry delivery failed, rescheduled",
		slog.String("retry_id", item.ID.String()),
		slog.String("provider", item.Provider),
		slog.Int("attempt", updated.Attempt),
		slog.Time("next_retry_at", updated.NextRetryAt),
		slog.String("error", err.Error()))
	p.notifier.Notify(ctx, notify.Event{
		Type:      notify.RetryScheduled,
		Provider:  item.Provider,
		WebhookID: item.WebhookID,
		Error:     err.Error(),
		At:        time.Now(),
	})
}

// deadLetter moves an item straight to the dead-letter store for failures
// that no amount of retrying can fix.
func (p *Processor) deadLetter(ctx context.Context, item *storage.RetryItem, reason string) {
	if err := p.queue.store.MoveToDeadLetter(ctx, item.ID, reason); err != nil {
		p.log.Error("dead-lettering retry item failed",
			slog.String("retry_id", item.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	p.log.Warn("retry item dead-lettered",
		slog.String("retry_id", item.ID.String()),
		slog.String("provider", item.Provider),
		slog.String("reason", reason))
	p.notifier.Notify(ctx, notify.Event{
		Type:      notify.RetryExhausted,
		Provider:  item.Provider,
		WebhookID: item.WebhookID,
		Error:     reason,
		At:        time.Now(),
	})
}
