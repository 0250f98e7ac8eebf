package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/restohub/ingest/internal/breaker"
	"github.com/restohub/ingest/internal/retry"
	"github.com/restohub/ingest/internal/storage"
	"github.com/restohub/ingest/pkg/clientip"
	"github.com/restohub/ingest/pkg/ratelimiter"
)

// maxBodyBytes caps webhook request bodies; provider order payloads are
// well under this.
const maxBodyBytes = 1 << 20

// ServiceName appears in health responses.
const ServiceName = "webhook-ingest"

// Handler exposes the ingestion and operator HTTP surface.
type Handler struct {
	orchestrator *Orchestrator
	breaker      *breaker.Breaker
	queue        *retry.Queue
	limiter      *ratelimiter.Limiter
	log          *slog.Logger
}

// NewHandler builds the HTTP layer. limiter may be nil to disable rate
// limiting (tests, trusted environments).
func NewHandler(orchestrator *Orchestrator, cb *breaker.Breaker, queue *retry.Queue, limiter *ratelimiter.Limiter, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		orchestrator: orchestrator,
		breaker:      cb,
		queue:        queue,
		limiter:      limiter,
		log:          log,
	}
}

// Router assembles the chi routes.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/health", h.health)

		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(ratelimiter.Middleware(h.limiter, webhookRateKey))
			}
			r.Post("/{provider}", h.receive)
		})
	})

	r.Route("/ops", func(r chi.Router) {
		r.Get("/circuit", h.circuitStats)
		r.Post("/circuit/reset", h.circuitReset)
		r.Get("/retries", h.retryStats)
		r.Get("/deadletters", h.deadLetters)
		r.Post("/deadletters/{id}/requeue", h.requeue)
	})

	return r
}

// webhookRateKey buckets requests per (provider, source IP) pair. The
// provider is taken from the path because route params are not yet resolved
// when group middleware runs.
func webhookRateKey(r *http.Request) string {
	provider := strings.ToLower(path.Base(r.URL.Path))
	if provider == "" || provider == "webhooks" {
		return ""
	}
	return provider + ":" + clientip.FromRequest(r)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable body"})
		return
	}

	result := h.orchestrator.Handle(r.Context(), providerName, body, r.Header, clientip.FromRequest(r))
	writeJSON(w, result.Status, result.Body)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   ServiceName,
	})
}

func (h *Handler) circuitStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.breaker.Stats())
}

func (h *Handler) circuitReset(w http.ResponseWriter, r *http.Request) {
	h.breaker.Reset()
	h.log.Info("circuit breaker manually reset")
	writeJSON(w, http.StatusOK, h.breaker.Stats())
}

func (h *Handler) retryStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) deadLetters(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.DeadLetters(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "dead letters unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) requeue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid id"})
		return
	}

	switch err := h.queue.Requeue(r.Context(), id); {
	case err == nil:
		h.log.Info("dead-letter item requeued", slog.String("retry_id", id.String()))
		writeJSON(w, http.StatusOK, map[string]any{"requeued": id})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	case errors.Is(err, storage.ErrNotDeadLettered):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "item is not dead-lettered"})
	default:
		h.log.Error("requeue failed", slog.String("retry_id", id.String()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "requeue failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
