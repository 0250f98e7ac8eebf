package backend

import (
	"errors"

	"github.com/restohub/ingest/internal/breaker"
)

// Classification sentinels for backend call failures. The orchestrator and
// retry processor decide retryability through IsRetryable rather than
// re-inspecting status codes or low-level causes.
var (
	// ErrValidation marks a 400/422 response: the payload is malformed and a
	// retry will not change the outcome.
	ErrValidation = errors.New("backend rejected order as invalid")

	// ErrAuth marks a 401/403 response: credentials are wrong or revoked.
	// Not retried; should alert operators.
	ErrAuth = errors.New("backend authentication failed")

	// ErrTransient marks network failures, timeouts, 5xx responses, and
	// circuit-open rejections. Retried through the durable queue.
	ErrTransient = errors.New("transient backend failure")

	// ErrPermanent marks other non-auth 4xx responses. Not retried.
	ErrPermanent = errors.New("permanent backend failure")
)

// IsRetryable reports whether a failed delivery should enter the retry queue.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, breaker.ErrOpen)
}
