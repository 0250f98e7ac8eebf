// Package backend sends canonical orders to the internal order API. All
// mutating calls are routed through the shared circuit breaker; failures come
// back classified so callers can decide retryability without re-inspecting
// status codes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/restohub/ingest/internal/breaker"
	"github.com/restohub/ingest/internal/order"
)

// inlineRetries is the small courtesy retry budget used when the breaker
// reopens mid-call. The durable retry queue remains the path of last resort.
const inlineRetries = 3

// Config holds backend connection settings.
type Config struct {
	BaseURL   string `env:"BACKEND_BASE_URL,required"`
	APIToken  string `env:"BACKEND_API_TOKEN"`
	TimeoutMS int64  `env:"BACKEND_TIMEOUT_MS" envDefault:"10000"`
}

// Client performs order API calls through a circuit breaker.
type Client struct {
	baseURL  string
	apiToken string
	http     *http.Client
	breaker  *breaker.Breaker
}

// NewClient creates a backend client. The breaker instance must be the
// process-wide one shared across all callers of this backend.
func NewClient(cfg Config, cb *breaker.Breaker) *Client {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiToken: cfg.APIToken,
		breaker:  cb,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type createOrderResponse struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
}

// CreateOrder submits a canonical order and returns the backend order id.
// When the breaker rejects the call but its cool-down has just elapsed, the
// client makes up to three immediate in-line retries with linear backoff
// before giving up to the durable retry path.
func (c *Client) CreateOrder(ctx context.Context, o order.Order) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= inlineRetries; attempt++ {
		result, err := c.breaker.Execute(ctx, func(callCtx context.Context) (any, error) {
			return c.postOrder(callCtx, o)
		})
		if err == nil {
			id, _ := result.(string)
			return id, nil
		}
		lastErr = err

		var openErr *breaker.OpenError
		if !errors.As(err, &openErr) || openErr.RetryIn > 0 {
			break
		}
		// Breaker just transitioned out of OPEN and another caller holds the
		// probe slot: try once more now instead of burning a queue attempt.
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", ErrTransient, ctx.Err())
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return "", classify(lastErr)
}

// UpdateStatus pushes a status change for an existing backend order.
func (c *Client) UpdateStatus(ctx context.Context, orderID string, status order.CanonicalStatus) error {
	_, err := c.breaker.Execute(ctx, func(callCtx context.Context) (any, error) {
		body, err := json.Marshal(map[string]string{"status": string(status)})
		if err != nil {
			return nil, err
		}
		return nil, c.do(callCtx, http.MethodPatch, "/orders/"+orderID+"/status", body, nil)
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// HealthCheck probes the backend directly, bypassing the breaker so operators
// can observe recovery while the circuit is still open. Reports call latency.
func (c *Client) HealthCheck(ctx context.Context) (bool, time.Duration) {
	start := time.Now()
	err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	return err == nil, time.Since(start)
}

func (c *Client) postOrder(ctx context.Context, o order.Order) (string, error) {
	body, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	var resp createOrderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", body, &resp); err != nil {
		return "", err
	}
	if resp.ID != "" {
		return resp.ID, nil
	}
	return resp.OrderID, nil
}

// do performs one HTTP round trip and classifies non-2xx responses.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures are treated identically.
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(out); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: undecodable response: %w", ErrTransient, err)
			}
		}
		return nil
	}

	// Error context is captured for the audit log but truncated to keep log
	// lines bounded.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	detail := strings.ReplaceAll(string(snippet), "\n", " ")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrAuth, resp.StatusCode, detail)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: status %d: %s", ErrValidation, resp.StatusCode, detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrPermanent, resp.StatusCode, detail)
	}
}

// classify wraps breaker rejections and timeouts as transient so retryability
// checks see one consistent taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, breaker.ErrOpen):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAuth),
		errors.Is(err, ErrTransient), errors.Is(err, ErrPermanent):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
}
