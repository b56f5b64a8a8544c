package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds one webhook call.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	defaultBackoff = 500 * time.Millisecond
	maxBodyBytes   = 1 << 20
)

var placeholderMarkers = []string{"your-n8n-instance", "placeholder"}

// Webhook posts actions to per-action webhook URLs.
type Webhook struct {
	urls       map[string]string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	attempts   int
	backoff    time.Duration
	log        *slog.Logger
	now        func() time.Time
}

// WebhookOption configures the Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.httpClient = c }
}

// WithTimeout sets the per-attempt timeout. It is applied to each request's
// context, so a client passed with WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithRateLimit sets a custom rate limit. Zero keeps the default.
func WithRateLimit(requestsPerSecond int) WebhookOption {
	return func(w *Webhook) {
		if requestsPerSecond > 0 {
			w.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithRetry allows up to attempts calls per Fire, backing off exponentially
// from backoff. Only transport failures and 5xx responses are retried.
func WithRetry(attempts int, backoff time.Duration) WebhookOption {
	return func(w *Webhook) {
		if attempts > 0 {
			w.attempts = attempts
		}
		if backoff > 0 {
			w.backoff = backoff
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.log = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) WebhookOption {
	return func(w *Webhook) { w.now = now }
}

// NewWebhook returns a Webhook for the given action → URL map. Empty URLs
// are treated as not configured.
func NewWebhook(urls map[string]string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		urls:       maps.Clone(urls),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		attempts:   1,
		backoff:    defaultBackoff,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Configured reports whether action has a usable URL.
func (w *Webhook) Configured(action string) bool {
	_, err := w.url(action)
	return err == nil
}

func (w *Webhook) url(action string) (string, error) {
	u := strings.TrimSpace(w.urls[action])
	if u == "" {
		return "", fmt.Errorf("%w for %s", ErrNotConfigured, action)
	}
	for _, m := range placeholderMarkers {
		if strings.Contains(u, m) {
			return "", fmt.Errorf("%w for %s", ErrPlaceholder, action)
		}
	}
	return u, nil
}

// Fire implements Trigger. The body is {action, id, timestamp, requestId}
// merged with payload; payload keys win on collision except action and id.
func (w *Webhook) Fire(ctx context.Context, action, id string, payload map[string]any) (Result, error) {
	u, err := w.url(action)
	if err != nil {
		return Result{}, err
	}

	body := make(map[string]any, len(payload)+4)
	body["timestamp"] = w.now().UTC().Format(time.RFC3339Nano)
	body["requestId"] = uuid.NewString()
	maps.Copy(body, payload)
	body["action"] = action
	body["id"] = id

	raw, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("encode %s payload: %w", action, err)
	}

	w.log.Info("sending webhook", "action", action, "id", id, "requestId", body["requestId"])

	delay := w.backoff
	for attempt := 1; ; attempt++ {
		res, err := w.post(ctx, action, u, raw)
		if err == nil || attempt >= w.attempts || !retryable(ctx, err) {
			if err != nil {
				w.log.Error("webhook failed", "action", action, "id", id, "attempt", attempt, "error", err)
			}
			return res, err
		}
		w.log.Warn("webhook failed, retrying", "action", action, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (w *Webhook) post(ctx context.Context, action, u string, raw []byte) (Result, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit exceeded: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Result{}, &Error{Action: action, StatusCode: resp.StatusCode}
	}

	// The worker often answers with an empty or non-JSON body.
	data := map[string]any{}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err == nil && len(bytes.TrimSpace(b)) > 0 {
		if jerr := json.Unmarshal(b, &data); jerr != nil {
			data = map[string]any{}
		}
	}
	return Result{Success: true, Data: data}, nil
}

// retryable reports whether err is a transport failure or a 5xx while the
// caller's context is still live.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var herr *Error
	if errors.As(err, &herr) {
		return herr.StatusCode >= 500
	}
	return true
}
