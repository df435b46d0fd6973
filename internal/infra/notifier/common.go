package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"feed-resilience/internal/resilience/circuitbreaker"
	"feed-resilience/internal/resilience/retry"
)

const defaultRetryAfter = 5 * time.Second

// RateLimitError is a 429 from a webhook. It unwraps to a retryable
// retry.HTTPError so the backoff loop tries again after RetryAfter.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return &retry.HTTPError{StatusCode: http.StatusTooManyRequests, Message: e.Message}
}

// webhook posts JSON payloads to one URL.
type webhook struct {
	name       string
	url        string
	httpClient *http.Client
	limiter    *RateLimiter
	breaker    *circuitbreaker.CircuitBreaker
	retryCfg   retry.Config
}

func newWebhook(name, url string, timeout time.Duration, limiter *RateLimiter, retryCfg *retry.Config) *webhook {
	cfg := retry.WebhookConfig()
	if retryCfg != nil {
		cfg = *retryCfg
	}
	return &webhook{
		name:       name,
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		breaker:    circuitbreaker.New(circuitbreaker.WebhookConfig(name + "-webhook")),
		retryCfg:   cfg,
	}
}

// send rate limits, then posts payload with retries. A 429 delays the next
// attempt by the advertised retry-after instead of the backoff delay alone.
func (w *webhook) send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	requestID := uuid.New().String()
	if err := w.limiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var wait time.Duration
	attempt := 0
	err = retry.WithBackoff(ctx, w.retryCfg, func() error {
		attempt++
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			wait = 0
		}
		_, err := w.breaker.Execute(func() (interface{}, error) {
			return nil, w.post(ctx, body)
		})
		var rl *RateLimitError
		if errors.As(err, &rl) {
			wait = rl.RetryAfter
		}
		return err
	})
	if err != nil {
		slog.Warn("webhook delivery failed",
			slog.String("request_id", requestID),
			slog.String("channel", w.name),
			slog.Int("attempts", attempt),
			slog.Any("error", err))
		return fmt.Errorf("%s webhook: %w", w.name, err)
	}
	slog.Info("webhook delivered",
		slog.String("request_id", requestID),
		slog.String("channel", w.name),
		slog.Int("attempts", attempt))
	return nil
}

func (w *webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    w.name + " rate limit exceeded",
			RetryAfter: extractRetryAfter(resp, respBody),
		}
	default:
		// status and body only; the webhook URL carries the token
		return &retry.HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
}

// extractRetryAfter reads retry_after (seconds) from a JSON body, then the
// Retry-After header, and falls back to five seconds.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.RetryAfter > 0 {
		return time.Duration(payload.RetryAfter * float64(time.Second))
	}
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultRetryAfter
}

// truncate cuts text to maxLength bytes including suffix.
func truncate(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}
	cut := maxLength - len(suffix)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + suffix
}
