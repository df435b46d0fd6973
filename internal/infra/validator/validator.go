// Package validator checks whether a candidate URL serves a parseable
// RSS/Atom/JSON feed. It uses the gofeed library with the circuit breaker
// and retry helpers from the resilience package.
package validator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/resilience/circuitbreaker"
	"feed-resilience/internal/resilience/retry"
)

const (
	// DefaultTimeout bounds one validation including retries.
	DefaultTimeout = 10 * time.Second

	userAgent    = "FeedResilienceBot/1.0 (+feed-validation)"
	acceptHeader = "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
	maxBodyBytes = 5 << 20
)

// Validator fetches and parses candidate feeds.
type Validator struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	timeout        time.Duration
	checkURL       func(context.Context, string) error
}

// Option customizes a Validator.
type Option func(*Validator)

// WithURLCheck replaces the pre-flight URL check. The default rejects
// hosts on private networks.
func WithURLCheck(fn func(context.Context, string) error) Option {
	return func(v *Validator) { v.checkURL = fn }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(v *Validator) { v.retryConfig = cfg }
}

// WithTimeout overrides the per-validation timeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) { v.timeout = d }
}

// New creates a Validator using client for HTTP requests.
func New(client *http.Client, opts ...Option) *Validator {
	v := &Validator{
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedValidationConfig()),
		retryConfig:    retry.FeedValidationConfig(),
		timeout:        DefaultTimeout,
		checkURL:       entity.ValidatePublicURL,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateCandidate reports whether rawURL is a usable feed. It never
// returns an error: failures are described in ValidationResult.Error.
func (v *Validator) ValidateCandidate(ctx context.Context, rawURL string) entity.ValidationResult {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if err := v.checkURL(ctx, rawURL); err != nil {
		return invalid(err)
	}

	var result entity.ValidationResult
	err := retry.WithBackoff(ctx, v.retryConfig, func() error {
		out, err := v.circuitBreaker.Execute(func() (interface{}, error) {
			return v.fetch(ctx, rawURL)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed validation circuit breaker open, request rejected",
					slog.String("service", "feed-validation"),
					slog.String("url", rawURL),
					slog.String("state", v.circuitBreaker.State().String()))
			}
			return err
		}
		result = out.(entity.ValidationResult)
		return nil
	})
	if err != nil {
		return invalid(err)
	}
	return result
}

// fetch performs one attempt. Only transient failures (transport errors,
// 5xx, 429) are returned as errors so they count against the breaker and
// are retried; a definitive answer is returned as a result.
func (v *Validator) fetch(ctx context.Context, rawURL string) (entity.ValidationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return invalid(err), nil
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := v.client.Do(req)
	if err != nil {
		return entity.ValidationResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return entity.ValidationResult{}, &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return entity.ValidationResult{Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}, nil
	}

	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return entity.ValidationResult{Error: fmt.Sprintf("parse feed: %v", err)}, nil
	}

	return entity.ValidationResult{
		IsValid:     true,
		HasItems:    len(feed.Items) > 0,
		ItemCount:   len(feed.Items),
		Title:       strings.TrimSpace(feed.Title),
		Description: strings.TrimSpace(feed.Description),
	}, nil
}

func invalid(err error) entity.ValidationResult {
	return entity.ValidationResult{Error: err.Error()}
}
