// Package archive is a client for the Internet Archive's Wayback Machine.
// It looks up the closest snapshot of a URL and downloads archived pages.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"feed-resilience/internal/resilience/circuitbreaker"
	"feed-resilience/internal/resilience/retry"
)

const (
	// DefaultBaseURL is the public availability API.
	DefaultBaseURL = "https://archive.org/wayback/available"

	// DefaultTimeout bounds each archive request.
	DefaultTimeout = 10 * time.Second

	timestampLayout = "20060102150405"
	userAgent       = "FeedResilienceBot/1.0 (+wayback-lookup)"
	maxSnapshotSize = 4 << 20
)

// ErrNoSnapshot is returned when the archive holds no usable capture.
var ErrNoSnapshot = errors.New("archive: no snapshot available")

// Snapshot is one archived capture.
type Snapshot struct {
	URL       string
	Timestamp time.Time
	Status    string
}

// availabilityResponse mirrors the availability API payload.
type availabilityResponse struct {
	URL               string `json:"url"`
	ArchivedSnapshots struct {
		Closest *struct {
			Status    string `json:"status"`
			Available bool   `json:"available"`
			URL       string `json:"url"`
			Timestamp string `json:"timestamp"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// Client talks to the Wayback Machine.
type Client struct {
	client         *http.Client
	baseURL        string
	timeout        time.Duration
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(client *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		client:         client,
		baseURL:        baseURL,
		timeout:        DefaultTimeout,
		circuitBreaker: circuitbreaker.New(circuitbreaker.ArchiveConfig()),
		retryConfig:    retry.ArchiveConfig(),
	}
}

// Closest returns the closest successful capture of target. It returns
// ErrNoSnapshot when none exists.
func (c *Client) Closest(ctx context.Context, target string) (*Snapshot, error) {
	q := url.Values{}
	q.Set("url", target)
	endpoint := c.baseURL + "?" + q.Encode()

	var payload availabilityResponse
	err := c.do(ctx, endpoint, func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&payload)
	})
	if err != nil {
		return nil, fmt.Errorf("wayback availability: %w", err)
	}

	closest := payload.ArchivedSnapshots.Closest
	if closest == nil || !closest.Available || closest.URL == "" {
		return nil, ErrNoSnapshot
	}
	if closest.Status != "" && closest.Status[0] != '2' {
		return nil, ErrNoSnapshot
	}

	snap := &Snapshot{URL: closest.URL, Status: closest.Status}
	if ts, err := time.Parse(timestampLayout, closest.Timestamp); err == nil {
		snap.Timestamp = ts
	}
	return snap, nil
}

// FetchSnapshot downloads an archived page.
func (c *Client) FetchSnapshot(ctx context.Context, snap *Snapshot) ([]byte, error) {
	var body []byte
	err := c.do(ctx, snap.URL, func(r io.Reader) error {
		var err error
		body, err = io.ReadAll(io.LimitReader(r, maxSnapshotSize))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	return body, nil
}

// do performs a GET through the circuit breaker with retries and hands the
// body to read.
func (c *Client) do(ctx context.Context, endpoint string, read func(io.Reader) error) error {
	return retry.WithBackoff(ctx, c.retryConfig, func() error {
		_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, c.get(ctx, endpoint, read)
		})
		if errors.Is(err, gobreaker.ErrOpenState) {
			slog.Warn("wayback circuit breaker open, request rejected",
				slog.String("service", "wayback-archive"),
				slog.String("state", c.circuitBreaker.State().String()))
		}
		return err
	})
}

func (c *Client) get(ctx context.Context, endpoint string, read func(io.Reader) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	return read(resp.Body)
}
