// Package prober performs cheap existence checks and page fetches against
// candidate hosts. Requests to the same host are rate limited so that
// probing dozens of URL variants does not hammer a single site.
package prober

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"feed-resilience/internal/domain/entity"
)

const (
	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 2 * time.Second

	// DefaultPageTimeout bounds a page fetch.
	DefaultPageTimeout = 10 * time.Second

	userAgent    = "FeedResilienceBot/1.0 (+feed-discovery)"
	maxPageBytes = 2 << 20
)

// Config holds prober settings.
type Config struct {
	Timeout     time.Duration
	PageTimeout time.Duration

	// PerHostRate is the sustained request rate per host.
	PerHostRate  rate.Limit
	PerHostBurst int
}

// DefaultConfig returns the production prober configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:      DefaultTimeout,
		PageTimeout:  DefaultPageTimeout,
		PerHostRate:  rate.Limit(5),
		PerHostBurst: 5,
	}
}

// Page is a fetched HTML document.
type Page struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Body       []byte
}

// Prober issues HEAD/GET probes.
type Prober struct {
	client   *http.Client
	cfg      Config
	checkURL func(context.Context, string) error

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option customizes a Prober.
type Option func(*Prober)

// WithURLCheck replaces the pre-flight URL check. The default rejects
// hosts on private networks.
func WithURLCheck(fn func(context.Context, string) error) Option {
	return func(p *Prober) { p.checkURL = fn }
}

// New creates a Prober.
func New(client *http.Client, cfg Config, opts ...Option) *Prober {
	p := &Prober{
		client:   client,
		cfg:      cfg,
		checkURL: entity.ValidatePublicURL,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Exists reports whether rawURL answers with a 2xx status after redirects.
// Servers that reject HEAD with 405 or 501 are retried with GET.
func (p *Prober) Exists(ctx context.Context, rawURL string) bool {
	resp, err := p.probe(ctx, http.MethodHead, rawURL)
	if err != nil {
		return false
	}
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		resp, err = p.probe(ctx, http.MethodGet, rawURL)
		if err != nil {
			return false
		}
	}
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Resolve follows redirects from rawURL and returns the final URL, or ""
// when the host does not answer successfully.
func (p *Prober) Resolve(ctx context.Context, rawURL string) string {
	resp, err := p.probe(ctx, http.MethodHead, rawURL)
	if err != nil || resp.StatusCode >= 400 {
		return ""
	}
	return resp.Request.URL.String()
}

// probe sends one bodiless request and closes the response.
func (p *Prober) probe(ctx context.Context, method, rawURL string) (*http.Response, error) {
	if err := p.preflight(ctx, rawURL); err != nil {
		return nil, err
	}
	if err := p.wait(ctx, rawURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	return resp, nil
}

// preflight runs the URL check under the probe timeout so a slow resolver
// cannot stall a probe.
func (p *Prober) preflight(ctx context.Context, rawURL string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.checkURL(ctx, rawURL)
}

// Fetch downloads an HTML page, following redirects.
func (p *Prober) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := p.preflight(ctx, rawURL); err != nil {
		return nil, err
	}
	if err := p.wait(ctx, rawURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &entity.FetchError{
			Type:       entity.ClassifyHTTPStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			URL:        rawURL,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	return &Page{URL: resp.Request.URL.String(), StatusCode: resp.StatusCode, Body: body}, nil
}

// wait blocks until the per-host limiter admits a request.
func (p *Prober) wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	return p.limiter(strings.ToLower(u.Hostname())).Wait(ctx)
}

func (p *Prober) limiter(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[host]
	if !ok {
		l = rate.NewLimiter(p.cfg.PerHostRate, p.cfg.PerHostBurst)
		p.limiters[host] = l
	}
	return l
}
