package prober

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"feed-resilience/internal/domain/entity"
)

// syntaxOnly skips address checks so tests can reach httptest servers.
func syntaxOnly(_ context.Context, rawURL string) error {
	return entity.ValidateCandidateURL(rawURL)
}

func newTestProber(client *http.Client) *Prober {
	cfg := DefaultConfig()
	cfg.PerHostRate = rate.Inf
	return New(client, cfg, WithURLCheck(syntaxOnly))
}

func TestExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/feed", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProber(srv.Client())

	assert.True(t, p.Exists(context.Background(), srv.URL+"/feed"))
	assert.True(t, p.Exists(context.Background(), srv.URL+"/old"))
	assert.False(t, p.Exists(context.Background(), srv.URL+"/missing"))
}

func TestExists_FallsBackToGETOnMethodNotAllowed(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	ok := newTestProber(srv.Client()).Exists(context.Background(), srv.URL+"/rss")

	assert.True(t, ok)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{http.MethodHead, http.MethodGet}, methods)
}

func TestExists_TimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	p := New(srv.Client(), cfg, WithURLCheck(syntaxOnly))

	assert.False(t, p.Exists(context.Background(), srv.URL))
}

func TestExists_BlockedURLIsNotRequested(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	p := New(srv.Client(), DefaultConfig())

	assert.False(t, p.Exists(context.Background(), srv.URL))
	assert.Equal(t, int32(0), hits.Load())
}

func TestResolve_ReturnsFinalURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new-home", http.StatusFound)
	})
	mux.HandleFunc("/new-home", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProber(srv.Client())

	assert.Equal(t, srv.URL+"/new-home", p.Resolve(context.Background(), srv.URL+"/"))
}

func TestFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><head><title>Home</title></head></html>"))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProber(srv.Client())

	page, err := p.Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(page.Body), "<title>Home</title>")

	_, err = p.Fetch(context.Background(), srv.URL+"/gone")
	var fe *entity.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, entity.ErrTypeGone, fe.Type)
}

func TestLimiter_IsPerHost(t *testing.T) {
	p := New(http.DefaultClient, DefaultConfig())

	a := p.limiter("a.example.com")
	assert.Same(t, a, p.limiter("a.example.com"))
	assert.NotSame(t, a, p.limiter("b.example.com"))
}

func TestWait_RespectsContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerHostRate = rate.Every(time.Hour)
	cfg.PerHostBurst = 1
	p := New(http.DefaultClient, cfg)

	require.NoError(t, p.wait(context.Background(), "https://slow.example.com/a"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, p.wait(ctx, "https://slow.example.com/b"))
}
