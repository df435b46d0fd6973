package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"feed-resilience/internal/observability/tracing"
	"feed-resilience/internal/usecase/jobqueue"
	"feed-resilience/internal/usecase/monitor"
	"feed-resilience/internal/usecase/notify"
)

// Reporter builds the healing health report.
type Reporter interface {
	Report(ctx context.Context) (*monitor.Report, error)
}

// QueueStats exposes job processor counters.
type QueueStats interface {
	Stats() jobqueue.Stats
}

// ChannelLister exposes alert channel state.
type ChannelLister interface {
	Channels() []notify.ChannelStatus
}

// HealthServer serves the worker's probe and status endpoints:
//
//   - GET /health         liveness, always 200
//   - GET /health/ready   200 once SetReady(true), 503 before
//   - GET /health/report  healing health report, 503 without a reporter
//   - GET /health/stats   job queue and alert channel state
type HealthServer struct {
	addr     string
	logger   *slog.Logger
	isReady  *atomic.Bool
	reporter Reporter
	queue    QueueStats
	channels ChannelLister
	server   *http.Server
}

// HealthOption configures optional HealthServer sources.
type HealthOption func(*HealthServer)

func WithReporter(r Reporter) HealthOption {
	return func(h *HealthServer) { h.reporter = r }
}

func WithQueueStats(q QueueStats) HealthOption {
	return func(h *HealthServer) { h.queue = q }
}

func WithChannels(c ChannelLister) HealthOption {
	return func(h *HealthServer) { h.channels = c }
}

type healthResponse struct {
	Status string `json:"status"`
}

type statsResponse struct {
	Queue    *jobqueue.Stats        `json:"queue,omitempty"`
	Channels []notify.ChannelStatus `json:"channels"`
}

// NewHealthServer creates a server listening on addr, e.g. ":9091".
func NewHealthServer(addr string, logger *slog.Logger, opts ...HealthOption) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HealthServer{
		addr:    addr,
		logger:  logger,
		isReady: &atomic.Bool{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handler returns the traced route mux.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleLiveness)
	mux.HandleFunc("GET /health/ready", h.handleReadiness)
	mux.HandleFunc("GET /health/report", h.handleReport)
	mux.HandleFunc("GET /health/stats", h.handleStats)
	return tracing.Middleware(mux)
}

// Start serves until ctx is cancelled, then shuts down within 5 seconds.
// It returns http.ErrServerClosed after a clean shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		errCh <- h.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		return http.ErrServerClosed
	}
}

func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if !h.isReady.Load() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}

func (h *HealthServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reporting disabled"})
		return
	}
	report, err := h.reporter.Report(r.Context())
	if err != nil {
		h.logger.Error("health report failed", slog.Any("error", err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, map[string]string{"error": "report unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *HealthServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{Channels: []notify.ChannelStatus{}}
	if h.queue != nil {
		s := h.queue.Stats()
		resp.Queue = &s
	}
	if h.channels != nil {
		resp.Channels = h.channels.Channels()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
