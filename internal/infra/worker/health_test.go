package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-resilience/internal/usecase/jobqueue"
	"feed-resilience/internal/usecase/monitor"
	"feed-resilience/internal/usecase/notify"
)

type fakeReporter struct {
	report *monitor.Report
	err    error
}

func (f *fakeReporter) Report(context.Context) (*monitor.Report, error) {
	return f.report, f.err
}

type fakeQueue struct{ stats jobqueue.Stats }

func (f fakeQueue) Stats() jobqueue.Stats { return f.stats }

type fakeChannels []notify.ChannelStatus

func (f fakeChannels) Channels() []notify.ChannelStatus { return f }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthServer_Liveness(t *testing.T) {
	h := NewHealthServer(":0", nil).Handler()

	rec := get(t, h, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestHealthServer_Readiness(t *testing.T) {
	srv := NewHealthServer(":0", nil)
	h := srv.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/health/ready").Code)

	srv.SetReady(true)
	rec := get(t, h, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHealthServer_Report(t *testing.T) {
	generated := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		opts       []HealthOption
		wantStatus int
	}{
		{"no reporter", nil, http.StatusServiceUnavailable},
		{"report ok", []HealthOption{WithReporter(&fakeReporter{report: &monitor.Report{GeneratedAt: generated, Status: monitor.StatusDegraded}})}, http.StatusOK},
		{"report error", []HealthOption{WithReporter(&fakeReporter{err: errors.New("query failed")})}, http.StatusInternalServerError},
		{"report timeout", []HealthOption{WithReporter(&fakeReporter{err: context.DeadlineExceeded})}, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, NewHealthServer(":0", nil, tt.opts...).Handler(), "/health/report")

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				var got monitor.Report
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, monitor.StatusDegraded, got.Status)
				assert.True(t, generated.Equal(got.GeneratedAt))
			}
		})
	}
}

func TestHealthServer_Stats(t *testing.T) {
	srv := NewHealthServer(":0", nil,
		WithQueueStats(fakeQueue{stats: jobqueue.Stats{Queued: 2, InFlight: 1, Abandoned: 4}}),
		WithChannels(fakeChannels{{Name: "slack", Enabled: true, LastErr: "timeout"}}),
	)

	rec := get(t, srv.Handler(), "/health/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	var got statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Queue)
	assert.Equal(t, 2, got.Queue.Queued)
	assert.Equal(t, 1, got.Queue.InFlight)
	assert.Equal(t, int64(4), got.Queue.Abandoned)
	require.Len(t, got.Channels, 1)
	assert.Equal(t, "timeout", got.Channels[0].LastErr)
}

func TestHealthServer_StatsWithoutSources(t *testing.T) {
	rec := get(t, NewHealthServer(":0", nil).Handler(), "/health/stats")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"channels":[]}`, rec.Body.String())
}

func TestHealthServer_StartShutsDownOnCancel(t *testing.T) {
	srv := NewHealthServer("127.0.0.1:0", nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop")
	}
}
