package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-resilience/internal/observability/metrics"
)

var errUpstream = errors.New("upstream down")

func fail() (interface{}, error) { return nil, errUpstream }

func testConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 0.5,
		MinRequests:      4,
	}
}

func TestCircuitBreaker_PassesResults(t *testing.T) {
	cb := New(testConfig("cb-pass"))

	got, err := cb.Execute(func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = cb.Execute(fail)
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, "cb-pass", cb.Name())
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreaker_WaitsForMinRequests(t *testing.T) {
	cb := New(testConfig("cb-min"))

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(fail)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_TripsOnFailureRatio(t *testing.T) {
	// Arrange
	cb := New(testConfig("cb-ratio"))
	ok := func() (interface{}, error) { return nil, nil }

	// Act: 2 of 4 fail, ratio 0.5 reaches the threshold
	_, _ = cb.Execute(ok)
	_, _ = cb.Execute(ok)
	_, _ = cb.Execute(fail)
	_, _ = cb.Execute(fail)

	// Assert
	assert.True(t, cb.IsOpen())
	_, err := cb.Execute(ok)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CircuitState.WithLabelValues("cb-ratio")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CircuitTransitions.WithLabelValues("cb-ratio", "open")))
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := New(testConfig("cb-recover"))
	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(fail)
	}
	require.True(t, cb.IsOpen())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.CircuitState.WithLabelValues("cb-recover")))
}

func TestWebhookConfig_OpensAfterThreeStraightFailures(t *testing.T) {
	cb := New(WebhookConfig("cb-webhook"))

	_, _ = cb.Execute(fail)
	_, _ = cb.Execute(fail)
	assert.False(t, cb.IsOpen())

	_, _ = cb.Execute(fail)
	assert.True(t, cb.IsOpen())
}

func TestPresets(t *testing.T) {
	tests := []struct {
		cfg           Config
		wantName      string
		wantMin       uint32
		wantThreshold float64
	}{
		{FeedValidationConfig(), "feed-validation", 20, 0.9},
		{ArchiveConfig(), "wayback-archive", 5, 0.6},
		{WebhookConfig("slack"), "slack", 3, 1.0},
		{DBConfig(), "database", 5, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			assert.Equal(t, tt.wantName, tt.cfg.Name)
			assert.Equal(t, tt.wantMin, tt.cfg.MinRequests)
			assert.InDelta(t, tt.wantThreshold, tt.cfg.FailureThreshold, 1e-9)
			assert.Positive(t, tt.cfg.Timeout)
		})
	}
}

func TestTripRule(t *testing.T) {
	rule := tripRule(0, 1.0)
	assert.False(t, rule(gobreaker.Counts{}))
	assert.True(t, rule(gobreaker.Counts{Requests: 1, TotalFailures: 1}))
	assert.False(t, rule(gobreaker.Counts{Requests: 2, TotalFailures: 1}))
}
