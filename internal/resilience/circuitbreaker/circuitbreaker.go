// Package circuitbreaker guards outbound dependencies with sony/gobreaker.
// Each dependency gets its own preset; trips are logged and exported as
// Prometheus metrics.
package circuitbreaker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"feed-resilience/internal/observability/metrics"
)

// Config describes when a breaker opens and how it recovers.
type Config struct {
	Name string

	// MaxRequests is how many probes pass while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counts; 0 never resets.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration

	// The breaker opens once at least MinRequests were counted and the
	// failure ratio reaches FailureThreshold.
	FailureThreshold float64
	MinRequests      uint32
}

// FeedValidationConfig covers candidate validation. Candidates span many
// hosts, so only a broad outage such as lost egress trips it.
func FeedValidationConfig() Config {
	return Config{
		Name:             "feed-validation",
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          2 * time.Minute,
		FailureThreshold: 0.9,
		MinRequests:      20,
	}
}

// ArchiveConfig covers the web archive availability API.
func ArchiveConfig() Config {
	return Config{
		Name:             "wayback-archive",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          5 * time.Minute,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// WebhookConfig covers one alert webhook: three straight failures open it
// for ten minutes.
func WebhookConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         5 * time.Minute,
		Timeout:          10 * time.Minute,
		FailureThreshold: 1.0,
		MinRequests:      3,
	}
}

// CircuitBreaker is a named gobreaker.CircuitBreaker.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New builds a breaker from cfg.
func New(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{
		name: cfg.Name,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:          cfg.Name,
			MaxRequests:   cfg.MaxRequests,
			Interval:      cfg.Interval,
			Timeout:       cfg.Timeout,
			ReadyToTrip:   tripRule(cfg.MinRequests, cfg.FailureThreshold),
			OnStateChange: onStateChange,
		}),
	}
}

func tripRule(minRequests uint32, threshold float64) func(gobreaker.Counts) bool {
	return func(c gobreaker.Counts) bool {
		if c.Requests == 0 || c.Requests < minRequests {
			return false
		}
		return float64(c.TotalFailures)/float64(c.Requests) >= threshold
	}
}

func onStateChange(name string, from, to gobreaker.State) {
	level := slog.LevelWarn
	if to == gobreaker.StateClosed {
		level = slog.LevelInfo
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		slog.String("circuit", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	metrics.RecordCircuitState(name, to.String(), stateValue(to))
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Execute runs fn unless the breaker is open, in which case it returns
// gobreaker.ErrOpenState (or ErrTooManyRequests while half-open).
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return cb.breaker.Execute(fn)
}

func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen reports whether calls are currently rejected.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}
