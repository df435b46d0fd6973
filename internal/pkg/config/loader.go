package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Loader reads environment variables into typed values and remembers
// every fallback it applied.
type Loader struct {
	logger    *slog.Logger
	metrics   *ConfigMetrics
	lookup    func(string) string
	fallbacks []string
}

// NewLoader creates a Loader. metrics may be nil.
func NewLoader(logger *slog.Logger, metrics *ConfigMetrics) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, metrics: metrics, lookup: os.Getenv}
}

// String returns key's value, or def when unset or invalid. validate may be nil.
func (l *Loader) String(key, def string, validate func(string) error) string {
	return load(l, key, def, func(s string) (string, error) { return s, nil }, validate)
}

// Int parses key as a base-10 integer.
func (l *Loader) Int(key string, def int, validate func(int) error) int {
	return load(l, key, def, func(s string) (int, error) {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("not an integer")
		}
		return v, nil
	}, validate)
}

// Duration parses key with time.ParseDuration.
func (l *Loader) Duration(key string, def time.Duration, validate func(time.Duration) error) time.Duration {
	return load(l, key, def, time.ParseDuration, validate)
}

// Bool parses key with strconv.ParseBool.
func (l *Loader) Bool(key string, def bool) bool {
	return load(l, key, def, strconv.ParseBool, nil)
}

// Secret returns key's raw value and never logs it.
func (l *Loader) Secret(key string) string {
	return l.lookup(key)
}

// Fallbacks lists the keys whose default replaced an invalid value.
func (l *Loader) Fallbacks() []string {
	return append([]string(nil), l.fallbacks...)
}

// Finish publishes the load timestamp and whether any fallback is active.
func (l *Loader) Finish() {
	if l.metrics == nil {
		return
	}
	l.metrics.SetFallbackActive(len(l.fallbacks) > 0)
	l.metrics.RecordLoadTimestamp()
}

func load[T any](l *Loader, key string, def T, parse func(string) (T, error), validate func(T) error) T {
	raw := l.lookup(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err == nil && validate != nil {
		err = validate(v)
	}
	if err == nil {
		return v
	}

	l.fallbacks = append(l.fallbacks, key)
	field := strings.ToLower(key)
	if l.metrics != nil {
		l.metrics.RecordValidationError(field)
		l.metrics.RecordFallback(field, "default")
	}
	l.logger.Warn("configuration fallback applied",
		slog.String("env_key", key),
		slog.String("invalid_value", raw),
		slog.Any("default_value", def),
		slog.String("error", err.Error()))
	return def
}
