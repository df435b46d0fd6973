package worker

import (
	"errors"
	"log/slog"
	"time"

	"feed-resilience/internal/infra/db"
	"feed-resilience/internal/pkg/config"
	"feed-resilience/internal/usecase/healing"
	"feed-resilience/internal/usecase/jobqueue"
	"feed-resilience/internal/usecase/learning"
)

// ErrMissingDatabaseURL is returned when DATABASE_URL is not set.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Config holds the worker process settings. Every field except the database
// URL falls back to its default when the environment value is invalid.
type Config struct {
	DatabaseURL string
	Pool        db.PoolConfig // DB_MAX_OPEN_CONNS and friends

	PollInterval         time.Duration // POLL_INTERVAL
	BatchSize            int           // BATCH_SIZE
	MaxDiscoveryAttempts int           // MAX_DISCOVERY_ATTEMPTS
	FailureThreshold     int           // FAILURE_THRESHOLD
	JobTimeout           time.Duration // JOB_TIMEOUT
	RescanCooldown       time.Duration // RESCAN_COOLDOWN

	Timezone        string // WORKER_TIMEZONE
	ScanSchedule    string // SCAN_SCHEDULE
	DecaySchedule   string // DECAY_SCHEDULE
	PatternSchedule string // PATTERN_SCHEDULE
	ReportSchedule  string // REPORT_SCHEDULE

	PatternTTL      time.Duration // PATTERN_TTL
	CatalogCacheTTL time.Duration // CATALOG_CACHE_TTL
	DecayThreshold  time.Duration // DECAY_THRESHOLD

	HealthPort  int // HEALTH_PORT
	MetricsPort int // METRICS_PORT

	AlertMaxConcurrent int // ALERT_MAX_CONCURRENT
	SlackEnabled       bool
	SlackWebhookURL    string
	DiscordEnabled     bool
	DiscordWebhookURL  string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Pool:                 db.DefaultPoolConfig(),
		PollInterval:         jobqueue.DefaultPollInterval,
		BatchSize:            jobqueue.DefaultBatchSize,
		MaxDiscoveryAttempts: jobqueue.DefaultMaxAttempts,
		FailureThreshold:     3,
		JobTimeout:           jobqueue.DefaultJobTimeout,
		RescanCooldown:       6 * time.Hour,
		Timezone:             "UTC",
		ScanSchedule:         "*/15 * * * *",
		DecaySchedule:        "0 3 * * *",
		PatternSchedule:      "5 * * * *",
		ReportSchedule:       "0 9 * * *",
		PatternTTL:           time.Hour,
		CatalogCacheTTL:      5 * time.Minute,
		DecayThreshold:       30 * 24 * time.Hour,
		HealthPort:           9091,
		MetricsPort:          9090,
		AlertMaxConcurrent:   4,
	}
}

// LoadConfigFromEnv reads the worker settings. Invalid values are replaced
// by defaults and reported through metrics; only a missing database URL is
// an error. metrics may be nil.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*Config, error) {
	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.ConfigMetrics
	}
	return loadConfig(config.NewLoader(logger, cm), logger)
}

func loadConfig(l *config.Loader, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	cfg := &Config{
		DatabaseURL: l.Secret("DATABASE_URL"),
		Pool:        db.LoadPoolConfig(l),

		PollInterval:         l.Duration("POLL_INTERVAL", d.PollInterval, config.DurationRange(time.Second, 10*time.Minute)),
		BatchSize:            l.Int("BATCH_SIZE", d.BatchSize, config.IntRange(1, 50)),
		MaxDiscoveryAttempts: l.Int("MAX_DISCOVERY_ATTEMPTS", d.MaxDiscoveryAttempts, config.IntRange(1, 20)),
		FailureThreshold:     l.Int("FAILURE_THRESHOLD", d.FailureThreshold, config.IntRange(1, 100)),
		JobTimeout:           l.Duration("JOB_TIMEOUT", d.JobTimeout, config.DurationRange(10*time.Second, time.Hour)),
		RescanCooldown:       l.Duration("RESCAN_COOLDOWN", d.RescanCooldown, config.ValidatePositiveDuration),

		Timezone:        l.String("WORKER_TIMEZONE", d.Timezone, config.ValidateTimezone),
		ScanSchedule:    l.String("SCAN_SCHEDULE", d.ScanSchedule, config.ValidateCronSchedule),
		DecaySchedule:   l.String("DECAY_SCHEDULE", d.DecaySchedule, config.ValidateCronSchedule),
		PatternSchedule: l.String("PATTERN_SCHEDULE", d.PatternSchedule, config.ValidateCronSchedule),
		ReportSchedule:  l.String("REPORT_SCHEDULE", d.ReportSchedule, config.ValidateCronSchedule),

		PatternTTL:      l.Duration("PATTERN_TTL", d.PatternTTL, config.ValidatePositiveDuration),
		CatalogCacheTTL: l.Duration("CATALOG_CACHE_TTL", d.CatalogCacheTTL, config.ValidatePositiveDuration),
		DecayThreshold:  l.Duration("DECAY_THRESHOLD", d.DecayThreshold, config.DurationRange(24*time.Hour, 365*24*time.Hour)),

		HealthPort:  l.Int("HEALTH_PORT", d.HealthPort, config.IntRange(1, 65535)),
		MetricsPort: l.Int("METRICS_PORT", d.MetricsPort, config.IntRange(1, 65535)),

		AlertMaxConcurrent: l.Int("ALERT_MAX_CONCURRENT", d.AlertMaxConcurrent, config.IntRange(1, 32)),
		SlackEnabled:       l.Bool("SLACK_ENABLED", false),
		DiscordEnabled:     l.Bool("DISCORD_ENABLED", false),
	}
	cfg.SlackEnabled, cfg.SlackWebhookURL = webhook(l, logger, "slack", cfg.SlackEnabled, "SLACK_WEBHOOK_URL")
	cfg.DiscordEnabled, cfg.DiscordWebhookURL = webhook(l, logger, "discord", cfg.DiscordEnabled, "DISCORD_WEBHOOK_URL")
	l.Finish()

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return cfg, nil
}

// webhook disables an alert channel whose URL is missing or not https.
// The URL carries a token and is never logged.
func webhook(l *config.Loader, logger *slog.Logger, channel string, enabled bool, key string) (bool, string) {
	if !enabled {
		return false, ""
	}
	raw := l.Secret(key)
	if err := config.ValidateWebhookURL(raw); err != nil {
		logger.Warn("alert channel disabled",
			slog.String("channel", channel),
			slog.String("env_key", key),
			slog.String("reason", err.Error()))
		return false, ""
	}
	return true, raw
}

// QueueConfig maps the settings onto the job processor.
func (c *Config) QueueConfig() jobqueue.Config {
	q := jobqueue.DefaultConfig()
	q.PollInterval = c.PollInterval
	q.BatchSize = c.BatchSize
	q.MaxAttempts = c.MaxDiscoveryAttempts
	q.JobTimeout = c.JobTimeout
	return q
}

// HealingConfig maps the settings onto the healing engine.
func (c *Config) HealingConfig() healing.Config {
	return healing.Config{
		FailureThreshold: c.FailureThreshold,
		RescanCooldown:   c.RescanCooldown,
		Queue:            c.QueueConfig(),
	}
}

// LearningConfig maps the settings onto the learning loop.
func (c *Config) LearningConfig() learning.Config {
	lc := learning.DefaultConfig()
	lc.PatternTTL = c.PatternTTL
	lc.DecayThreshold = c.DecayThreshold
	return lc
}

// Location returns the scheduler time zone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
