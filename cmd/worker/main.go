package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	pgRepo "feed-resilience/internal/infra/adapter/persistence/postgres"
	"feed-resilience/internal/infra/archive"
	"feed-resilience/internal/infra/db"
	"feed-resilience/internal/infra/notifier"
	"feed-resilience/internal/infra/prober"
	"feed-resilience/internal/infra/strategy"
	"feed-resilience/internal/infra/validator"
	workerPkg "feed-resilience/internal/infra/worker"
	"feed-resilience/internal/observability/logging"
	"feed-resilience/internal/observability/tracing"
	"feed-resilience/internal/resilience/circuitbreaker"
	"feed-resilience/internal/usecase/discovery"
	"feed-resilience/internal/usecase/healing"
	"feed-resilience/internal/usecase/jobqueue"
	"feed-resilience/internal/usecase/learning"
	"feed-resilience/internal/usecase/monitor"
	"feed-resilience/internal/usecase/notify"
)

const (
	serviceName      = "feed-resilience-worker"
	traceSampleRatio = 0.1
	shutdownTimeout  = 30 * time.Second
	poolStatsEvery   = 15 * time.Second
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerMetrics := workerPkg.NewWorkerMetrics(nil)
	cfg, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("worker configuration loaded",
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("max_discovery_attempts", cfg.MaxDiscoveryAttempts),
		slog.String("scan_schedule", cfg.ScanSchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Bool("slack_enabled", cfg.SlackEnabled),
		slog.Bool("discord_enabled", cfg.DiscordEnabled))

	shutdownTracing := tracing.Init(serviceName, traceSampleRatio)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	database, err := initDatabase(ctx, logger, cfg.DatabaseURL, cfg.Pool)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	go db.ReportPoolStats(ctx, database, poolStatsEvery)

	dispatcher := notify.NewDispatcher(alertChannels(cfg), cfg.AlertMaxConcurrent, logger)

	app, err := wire(cfg, database, dispatcher, logger)
	if err != nil {
		return err
	}

	startMetricsServer(ctx, logger, cfg.MetricsPort)

	healthServer := workerPkg.NewHealthServer(fmt.Sprintf(":%d", cfg.HealthPort), logger,
		workerPkg.WithReporter(app.monitor),
		workerPkg.WithQueueStats(app.engine.Processor()),
		workerPkg.WithChannels(dispatcher),
	)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	scheduler := workerPkg.NewScheduler(ctx, cfg.Location(), workerMetrics, logger)
	if err := scheduleJobs(scheduler, cfg, app, logger); err != nil {
		return err
	}
	scheduler.Start()

	procDone := make(chan error, 1)
	go func() { procDone <- app.engine.Processor().Run(ctx) }()

	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.Int("health_port", cfg.HealthPort),
		slog.Int("metrics_port", cfg.MetricsPort))

	<-ctx.Done()
	logger.Info("shutdown initiated")
	healthServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduled jobs still running at shutdown", slog.Any("error", err))
	}
	select {
	case err := <-procDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("job processor stopped with error", slog.Any("error", err))
		}
	case <-shutdownCtx.Done():
		logger.Warn("job processor did not stop in time")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("pending alerts dropped at shutdown", slog.Any("error", err))
	}
	logger.Info("worker stopped")
	return nil
}

func initDatabase(ctx context.Context, logger *slog.Logger, dsn string, pool db.PoolConfig) (*sql.DB, error) {
	database, err := db.Open(ctx, dsn, pool)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.MigrateUp(ctx, database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("database ready")
	return database, nil
}

// services holds the long-lived components the scheduler and servers use.
type services struct {
	engine   *healing.Engine
	learning *learning.Loop
	monitor  *monitor.Monitor
	catalog  *strategy.CachedCatalog
}

func wire(cfg *workerPkg.Config, database *sql.DB, dispatcher *notify.Dispatcher, logger *slog.Logger) (*services, error) {
	guarded := circuitbreaker.NewDBCircuitBreaker(database)
	catalogRepo := pgRepo.NewFeedCatalogRepo(guarded)
	discoveryRepo := pgRepo.NewDiscoveryRepo(guarded)
	healingRepo := pgRepo.NewHealingRepo(guarded)
	notificationRepo := pgRepo.NewNotificationRepo(guarded)

	cached := strategy.NewCachedCatalog(catalogRepo, cfg.CatalogCacheTTL)

	known, err := strategy.DefaultKnownSources()
	if err != nil {
		return nil, fmt.Errorf("load known sources: %w", err)
	}

	client := createHTTPClient()
	probe := prober.New(client, prober.DefaultConfig())
	feedValidator := validator.New(client)
	archiveClient := archive.NewClient(client, archive.DefaultBaseURL)

	strategies := []discovery.Strategy{
		strategy.NewDomainVariant(probe, feedValidator, strategy.DefaultDomainVariantConfig(), logger),
		strategy.NewWayback(archiveClient, probe, logger),
		strategy.NewTopicBased(cached, logger),
		strategy.NewSocialAPI(known, logger),
		strategy.NewSearchEngine(logger),
	}

	aggregator := discovery.NewAggregator(
		strategies,
		feedValidator,
		catalogRepo,
		discoveryRepo,
		notify.NewRecorder(notificationRepo, logger),
		discovery.DefaultConfig(),
		logger,
	)
	loop := learning.NewLoop(healingRepo, cached, cfg.LearningConfig(), logger)

	engine := healing.NewEngine(healing.Deps{
		Catalog:    catalogRepo,
		Discovery:  discoveryRepo,
		Healing:    healingRepo,
		Discoverer: aggregator,
		Learner:    loop,
		Logger:     logger,
	}, cfg.HealingConfig(), jobqueue.WithAbandonHook(dispatcher.AlertJobAbandoned))

	mon := monitor.New(healingRepo, cached, monitor.DefaultConfig(), logger, monitor.WithAlerter(dispatcher))

	logger.Info("healing services wired",
		slog.Int("strategies", len(strategies)),
		slog.Int("known_sources", known.Len()),
		slog.Int("alert_channels", len(dispatcher.Channels())))

	return &services{engine: engine, learning: loop, monitor: mon, catalog: cached}, nil
}

func scheduleJobs(s *workerPkg.Scheduler, cfg *workerPkg.Config, app *services, logger *slog.Logger) error {
	jobs := []struct {
		name     string
		schedule string
		timeout  time.Duration
		fn       workerPkg.JobFunc
	}{
		{"degraded_scan", cfg.ScanSchedule, 5 * time.Minute, func(ctx context.Context) error {
			app.catalog.Invalidate()
			res, err := app.engine.ScanDegradedFeeds(ctx)
			if err != nil {
				return err
			}
			logger.Info("degraded scan finished",
				slog.Int("scanned", res.Scanned),
				slog.Int("enqueued", res.Enqueued))
			return nil
		}},
		{"preference_decay", cfg.DecaySchedule, 10 * time.Minute, func(ctx context.Context) error {
			n, err := app.learning.DecaySweep(ctx)
			if err != nil {
				return err
			}
			logger.Info("preference decay finished", slog.Int("decayed", n))
			return nil
		}},
		{"pattern_refresh", cfg.PatternSchedule, 5 * time.Minute, func(ctx context.Context) error {
			patterns, err := app.learning.RefreshPatterns(ctx)
			if err != nil {
				return err
			}
			logger.Info("healing patterns refreshed", slog.Int("source_types", len(patterns)))
			return nil
		}},
		{"health_report", cfg.ReportSchedule, 2 * time.Minute, func(ctx context.Context) error {
			r, err := app.monitor.Report(ctx)
			if err != nil {
				return err
			}
			app.monitor.Publish(ctx, r)
			logger.Info("health report generated",
				slog.String("status", r.Status),
				slog.Int("critical_feeds", len(r.CriticalFeeds)))
			return nil
		}},
	}
	for _, j := range jobs {
		if err := s.Add(j.name, j.schedule, j.timeout, j.fn); err != nil {
			return err
		}
	}
	return nil
}

// alertChannels builds the enabled operator alert webhooks.
func alertChannels(cfg *workerPkg.Config) []notify.Channel {
	var channels []notify.Channel
	if cfg.SlackEnabled {
		channels = append(channels, notifier.NewSlackNotifier(notifier.SlackConfig{
			Enabled:    true,
			WebhookURL: cfg.SlackWebhookURL,
			Timeout:    30 * time.Second,
		}))
	}
	if cfg.DiscordEnabled {
		channels = append(channels, notifier.NewDiscordNotifier(notifier.DiscordConfig{
			Enabled:    true,
			WebhookURL: cfg.DiscordWebhookURL,
			Timeout:    30 * time.Second,
		}))
	}
	if len(channels) == 0 {
		channels = append(channels, notifier.NewNoOpNotifier())
	}
	return channels
}

// createHTTPClient is shared by the prober, the validator and the archive
// client. TLS 1.2+ is enforced.
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}
