// Command feedctl inspects feed health and applies manual healing actions.
//
//	feedctl diagnose [-record] [-limit N] [-output text|json]
//	feedctl reset-attempts FEED_ID
//	feedctl respond [-reject] [-note TEXT] ATTEMPT_ID
//	feedctl report [-output text|json]
package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	pgRepo "feed-resilience/internal/infra/adapter/persistence/postgres"
	"feed-resilience/internal/infra/db"
	"feed-resilience/internal/infra/validator"
	"feed-resilience/internal/observability/logging"
	"feed-resilience/internal/pkg/config"
	"feed-resilience/internal/usecase/healing"
	"feed-resilience/internal/usecase/monitor"
)

const usage = `Usage: feedctl <command> [flags] [args]

Commands:
  diagnose         validate every active feed and print the result
  reset-attempts   lift the discovery attempt cap of a feed
  respond          record a user's answer to a suggested replacement
  report           print the healing health report

Environment:
  DATABASE_URL     PostgreSQL connection string (required)
`

var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger := logging.NewTextLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout, logger); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer, logger *slog.Logger) error {
	switch cmd {
	case "diagnose":
		return runDiagnose(ctx, args, out, logger)
	case "reset-attempts":
		return runReset(ctx, args, logger)
	case "respond":
		return runRespond(ctx, args, logger)
	case "report":
		return runReport(ctx, args, out, logger)
	default:
		return errUsage
	}
}

func runDiagnose(ctx context.Context, args []string, out io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("diagnose", flag.ContinueOnError)
	record := fs.Bool("record", false, "update failure counters from the results")
	limit := fs.Int("limit", 0, "diagnose at most N feeds (0 = all)")
	output := fs.String("output", "text", "output format: text or json")
	concurrency := fs.Int("concurrency", 5, "concurrent validations")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	return withDatabase(ctx, logger, func(database *sql.DB) error {
		catalog := pgRepo.NewFeedCatalogRepo(database)
		d := &diagnoser{
			catalog:     catalog,
			validator:   validator.New(createHTTPClient()),
			concurrency: *concurrency,
			logger:      logger,
		}
		if *record {
			d.recorder = newEngine(database, logger)
		}
		results, err := d.Run(ctx, *limit)
		if err != nil {
			return err
		}
		return writeDiagnostics(out, results, *output)
	})
}

func runReset(ctx context.Context, args []string, logger *slog.Logger) error {
	if len(args) != 1 {
		return errUsage
	}
	feedID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("feed id %q: %w", args[0], err)
	}
	return withDatabase(ctx, logger, func(database *sql.DB) error {
		return newEngine(database, logger).ResetDiscoveryAttempts(ctx, feedID)
	})
}

func runRespond(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("respond", flag.ContinueOnError)
	reject := fs.Bool("reject", false, "record a rejection instead of an acceptance")
	note := fs.String("note", "", "optional user note")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	attemptID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("attempt id %q: %w", fs.Arg(0), err)
	}
	return withDatabase(ctx, logger, func(database *sql.DB) error {
		return newEngine(database, logger).RespondToSuggestion(ctx, attemptID, !*reject, *note)
	})
}

func runReport(ctx context.Context, args []string, out io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	output := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return withDatabase(ctx, logger, func(database *sql.DB) error {
		mon := monitor.New(pgRepo.NewHealingRepo(database), pgRepo.NewFeedCatalogRepo(database), monitor.DefaultConfig(), logger)
		report, err := mon.Report(ctx)
		if err != nil {
			return err
		}
		return writeReport(out, report, *output)
	})
}

// newEngine builds an engine for one-shot actions. It never processes jobs,
// so discovery and learning are left unset.
func newEngine(database *sql.DB, logger *slog.Logger) *healing.Engine {
	return healing.NewEngine(healing.Deps{
		Catalog:   pgRepo.NewFeedCatalogRepo(database),
		Discovery: pgRepo.NewDiscoveryRepo(database),
		Healing:   pgRepo.NewHealingRepo(database),
		Logger:    logger,
	}, healing.DefaultConfig())
}

func withDatabase(ctx context.Context, logger *slog.Logger, fn func(*sql.DB) error) error {
	database, err := db.Open(ctx, os.Getenv("DATABASE_URL"), db.LoadPoolConfig(config.NewLoader(logger, nil)))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	return fn(database)
}

func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}

func writeReport(out io.Writer, r *monitor.Report, format string) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintf(out, "Status: %s (generated %s)\n", r.Status, r.GeneratedAt.Format(time.RFC3339))
	if r.Metrics != nil {
		fmt.Fprintf(out, "Success rate: %.1f%% over %d attempts\n", r.Metrics.SuccessRate*100, r.Metrics.TotalAttempts)
		fmt.Fprintf(out, "Feeds healing: %d, healed: %d, failed: %d\n",
			r.Metrics.FeedsHealing, r.Metrics.FeedsHealed, r.Metrics.FeedsFailed)
	}
	fmt.Fprintf(out, "Critical feeds: %d\n", len(r.CriticalFeeds))
	for _, issue := range r.CriticalIssues {
		fmt.Fprintf(out, "  ! %s\n", issue)
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(out, "  - %s\n", rec)
	}
	return nil
}
