package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/usecase/discovery"
	"feed-resilience/internal/usecase/jobqueue"
)

// Diagnosis statuses.
const (
	statusOK      = "OK"
	statusEmpty   = "EMPTY"
	statusInvalid = "INVALID"
)

type catalogReader interface {
	GetFeedCatalog(ctx context.Context, filter entity.CatalogFilter) ([]*entity.Feed, error)
}

// healthRecorder updates failure counters; *healing.Engine implements it.
type healthRecorder interface {
	RecordFetchSuccess(ctx context.Context, feed *entity.Feed) error
	RecordFetchFailure(ctx context.Context, feed *entity.Feed, fetchErr error) (*jobqueue.Job, error)
}

// Diagnostic is the result for one feed.
type Diagnostic struct {
	FeedID       int64  `json:"feed_id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	Status       string `json:"status"`
	ItemCount    int    `json:"item_count"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Failures     int    `json:"consecutive_failures"`
	ResponseTime int64  `json:"response_time_ms"`
}

type diagnoser struct {
	catalog     catalogReader
	validator   discovery.FeedValidator
	recorder    healthRecorder
	concurrency int
	logger      *slog.Logger
}

// Run validates active feeds in catalog order. Recording errors are logged
// and do not stop the run.
func (d *diagnoser) Run(ctx context.Context, limit int) ([]Diagnostic, error) {
	feeds, err := d.catalog.GetFeedCatalog(ctx, entity.CatalogFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("feed catalog: %w", err)
	}
	if limit > 0 && len(feeds) > limit {
		feeds = feeds[:limit]
	}

	results := make([]Diagnostic, len(feeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.concurrency, 1))
	for i, feed := range feeds {
		g.Go(func() error {
			results[i] = d.diagnose(gctx, feed)
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}

func (d *diagnoser) diagnose(ctx context.Context, feed *entity.Feed) Diagnostic {
	start := time.Now()
	res := d.validator.ValidateCandidate(ctx, feed.URL)

	diag := Diagnostic{
		FeedID:       feed.ID,
		Title:        feed.Title,
		URL:          feed.URL,
		ItemCount:    res.ItemCount,
		ResponseTime: time.Since(start).Milliseconds(),
		Failures:     feed.ConsecutiveFailures,
	}
	switch {
	case res.IsValid && res.HasItems:
		diag.Status = statusOK
	case res.IsValid:
		diag.Status = statusEmpty
	default:
		diag.Status = statusInvalid
		diag.ErrorMessage = res.Error
		diag.ErrorType = string(entity.ClassifyErrorMessage(res.Error))
	}

	if d.recorder != nil {
		d.record(ctx, feed, &diag)
	}
	return diag
}

func (d *diagnoser) record(ctx context.Context, feed *entity.Feed, diag *Diagnostic) {
	var err error
	if diag.Status == statusInvalid {
		_, err = d.recorder.RecordFetchFailure(ctx, feed, errors.New(diag.ErrorMessage))
	} else {
		err = d.recorder.RecordFetchSuccess(ctx, feed)
	}
	if err != nil {
		d.logger.Warn("failed to record feed health",
			slog.Int64("feed_id", feed.ID),
			slog.Any("error", err))
		return
	}
	diag.Failures = feed.ConsecutiveFailures
}

func writeDiagnostics(out io.Writer, results []Diagnostic, format string) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tITEMS\tFAILURES\tMS\tURL\tERROR")
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.FeedID, r.Status, r.ItemCount, r.Failures, r.ResponseTime, r.URL, r.ErrorType)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%d feeds: %d ok, %d empty, %d invalid\n",
		len(results), counts[statusOK], counts[statusEmpty], counts[statusInvalid])
	return err
}
