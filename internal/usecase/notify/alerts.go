package notify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/usecase/jobqueue"
	"feed-resilience/internal/usecase/monitor"
)

const (
	workerPoolTimeout     = 5 * time.Second
	alertTimeout          = 30 * time.Second
	defaultSuppressWindow = time.Hour
	maxAlertDetails       = 5
)

// Channel is an operator alert destination such as a Slack or Discord webhook.
type Channel interface {
	Name() string
	IsEnabled() bool
	NotifyAlert(ctx context.Context, alert *entity.Alert) error
}

// ChannelStatus is exposed on the health endpoint.
type ChannelStatus struct {
	Name     string     `json:"name"`
	Enabled  bool       `json:"enabled"`
	LastSent *time.Time `json:"last_sent,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
}

// Dispatcher fans alerts out to every enabled channel in the background.
// An alert with the same title as one sent within the suppression window
// is dropped, so a report that stays critical pages once per window.
type Dispatcher struct {
	channels   []Channel
	workerPool chan struct{}
	logger     *slog.Logger
	now        func() time.Time
	suppress   time.Duration

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	mu       sync.Mutex
	lastSent map[string]time.Time
	status   map[string]*ChannelStatus
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSuppressWindow sets how long an alert title stays muted after it
// was sent. Zero disables suppression.
func WithSuppressWindow(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.suppress = d }
}

// WithDispatcherClock overrides time.Now.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(disp *Dispatcher) { disp.now = now }
}

func NewDispatcher(channels []Channel, maxConcurrent int, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		channels:       channels,
		workerPool:     make(chan struct{}, maxConcurrent),
		logger:         logger,
		now:            time.Now,
		suppress:       defaultSuppressWindow,
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
		lastSent:       make(map[string]time.Time),
		status:         make(map[string]*ChannelStatus, len(channels)),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, ch := range channels {
		d.status[ch.Name()] = &ChannelStatus{Name: ch.Name(), Enabled: ch.IsEnabled()}
	}
	return d
}

// Dispatch queues alert for every enabled channel and returns at once.
// It reports whether the alert was sent to at least one channel.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *entity.Alert) bool {
	if alert == nil {
		return false
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = d.now()
	}

	d.mu.Lock()
	if last, ok := d.lastSent[alert.Title]; ok && d.suppress > 0 && d.now().Sub(last) < d.suppress {
		d.mu.Unlock()
		recordAlertDropped("all", "suppressed")
		d.logger.DebugContext(ctx, "alert suppressed", slog.String("title", alert.Title))
		return false
	}
	d.lastSent[alert.Title] = d.now()
	d.mu.Unlock()

	sent := false
	for _, ch := range d.channels {
		if !ch.IsEnabled() {
			continue
		}
		sent = true
		d.wg.Add(1)
		go d.send(ch, alert)
	}
	if sent {
		d.logger.InfoContext(ctx, "dispatching operator alert",
			slog.String("severity", alert.Severity),
			slog.String("title", alert.Title))
	}
	return sent
}

func (d *Dispatcher) send(ch Channel, alert *entity.Alert) {
	defer d.wg.Done()
	activeAlerts.Inc()
	defer activeAlerts.Dec()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in alert channel",
				slog.String("channel", ch.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	select {
	case d.workerPool <- struct{}{}:
		defer func() { <-d.workerPool }()
	case <-time.After(workerPoolTimeout):
		recordAlertDropped(ch.Name(), "pool_full")
		d.logger.Warn("alert dropped", slog.String("channel", ch.Name()), slog.Any("error", ErrAlertDropped))
		return
	}

	ctx, cancel := context.WithTimeout(d.shutdownCtx, alertTimeout)
	defer cancel()

	start := time.Now()
	err := ch.NotifyAlert(ctx, alert)
	duration := time.Since(start)
	recordAlertResult(ch.Name(), err, duration)

	d.mu.Lock()
	st := d.status[ch.Name()]
	if err != nil {
		st.LastErr = err.Error()
	} else {
		sentAt := d.now()
		st.LastSent = &sentAt
		st.LastErr = ""
	}
	d.mu.Unlock()

	if err != nil {
		d.logger.Warn("alert delivery failed",
			slog.String("channel", ch.Name()),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
		return
	}
	d.logger.Info("alert delivered",
		slog.String("channel", ch.Name()),
		slog.String("title", alert.Title),
		slog.Duration("send_duration", duration))
}

// AlertHealthReport pages operators about a critical health report.
func (d *Dispatcher) AlertHealthReport(ctx context.Context, report *monitor.Report) error {
	if report == nil {
		return nil
	}
	d.Dispatch(ctx, ReportAlert(report))
	return nil
}

// AlertJobAbandoned has the jobqueue.AbandonFunc signature.
func (d *Dispatcher) AlertJobAbandoned(ctx context.Context, job *jobqueue.Job, err error) {
	if job == nil {
		return
	}
	d.Dispatch(ctx, AbandonedJobAlert(job, err))
}

// Channels returns a snapshot of per-channel delivery state.
func (d *Dispatcher) Channels() []ChannelStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ChannelStatus, 0, len(d.channels))
	for _, ch := range d.channels {
		st := *d.status[ch.Name()]
		if st.LastSent != nil {
			t := *st.LastSent
			st.LastSent = &t
		}
		out = append(out, st)
	}
	return out
}

// Shutdown cancels in-flight sends and waits for them or for ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.shutdownCancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.logger.Info("alert dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("alert dispatcher shutdown timeout")
		return ctx.Err()
	}
}

// ReportAlert renders a health report as an alert.
func ReportAlert(r *monitor.Report) *entity.Alert {
	severity := entity.SeverityInfo
	switch r.Status {
	case monitor.StatusCritical:
		severity = entity.SeverityCritical
	case monitor.StatusDegraded:
		severity = entity.SeverityWarning
	}

	alert := &entity.Alert{
		Severity:   severity,
		Title:      fmt.Sprintf("Feed healing is %s", r.Status),
		OccurredAt: r.GeneratedAt,
	}
	if m := r.Metrics; m != nil {
		alert.Summary = fmt.Sprintf("%d of %d healing attempts succeeded in the last %s.",
			m.Successes, m.TotalAttempts, windowText(m.Window))
		alert.Fields = []entity.AlertField{
			{Name: "Success rate", Value: fmt.Sprintf("%.0f%%", m.SuccessRate*100)},
			{Name: "Feeds healing", Value: strconv.Itoa(m.FeedsHealing)},
			{Name: "Feeds healed", Value: strconv.Itoa(m.FeedsHealed)},
			{Name: "Feeds failed", Value: strconv.Itoa(m.FeedsFailed)},
		}
	}
	alert.Fields = append(alert.Fields, entity.AlertField{Name: "Critical feeds", Value: strconv.Itoa(len(r.CriticalFeeds))})

	details := append([]string{}, r.CriticalIssues...)
	details = append(details, r.Recommendations...)
	if len(details) > maxAlertDetails {
		details = details[:maxAlertDetails]
	}
	alert.Details = details
	return alert
}

func windowText(w time.Duration) string {
	if days := int(w.Hours() / 24); days >= 1 && w%(24*time.Hour) == 0 {
		if days == 1 {
			return "day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return w.String()
}

// AbandonedJobAlert renders a discovery job that ran out of retries.
func AbandonedJobAlert(job *jobqueue.Job, err error) *entity.Alert {
	summary := fmt.Sprintf("Discovery for feed %d gave up after %d retries.", job.FeedID, job.RetryCount)
	if err != nil {
		summary += " Last error: " + err.Error()
	}
	fields := []entity.AlertField{
		{Name: "Job", Value: job.ID},
		{Name: "Priority", Value: job.Priority.String()},
		{Name: "Subscribers", Value: strconv.Itoa(job.Metadata.SubscriberCount)},
	}
	if job.Metadata.LastErrorType != "" {
		fields = append(fields, entity.AlertField{Name: "Fetch error", Value: job.Metadata.LastErrorType})
	}
	return &entity.Alert{
		Severity: entity.SeverityWarning,
		Title:    fmt.Sprintf("Discovery abandoned for feed %d", job.FeedID),
		Summary:  summary,
		Fields:   fields,
	}
}
