package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"feed-resilience/internal/pkg/config"
)

// WorkerMetrics adds scheduled job metrics to the worker's config metrics.
//
//   - worker_cron_job_runs_total{job,status}
//   - worker_cron_job_duration_seconds{job}
//   - worker_cron_job_last_success_timestamp{job}
type WorkerMetrics struct {
	*config.ConfigMetrics

	JobRunsTotal       *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	JobLastSuccessTime *prometheus.GaugeVec
}

// NewWorkerMetrics registers the worker metrics with reg, or with the
// default registry when reg is nil.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker", reg),
		JobRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_job_runs_total",
			Help: "Total scheduled job runs by job and status",
		}, []string{"job", "status"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_cron_job_duration_seconds",
			Help:    "Duration of scheduled job runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"job"}),
		JobLastSuccessTime: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_cron_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per job",
		}, []string{"job"}),
	}
}

func (m *WorkerMetrics) RecordJobRun(job, status string) {
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
}

func (m *WorkerMetrics) RecordJobDuration(job string, d time.Duration) {
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *WorkerMetrics) RecordLastSuccess(job string) {
	m.JobLastSuccessTime.WithLabelValues(job).Set(float64(time.Now().Unix()))
}
