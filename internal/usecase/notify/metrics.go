package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	userNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_notifications_recorded_total",
			Help: "Total number of subscriber notifications recorded",
		},
		[]string{"kind"},
	)

	alertSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_sent_total",
			Help: "Total number of operator alerts sent",
		},
		[]string{"channel", "status"}, // status: success|failure
	)

	alertDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alert_duration_seconds",
			Help:    "Alert send duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"channel"},
	)

	alertDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_dropped_total",
			Help: "Total number of dropped operator alerts",
		},
		[]string{"channel", "reason"}, // reason: pool_full|suppressed
	)

	activeAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_active_goroutines",
			Help: "Number of alert sends in flight",
		},
	)
)

// RecordUserNotifications counts n recorded notifications of kind.
func RecordUserNotifications(kind string, n int) {
	userNotificationsTotal.WithLabelValues(kind).Add(float64(n))
}

func recordAlertResult(channel string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	alertSentTotal.WithLabelValues(channel, status).Inc()
	alertDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

func recordAlertDropped(channel, reason string) {
	alertDroppedTotal.WithLabelValues(channel, reason).Inc()
}
