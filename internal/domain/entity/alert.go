package entity

import "time"

// Alert severities, lowest first.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is an operator-facing message about the healing system itself,
// as opposed to a Notification, which is addressed to a subscriber.
type Alert struct {
	Severity   string
	Title      string
	Summary    string
	Fields     []AlertField
	Details    []string
	OccurredAt time.Time
}

// AlertField is a short labelled value shown alongside the summary.
type AlertField struct {
	Name  string
	Value string
}
