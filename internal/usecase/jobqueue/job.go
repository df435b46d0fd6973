package jobqueue

import (
	"time"
)

// Priority is a dequeue band. Lower values are served first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// Subscriber thresholds for automatic priority assignment.
const (
	highPrioritySubscribers   = 10
	mediumPrioritySubscribers = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// PriorityFromSubscribers maps an active subscriber count to a priority:
// 10 or more is high, 3 or more is medium, anything else low.
func PriorityFromSubscribers(n int) Priority {
	switch {
	case n >= highPrioritySubscribers:
		return PriorityHigh
	case n >= mediumPrioritySubscribers:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Downgrade returns the priority a job keeps after its retry count reached
// retryCount. It never raises a priority.
func Downgrade(p Priority, retryCount int) Priority {
	if p == PriorityHigh && retryCount >= 2 {
		p = PriorityMedium
	}
	if p == PriorityMedium && retryCount >= 3 {
		p = PriorityLow
	}
	return p
}

// Metadata describes why a job was created.
type Metadata struct {
	SubscriberCount int    `json:"subscriber_count"`
	LastErrorType   string `json:"last_error_type,omitempty"`
	TriggerReason   string `json:"trigger_reason,omitempty"`
}

// Job is one discovery request for a feed.
type Job struct {
	ID         string    `json:"id"`
	FeedID     int64     `json:"feed_id"`
	Priority   Priority  `json:"priority"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
	Metadata   Metadata  `json:"metadata"`

	seq   uint64
	index int
}

// State is a job's position in its lifecycle.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
)
