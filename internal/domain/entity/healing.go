package entity

import "time"

// Healing status buckets used by FeedsByHealingStatus.
const (
	HealingStatusHealing = "healing"
	HealingStatusHealed  = "healed"
	HealingStatusFailed  = "failed"
)

// HealingProfile is the per-feed memory of which tactics worked.
type HealingProfile struct {
	FeedID               int64
	SuccessCount         int
	FailureCount         int
	AvgRecoveryTime      time.Duration
	PreferredTactic      string
	LastSuccessfulTactic string
	UpdatedAt            time.Time
}

// TotalAttempts returns SuccessCount + FailureCount.
func (p *HealingProfile) TotalAttempts() int {
	return p.SuccessCount + p.FailureCount
}

// SuccessRate returns the historical success ratio, 0 when there is no history.
func (p *HealingProfile) SuccessRate() float64 {
	total := p.TotalAttempts()
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(total)
}

// ProfilePatch is a partial update of a HealingProfile. Nil fields are kept.
// ClearPreferredTactic wins over PreferredTactic.
type ProfilePatch struct {
	SuccessCount         *int
	FailureCount         *int
	AvgRecoveryTime      *time.Duration
	PreferredTactic      *string
	ClearPreferredTactic bool
	LastSuccessfulTactic *string
	UpdatedAt            *time.Time
}

// HealingAttempt is one append-only healing log entry.
type HealingAttempt struct {
	ID           int64
	FeedID       int64
	Tactic       string
	Success      bool
	ErrorMessage string
	ResponseTime time.Duration
	CreatedAt    time.Time
	Metadata     map[string]any
}

// PatternAnalysis is a source-type level tactic recommendation.
type PatternAnalysis struct {
	SourceType       string
	PreferredTactics []string
	SuccessRate      float64
	SampleSize       int
}
