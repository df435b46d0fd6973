package learning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/observability/metrics"
)

// decayFloor is the factor under which a preferred tactic is cleared.
const decayFloor = 0.5

// DecayFactor returns 1 for a profile updated within threshold. Past it the
// factor starts at 0.5 and falls linearly, reaching 0 after another two
// thresholds.
func DecayFactor(updatedAt, now time.Time, threshold time.Duration) float64 {
	stale := now.Sub(updatedAt)
	if threshold <= 0 || stale <= threshold {
		return 1
	}
	over := float64(stale-threshold) / float64(2*threshold)
	f := decayFloor - over
	if f < 0 {
		return 0
	}
	return f
}

// applyDecay clears profile's preferred tactic when its decay factor fell
// under the floor. UpdatedAt is left alone so the profile stays stale
// until a new attempt arrives.
func (l *Loop) applyDecay(ctx context.Context, profile *entity.HealingProfile) (bool, error) {
	if profile.PreferredTactic == "" {
		return false, nil
	}
	factor := DecayFactor(profile.UpdatedAt, l.now(), l.cfg.DecayThreshold)
	if factor >= decayFloor {
		return false, nil
	}

	if err := l.healing.UpdateProfile(ctx, profile.FeedID, entity.ProfilePatch{ClearPreferredTactic: true}); err != nil {
		return false, fmt.Errorf("clear preferred tactic: %w", err)
	}
	metrics.RecordPreferenceDecay()
	l.logger.Info("preferred tactic decayed",
		slog.Int64("feed_id", profile.FeedID),
		slog.String("tactic", profile.PreferredTactic),
		slog.Float64("factor", factor))
	profile.PreferredTactic = ""
	return true, nil
}

// DecaySweep applies decay to every profile and returns how many
// preferences were cleared. A failing profile does not stop the sweep.
func (l *Loop) DecaySweep(ctx context.Context) (int, error) {
	profiles, err := l.healing.ListProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}

	cleared := 0
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return cleared, err
		}
		ok, err := l.applyDecay(ctx, p)
		if err != nil {
			l.logger.Warn("decay failed",
				slog.Int64("feed_id", p.FeedID),
				slog.Any("error", err))
			continue
		}
		if ok {
			cleared++
		}
	}
	return cleared, nil
}
