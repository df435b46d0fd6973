package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/observability/metrics"
	"feed-resilience/internal/repository"
)

// CatalogReader lists catalog feeds for pattern grouping.
type CatalogReader interface {
	GetFeedCatalog(ctx context.Context, filter entity.CatalogFilter) ([]*entity.Feed, error)
}

// Config tunes promotion, decay and pattern analysis.
type Config struct {
	// RecentWindow is how many recent attempts are read for promotion.
	RecentWindow int
	// PromotionStreak is the number of latest same-tactic attempts that
	// must all have succeeded.
	PromotionStreak int
	// PromotionRate is the recent success rate a tactic must exceed.
	PromotionRate float64
	// MinPreferredAttempts and MinPreferredRate gate BestTactic's use of
	// the preferred tactic.
	MinPreferredAttempts int
	MinPreferredRate     float64
	// DecayThreshold is how long a profile may go without updates before
	// its preference starts to decay.
	DecayThreshold time.Duration

	PatternTTL      time.Duration
	PatternWindow   time.Duration
	MinFeedsPerType int
	TopTactics      int
}

// DefaultConfig returns the production learning settings.
func DefaultConfig() Config {
	return Config{
		RecentWindow:         10,
		PromotionStreak:      3,
		PromotionRate:        0.7,
		MinPreferredAttempts: 3,
		MinPreferredRate:     0.5,
		DecayThreshold:       30 * 24 * time.Hour,
		PatternTTL:           time.Hour,
		PatternWindow:        90 * 24 * time.Hour,
		MinFeedsPerType:      5,
		TopTactics:           3,
	}
}

// Recommendation sources.
const (
	SourceProfile = "profile"
	SourcePattern = "pattern"
	SourceNone    = "none"
)

// Recommendation is the tactic BestTactic suggests for a feed.
type Recommendation struct {
	Tactic string
	Source string
	// SuccessRate is the rate backing the recommendation.
	SuccessRate float64
}

// Loop is the learning loop. Its pattern cache belongs to the instance.
type Loop struct {
	healing repository.HealingRepository
	catalog CatalogReader
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	patterns   map[string]entity.PatternAnalysis
	patternsAt time.Time
}

// NewLoop creates a learning loop.
func NewLoop(healing repository.HealingRepository, catalog CatalogReader, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		healing: healing,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// RecordAttempt appends attempt to the log and folds it into the feed's
// profile. Storage errors are returned joined; the profile update is still
// tried when logging fails.
func (l *Loop) RecordAttempt(ctx context.Context, attempt *entity.HealingAttempt) error {
	if attempt == nil {
		return ErrNilAttempt
	}
	if attempt.Tactic == "" {
		return ErrMissingTactic
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = l.now()
	}

	var errs []error
	if err := l.healing.LogAttempt(ctx, attempt); err != nil {
		errs = append(errs, fmt.Errorf("log attempt: %w", err))
	}
	metrics.RecordHealingAttempt(attempt.Tactic, attempt.Success)

	profile, err := l.healing.GetProfile(ctx, attempt.FeedID)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("get profile: %w", err))...)
	}
	if profile == nil {
		profile = &entity.HealingProfile{FeedID: attempt.FeedID}
	}

	patch := entity.ProfilePatch{}
	now := l.now()
	patch.UpdatedAt = &now

	if attempt.Success {
		successes := profile.SuccessCount + 1
		avg := (profile.AvgRecoveryTime*time.Duration(profile.SuccessCount) + attempt.ResponseTime) /
			time.Duration(successes)
		tactic := attempt.Tactic
		patch.SuccessCount = &successes
		patch.AvgRecoveryTime = &avg
		patch.LastSuccessfulTactic = &tactic

		promote, err := l.shouldPromote(ctx, attempt)
		if err != nil {
			errs = append(errs, err)
		}
		if promote && profile.PreferredTactic != tactic {
			patch.PreferredTactic = &tactic
			metrics.RecordTacticPromotion(tactic)
			l.logger.Info("tactic promoted",
				slog.Int64("feed_id", attempt.FeedID),
				slog.String("tactic", tactic),
				slog.String("previous", profile.PreferredTactic))
		}
	} else {
		failures := profile.FailureCount + 1
		patch.FailureCount = &failures
	}

	if err := l.healing.UpdateProfile(ctx, attempt.FeedID, patch); err != nil {
		errs = append(errs, fmt.Errorf("update profile: %w", err))
	}
	return errors.Join(errs...)
}

// shouldPromote reports whether attempt's tactic has won its last
// PromotionStreak attempts for the feed with a recent success rate above
// PromotionRate.
func (l *Loop) shouldPromote(ctx context.Context, attempt *entity.HealingAttempt) (bool, error) {
	recent, err := l.healing.RecentAttempts(ctx, attempt.FeedID, l.cfg.RecentWindow)
	if err != nil {
		return false, fmt.Errorf("recent attempts: %w", err)
	}

	var sameTactic []*entity.HealingAttempt
	for _, a := range recent {
		if a.Tactic == attempt.Tactic {
			sameTactic = append(sameTactic, a)
		}
	}
	if len(sameTactic) < l.cfg.PromotionStreak {
		return false, nil
	}
	for _, a := range sameTactic[:l.cfg.PromotionStreak] {
		if !a.Success {
			return false, nil
		}
	}
	return successRate(sameTactic) > l.cfg.PromotionRate, nil
}

func successRate(attempts []*entity.HealingAttempt) float64 {
	if len(attempts) == 0 {
		return 0
	}
	n := 0
	for _, a := range attempts {
		if a.Success {
			n++
		}
	}
	return float64(n) / float64(len(attempts))
}

// BestTactic recommends a tactic for feed. A stale preference is decayed
// before it is considered; without a trustworthy preference the source-type
// pattern is used.
func (l *Loop) BestTactic(ctx context.Context, feed *entity.Feed) (Recommendation, error) {
	none := Recommendation{Source: SourceNone}
	if feed == nil {
		return none, nil
	}

	profile, err := l.healing.GetProfile(ctx, feed.ID)
	if err != nil {
		return none, fmt.Errorf("get profile: %w", err)
	}

	if profile != nil {
		if _, err := l.applyDecay(ctx, profile); err != nil {
			return none, err
		}
		if profile.PreferredTactic != "" &&
			profile.TotalAttempts() >= l.cfg.MinPreferredAttempts &&
			profile.SuccessRate() > l.cfg.MinPreferredRate {
			return Recommendation{
				Tactic:      profile.PreferredTactic,
				Source:      SourceProfile,
				SuccessRate: profile.SuccessRate(),
			}, nil
		}
	}

	patterns, err := l.Patterns(ctx)
	if err != nil {
		return none, err
	}
	if p, ok := patterns[feed.SourceType]; ok && len(p.PreferredTactics) > 0 {
		return Recommendation{
			Tactic:      p.PreferredTactics[0],
			Source:      SourcePattern,
			SuccessRate: p.SuccessRate,
		}, nil
	}
	return none, nil
}
