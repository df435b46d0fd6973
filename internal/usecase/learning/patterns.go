package learning

import (
	"context"
	"fmt"
	"sort"

	"feed-resilience/internal/domain/entity"
)

type tacticTally struct {
	name      string
	successes int
	total     int
}

func (t tacticTally) rate() float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.successes) / float64(t.total)
}

// Patterns returns the per source type tactic ranking, recomputing it when
// the cached copy is older than PatternTTL. A failed recompute keeps the
// previous cache untouched.
func (l *Loop) Patterns(ctx context.Context) (map[string]entity.PatternAnalysis, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.patterns != nil && l.now().Sub(l.patternsAt) < l.cfg.PatternTTL {
		return copyPatterns(l.patterns), nil
	}

	fresh, err := l.computePatterns(ctx)
	if err != nil {
		return nil, err
	}
	l.patterns = fresh
	l.patternsAt = l.now()
	return copyPatterns(fresh), nil
}

// RefreshPatterns drops the cache and recomputes it.
func (l *Loop) RefreshPatterns(ctx context.Context) (map[string]entity.PatternAnalysis, error) {
	l.mu.Lock()
	l.patterns = nil
	l.mu.Unlock()
	return l.Patterns(ctx)
}

func (l *Loop) computePatterns(ctx context.Context) (map[string]entity.PatternAnalysis, error) {
	profiles, err := l.healing.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	feeds, err := l.catalog.GetFeedCatalog(ctx, entity.CatalogFilter{})
	if err != nil {
		return nil, fmt.Errorf("feed catalog: %w", err)
	}
	attempts, err := l.healing.AttemptsSince(ctx, l.now().Add(-l.cfg.PatternWindow))
	if err != nil {
		return nil, fmt.Errorf("attempts since: %w", err)
	}

	typeOf := make(map[int64]string, len(feeds))
	for _, f := range feeds {
		if f.SourceType != "" {
			typeOf[f.ID] = f.SourceType
		}
	}

	feedsPerType := make(map[string]int)
	for _, p := range profiles {
		if st, ok := typeOf[p.FeedID]; ok {
			feedsPerType[st]++
		}
	}

	tallies := make(map[string]map[string]*tacticTally)
	for _, a := range attempts {
		st, ok := typeOf[a.FeedID]
		if !ok || feedsPerType[st] < l.cfg.MinFeedsPerType || a.Tactic == entity.TacticAllStrategies {
			continue
		}
		byTactic, ok := tallies[st]
		if !ok {
			byTactic = make(map[string]*tacticTally)
			tallies[st] = byTactic
		}
		t, ok := byTactic[a.Tactic]
		if !ok {
			t = &tacticTally{name: a.Tactic}
			byTactic[a.Tactic] = t
		}
		t.total++
		if a.Success {
			t.successes++
		}
	}

	out := make(map[string]entity.PatternAnalysis, len(tallies))
	for st, byTactic := range tallies {
		ranked := make([]tacticTally, 0, len(byTactic))
		var successes, total int
		for _, t := range byTactic {
			ranked = append(ranked, *t)
			successes += t.successes
			total += t.total
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].rate() != ranked[j].rate() {
				return ranked[i].rate() > ranked[j].rate()
			}
			if ranked[i].total != ranked[j].total {
				return ranked[i].total > ranked[j].total
			}
			return ranked[i].name < ranked[j].name
		})
		if len(ranked) > l.cfg.TopTactics {
			ranked = ranked[:l.cfg.TopTactics]
		}

		tactics := make([]string, len(ranked))
		for i, t := range ranked {
			tactics[i] = t.name
		}
		out[st] = entity.PatternAnalysis{
			SourceType:       st,
			PreferredTactics: tactics,
			SuccessRate:      float64(successes) / float64(total),
			SampleSize:       feedsPerType[st],
		}
	}
	return out, nil
}

func copyPatterns(in map[string]entity.PatternAnalysis) map[string]entity.PatternAnalysis {
	out := make(map[string]entity.PatternAnalysis, len(in))
	for k, v := range in {
		v.PreferredTactics = append([]string(nil), v.PreferredTactics...)
		out[k] = v
	}
	return out
}
