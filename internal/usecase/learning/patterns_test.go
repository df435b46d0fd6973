package learning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-resilience/internal/domain/entity"
)

func seedType(h *memHealing, c *fakeCatalog, sourceType string, firstID int64, feeds int) {
	for i := 0; i < feeds; i++ {
		id := firstID + int64(i)
		c.feeds = append(c.feeds, &entity.Feed{ID: id, SourceType: sourceType})
		h.profiles[id] = &entity.HealingProfile{FeedID: id, UpdatedAt: testNow}
	}
}

func logAt(h *memHealing, feedID int64, tactic string, success bool) {
	h.attempts = append(h.attempts, &entity.HealingAttempt{FeedID: feedID, Tactic: tactic, Success: success, CreatedAt: testNow.Add(-time.Hour)})
}

func TestPatterns_RanksTopThreeTacticsPerType(t *testing.T) {
	// Arrange
	h := newMemHealing()
	c := &fakeCatalog{}
	seedType(h, c, "rss", 1, 5)
	logAt(h, 1, entity.StrategyDomainVariant, true)
	logAt(h, 2, entity.StrategyDomainVariant, true)
	logAt(h, 3, entity.StrategyWayback, true)
	logAt(h, 3, entity.StrategyWayback, false)
	logAt(h, 4, entity.StrategySearchEngine, false)
	logAt(h, 5, entity.StrategyTopicBased, true)
	logAt(h, 5, entity.StrategyTopicBased, false)
	logAt(h, 5, entity.StrategyTopicBased, false)
	logAt(h, 5, entity.TacticAllStrategies, false)
	l := newTestLoop(h, c)

	// Act
	got, err := l.Patterns(context.Background())

	// Assert
	require.NoError(t, err)
	want := map[string]entity.PatternAnalysis{
		"rss": {
			SourceType: "rss",
			PreferredTactics: []string{
				entity.StrategyDomainVariant,
				entity.StrategyWayback,
				entity.StrategyTopicBased,
			},
			SuccessRate: 4.0 / 8.0,
			SampleSize:  5,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Patterns() mismatch (-want +got):\n%s", diff)
	}
}

func TestPatterns_IgnoresTypesWithFewFeeds(t *testing.T) {
	h := newMemHealing()
	c := &fakeCatalog{}
	seedType(h, c, "youtube", 1, 4)
	logAt(h, 1, entity.StrategySocialAPI, true)
	l := newTestLoop(h, c)

	got, err := l.Patterns(context.Background())

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPatterns_CachedForTTL(t *testing.T) {
	// Arrange
	h := newMemHealing()
	c := &fakeCatalog{}
	seedType(h, c, "rss", 1, 5)
	logAt(h, 1, entity.StrategyWayback, true)
	l := newTestLoop(h, c)
	now := testNow
	l.now = func() time.Time { return now }
	ctx := context.Background()

	// Act
	_, err := l.Patterns(ctx)
	require.NoError(t, err)
	now = now.Add(30 * time.Minute)
	_, err = l.Patterns(ctx)
	require.NoError(t, err)
	callsWithinTTL := c.calls
	now = now.Add(31 * time.Minute)
	_, err = l.Patterns(ctx)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, callsWithinTTL)
	assert.Equal(t, 2, c.calls)
}

func TestPatterns_ErrorIsNotCached(t *testing.T) {
	h := newMemHealing()
	c := &fakeCatalog{err: errors.New("catalog down")}
	l := newTestLoop(h, c)
	ctx := context.Background()

	_, err := l.Patterns(ctx)
	require.Error(t, err)

	c.err = nil
	_, err = l.Patterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.calls)
}

func TestPatterns_SeparateLoopsKeepSeparateCaches(t *testing.T) {
	h := newMemHealing()
	c := &fakeCatalog{}
	a := newTestLoop(h, c)
	b := newTestLoop(h, c)
	ctx := context.Background()

	_, err := a.Patterns(ctx)
	require.NoError(t, err)
	_, err = b.Patterns(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, c.calls)
}

func TestRefreshPatterns_BypassesCache(t *testing.T) {
	h := newMemHealing()
	c := &fakeCatalog{}
	l := newTestLoop(h, c)
	ctx := context.Background()

	_, err := l.Patterns(ctx)
	require.NoError(t, err)
	_, err = l.RefreshPatterns(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, c.calls)
}
