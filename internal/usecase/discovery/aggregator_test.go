package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-resilience/internal/domain/entity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type aggregatorFixture struct {
	validator *fakeValidator
	catalog   *fakeCatalog
	attempts  *fakeAttempts
	notifier  *fakeNotifier
}

func newFixture(subs ...entity.Subscription) *aggregatorFixture {
	return &aggregatorFixture{
		validator: &fakeValidator{valid: map[string]entity.ValidationResult{}},
		catalog:   newFakeCatalog(subs...),
		attempts:  &fakeAttempts{},
		notifier:  &fakeNotifier{},
	}
}

func (f *aggregatorFixture) aggregator(strategies ...Strategy) *Aggregator {
	return NewAggregator(strategies, f.validator, f.catalog, f.attempts, f.notifier, DefaultConfig(), discardLogger())
}

func sub(user string, feedID int64) entity.Subscription {
	return entity.Subscription{UserID: user, FeedID: feedID, Active: true}
}

// sameSiteCandidate scores 83 before validation and 93 with entries.
func sameSiteCandidate() entity.Candidate {
	return entity.Candidate{
		URL: "https://example.com/rss", SourceType: entity.SourceTypeRSS,
		Topics: []string{"go", "cloud"}, Strategy: entity.StrategyWayback,
	}
}

// topicCandidate scores 62 before validation and 72 with entries.
func topicCandidate() entity.Candidate {
	return entity.Candidate{
		URL: "https://other.org/feed", SourceType: entity.SourceTypeRSS,
		Topics: []string{"go", "cloud"}, Strategy: entity.StrategyTopicBased,
	}
}

func TestRun_AdoptsHighConfidenceSameTypeCandidate(t *testing.T) {
	// Arrange
	f := newFixture(sub("u1", 1), sub("u2", 1), sub("u3", 2))
	f.validator.valid["https://example.com/rss"] = validFeed("Example", 12)
	agg := f.aggregator(&fakeStrategy{name: entity.StrategyWayback, applicable: true,
		candidates: []entity.Candidate{sameSiteCandidate()}})

	// Act
	out, err := agg.Run(context.Background(), brokenFeed())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, ActionAdopt, out.Action)
	require.NotNil(t, out.Winner)
	assert.Equal(t, 93, out.Winner.Confidence)
	require.NotNil(t, out.NewFeed)
	assert.Equal(t, [][2]int64{{1, out.NewFeed.ID}}, f.catalog.migrations)
	assert.ElementsMatch(t, []string{"u1", "u2"}, f.notifier.switched)
	assert.Equal(t, 2, out.MigratedUsers)
	assert.Equal(t, 2, out.NotifiedUsers)

	require.Len(t, f.attempts.saved, 1)
	saved := f.attempts.saved[0]
	assert.True(t, saved.AutoSubscribed)
	require.NotNil(t, saved.CandidateFeedID)
	assert.Equal(t, out.NewFeed.ID, *saved.CandidateFeedID)
	assert.Equal(t, entity.StrategyWayback, saved.Strategy)
	assert.Equal(t, 93, saved.Confidence)
	assert.Nil(t, saved.Accepted)
}

func TestRun_SuggestsMidConfidenceCandidateToEachSubscriber(t *testing.T) {
	// Arrange
	inactive := entity.Subscription{UserID: "u4", FeedID: 1, Active: false}
	f := newFixture(sub("u1", 1), sub("u2", 1), sub("u1", 1), inactive, sub("u3", 9))
	f.validator.valid["https://other.org/feed"] = validFeed("Other", 3)
	agg := f.aggregator(&fakeStrategy{name: entity.StrategyTopicBased, applicable: true,
		candidates: []entity.Candidate{topicCandidate()}})

	// Act
	out, err := agg.Run(context.Background(), brokenFeed())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, ActionSuggest, out.Action)
	assert.Equal(t, 72, out.Winner.Confidence)
	assert.Equal(t, []string{"u1", "u2"}, f.notifier.suggested)
	assert.Equal(t, 2, out.NotifiedUsers)
	assert.Empty(t, f.catalog.migrations)
	assert.Empty(t, f.notifier.switched)

	require.Len(t, f.attempts.saved, 1)
	assert.False(t, f.attempts.saved[0].AutoSubscribed)
	assert.NotNil(t, f.attempts.saved[0].CandidateFeedID)
}

func TestRun_NothingValidates(t *testing.T) {
	f := newFixture(sub("u1", 1))
	agg := f.aggregator(&fakeStrategy{name: entity.StrategyWayback, applicable: true,
		candidates: []entity.Candidate{sameSiteCandidate(), topicCandidate()}})

	out, err := agg.Run(context.Background(), brokenFeed())

	require.NoError(t, err)
	assert.Equal(t, ActionNone, out.Action)
	assert.Nil(t, out.Winner)
	assert.Equal(t, 0, out.Persisted)
	assert.Empty(t, f.attempts.saved)
	assert.Empty(t, f.catalog.entries)
	assert.Empty(t, f.notifier.switched)
	assert.Empty(t, f.notifier.suggested)
}

func TestRun_LowConfidenceTakesNoActionButRecordsAttempt(t *testing.T) {
	f := newFixture(sub("u1", 1))
	low := entity.Candidate{URL: "https://unrelated.net/rss", SourceType: entity.SourceTypeAtom, Strategy: entity.StrategySearchEngine}
	f.validator.valid[low.URL] = validFeed("Unrelated", 1)
	agg := f.aggregator(&fakeStrategy{name: entity.StrategySearchEngine, applicable: true,
		candidates: []entity.Candidate{low}})

	out, err := agg.Run(context.Background(), brokenFeed())

	require.NoError(t, err)
	assert.Equal(t, ActionNone, out.Action)
	assert.Equal(t, 19, out.Winner.Confidence)
	assert.Nil(t, out.NewFeed)
	require.Len(t, f.attempts.saved, 1)
	assert.Nil(t, f.attempts.saved[0].CandidateFeedID)
	assert.Empty(t, f.catalog.entries)
}

func TestRun_DeduplicatesBeforeScoring(t *testing.T) {
	f := newFixture()
	candidates := []entity.Candidate{
		{URL: "https://a.example.org/feed", Strategy: entity.StrategySearchEngine},
		{URL: "https://b.example.org/feed", Strategy: entity.StrategySearchEngine},
		{URL: "https://A.EXAMPLE.ORG/FEED", Strategy: entity.StrategySearchEngine},
		{URL: "https://c.example.org/feed", Strategy: entity.StrategySearchEngine},
		{URL: "https://d.example.org/feed", Strategy: entity.StrategySearchEngine},
	}
	agg := f.aggregator(&fakeStrategy{name: entity.StrategySearchEngine, applicable: true, candidates: candidates})

	out, err := agg.Run(context.Background(), brokenFeed())

	require.NoError(t, err)
	assert.Equal(t, 4, out.Evaluated)
	assert.Len(t, f.validator.seen, 4)
}

func TestRun_DropsOriginalURLAndMalformedCandidates(t *testing.T) {
	f := newFixture()
	candidates := []entity.Candidate{
		{URL: "https://EXAMPLE.com/feed.xml"},
		{URL: "ftp://example.com/feed"},
		{URL: "https://ok.example.org/feed"},
	}
	agg := f.aggregator(&fakeStrategy{name: entity.StrategyDomainVariant, applicable: true, candidates: candidates})

	out, err := agg.Run(context.Background(), brokenFeed())

	require.NoError(t, err)
	assert.Equal(t, 1, out.Evaluated)
	assert.Equal(t, []string{"https://ok.example.org/feed"}, f.validator.seen)
}

func TestRun_ValidatesOnlyTopCandidatesAndPersistsTopThree(t *testing.T) {
	f := newFixture()
	var candidates []entity.Candidate
	for i := 0; i < 12; i++ {
		u := fmt.Sprintf("https://site%02d.example.org/feed", i)
		candidates = append(candidates, entity.Candidate{URL: u, Strategy: entity.StrategySearchEngine})
		f.validator.valid[u] = validFeed("Site", 1)
	}
	agg := f.aggregator(&fakeStrategy{name: entity.StrategySearchEngine, applicable: true, candidates: candidates})

	out, err := agg.Run(context.Background(), brokenFeed())

	require.NoError(t, err)
	assert.Equal(t, 12, out.Evaluated)
	assert.Len(t, f.validator.seen, 10)
	assert.Len(t, out.Candidates, 10)
	assert.Equal(t, 3, out.Persisted)
	require.Len(t, f.attempts.saved, 3)
	for i, a := range f.attempts.saved {
		assert.Equal(t, i+1, a.Metadata["rank"])
	}
}

func TestRun_InvalidCandidatesAreDiscarded(t *testing.T) {
	f := newFixture()
	f.validator.valid["https://other.org/feed"] = validFeed("Other", 0)
	agg := f.aggregator(&fakeStrategy{name: entity.StrategyTopicBased, applicable: true,
		candidates: []entity.Candidate{sameSiteCandidate(), topicCandidate()}})

	out, err := agg.Run(context.Background(), brokenFeed())

	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)
	// valid but empty: no bonus, no penalty
	assert.Equal(t, 62, out.Candidates[0].Confidence)
	assert.Equal(t, "Other", out.Candidates[0].Title)
	assert.Equal(t, ActionSuggest, out.Action)
}

func TestRun_PanickingStrategyDoesNotStopOthers(t *testing.T) {
	f := newFixture()
	f.validator.valid["https://other.org/feed"] = validFeed("Other", 2)
	bad := &fakeStrategy{name: entity.StrategySocialAPI, applicable: true, panics: true}
	good := &fakeStrategy{name: entity.StrategyTopicBased, applicable: true,
		candidates: []entity.Candidate{topicCandidate()}}

	out, err := f.aggregator(bad, good).Run(context.Background(), brokenFeed())

	require.NoError(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, ActionSuggest, out.Action)
	assert.Equal(t, []string{entity.StrategySocialAPI, entity.StrategyTopicBased}, out.StrategiesRun)
}

func TestRun_SkipsInapplicableStrategies(t *testing.T) {
	f := newFixture()
	skipped := &fakeStrategy{name: entity.StrategyWayback, applicable: false,
		candidates: []entity.Candidate{sameSiteCandidate()}}
	ran := &fakeStrategy{name: entity.StrategyTopicBased, applicable: true}

	out, err := f.aggregator(skipped, ran).Run(context.Background(), brokenFeed())

	require.NoError(t, err)
	assert.Equal(t, 0, skipped.calls)
	assert.Equal(t, 1, ran.calls)
	assert.Equal(t, []string{entity.StrategyTopicBased}, out.StrategiesRun)
}

func TestRun_PreferStrategyWinsDuplicates(t *testing.T) {
	// Arrange
	f := newFixture()
	f.validator.valid["https://example.com/rss"] = validFeed("Example", 3)
	c := sameSiteCandidate()
	c.Strategy = ""
	first := &fakeStrategy{name: entity.StrategyWayback, applicable: true, candidates: []entity.Candidate{c}}
	second := &fakeStrategy{name: entity.StrategyDomainVariant, applicable: true, candidates: []entity.Candidate{c}}

	// Act
	out, err := f.aggregator(first, second).Run(context.Background(), brokenFeed(),
		PreferStrategy(entity.StrategyDomainVariant))

	// Assert
	require.NoError(t, err)
	require.NotNil(t, out.Winner)
	assert.Equal(t, entity.StrategyDomainVariant, out.Winner.Strategy)
	assert.Equal(t, []string{entity.StrategyDomainVariant, entity.StrategyWayback}, out.StrategiesRun)
}

func TestRun_FillsMissingStrategyName(t *testing.T) {
	f := newFixture()
	c := topicCandidate()
	c.Strategy = ""
	f.validator.valid[c.URL] = validFeed("Other", 1)
	agg := f.aggregator(&fakeStrategy{name: entity.StrategyTopicBased, applicable: true, candidates: []entity.Candidate{c}})

	out, err := agg.Run(context.Background(), brokenFeed())

	require.NoError(t, err)
	assert.Equal(t, entity.StrategyTopicBased, out.Winner.Strategy)
}

func TestRun_CatalogFailureFailsTheRun(t *testing.T) {
	f := newFixture(sub("u1", 1))
	f.catalog.insertErr = errors.New("connection reset")
	f.validator.valid["https://example.com/rss"] = validFeed("Example", 5)
	agg := f.aggregator(&fakeStrategy{name: entity.StrategyWayback, applicable: true,
		candidates: []entity.Candidate{sameSiteCandidate()}})

	out, err := agg.Run(context.Background(), brokenFeed())

	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrCatalogEntry)
	assert.Empty(t, f.attempts.saved)
}

func TestRun_MigrationFailureFailsTheRun(t *testing.T) {
	f := newFixture(sub("u1", 1))
	f.catalog.migrateErr = errors.New("deadlock detected")
	f.validator.valid["https://example.com/rss"] = validFeed("Example", 5)
	agg := f.aggregator(&fakeStrategy{name: entity.StrategyWayback, applicable: true,
		candidates: []entity.Candidate{sameSiteCandidate()}})

	_, err := agg.Run(context.Background(), brokenFeed())

	assert.ErrorIs(t, err, ErrMigration)
}

func TestRun_SubscriptionListFailureFailsSuggestion(t *testing.T) {
	f := newFixture()
	f.catalog.subsErr = errors.New("timeout")
	f.validator.valid["https://other.org/feed"] = validFeed("Other", 5)
	agg := f.aggregator(&fakeStrategy{name: entity.StrategyTopicBased, applicable: true,
		candidates: []entity.Candidate{topicCandidate()}})

	_, err := agg.Run(context.Background(), brokenFeed())

	assert.ErrorIs(t, err, ErrSubscriptions)
}

func TestRun_PersistenceAndNotificationFailuresAreSwallowed(t *testing.T) {
	f := newFixture(sub("u1", 1))
	f.attempts.saveErr = errors.New("disk full")
	f.notifier.err = errors.New("notification store down")
	f.validator.valid["https://example.com/rss"] = validFeed("Example", 5)
	agg := f.aggregator(&fakeStrategy{name: entity.StrategyWayback, applicable: true,
		candidates: []entity.Candidate{sameSiteCandidate()}})

	out, err := agg.Run(context.Background(), brokenFeed())

	require.NoError(t, err)
	assert.Equal(t, ActionAdopt, out.Action)
	assert.Equal(t, 1, out.MigratedUsers)
	assert.Equal(t, 0, out.NotifiedUsers)
	assert.Equal(t, 0, out.Persisted)
}

func TestRun_NilFeed(t *testing.T) {
	_, err := newFixture().aggregator().Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilFeed)
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.aggregator(&fakeStrategy{name: entity.StrategyTopicBased, applicable: true}).Run(ctx, brokenFeed())

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecide(t *testing.T) {
	cfg := DefaultConfig()
	original := brokenFeed()
	tests := []struct {
		name       string
		confidence int
		sourceType string
		want       Action
	}{
		{"adopt at threshold", 90, entity.SourceTypeRSS, ActionAdopt},
		{"adopt case-insensitive type", 95, "RSS", ActionAdopt},
		{"high confidence other type is suggested", 97, entity.SourceTypeAtom, ActionSuggest},
		{"just below adopt", 89, entity.SourceTypeRSS, ActionSuggest},
		{"suggest at threshold", 60, entity.SourceTypeAtom, ActionSuggest},
		{"below suggest", 59, entity.SourceTypeRSS, ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &entity.Candidate{Confidence: tt.confidence, SourceType: tt.sourceType}
			assert.Equal(t, tt.want, Decide(original, c, cfg))
		})
	}
	assert.Equal(t, ActionNone, Decide(original, nil, cfg))
}

func TestSubscribersOf(t *testing.T) {
	subs := []entity.Subscription{
		sub("a", 1), sub("b", 2), sub("a", 1), {UserID: "c", FeedID: 1}, sub("d", 1),
	}
	assert.Equal(t, []string{"a", "d"}, SubscribersOf(subs, 1))
	assert.Nil(t, SubscribersOf(subs, 42))
}
