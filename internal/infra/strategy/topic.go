package strategy

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/usecase/discovery"
)

const (
	// minTopicOverlap is the fraction of the broken feed's topics a catalog
	// feed must share to be proposed.
	minTopicOverlap = 0.3
	maxTopicResults = 20
)

// TopicBased proposes active catalog feeds that cover the same topics.
type TopicBased struct {
	catalog CatalogReader
	logger  *slog.Logger
}

// NewTopicBased creates the topic strategy. catalog is usually a CachedCatalog.
func NewTopicBased(catalog CatalogReader, logger *slog.Logger) *TopicBased {
	if logger == nil {
		logger = slog.Default()
	}
	return &TopicBased{catalog: catalog, logger: logger}
}

// Name returns the tactic name recorded on attempts.
func (s *TopicBased) Name() string { return entity.StrategyTopicBased }

// IsApplicable reports whether the feed has topics.
func (s *TopicBased) IsApplicable(feed *entity.Feed) bool {
	return len(feed.Topics) > 0
}

// Discover suggests active catalog feeds that share a topic with the feed.
func (s *TopicBased) Discover(ctx context.Context, feed *entity.Feed) []entity.Candidate {
	feeds, err := s.catalog.GetFeedCatalog(ctx, entity.CatalogFilter{ActiveOnly: true})
	if err != nil {
		s.logger.Warn("topic strategy: catalog lookup failed",
			slog.Int64("feed_id", feed.ID),
			slog.Any("error", err))
		return nil
	}

	own := strings.ToLower(feed.URL)
	var out []entity.Candidate
	for _, f := range feeds {
		if f == nil || f.ID == feed.ID || !f.IsActive || strings.ToLower(f.URL) == own {
			continue
		}
		overlap := discovery.TopicOverlap(feed.Topics, f.Topics)
		if overlap < minTopicOverlap {
			continue
		}
		out = append(out, entity.Candidate{
			URL:         f.URL,
			Title:       f.Title,
			Description: f.Description,
			SourceType:  f.SourceType,
			Topics:      f.Topics,
			Strategy:    entity.StrategyTopicBased,
			Similarity:  entity.Float64(overlap),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		si := strings.EqualFold(out[i].SourceType, feed.SourceType)
		sj := strings.EqualFold(out[j].SourceType, feed.SourceType)
		if si != sj {
			return si
		}
		return *out[i].Similarity > *out[j].Similarity
	})
	if len(out) > maxTopicResults {
		out = out[:maxTopicResults]
	}
	return out
}
