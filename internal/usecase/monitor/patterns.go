package monitor

import (
	"context"
	"fmt"
	"sort"

	"feed-resilience/internal/domain/entity"
)

// Failure categories.
const (
	CategoryTimeout   = "timeout"
	CategoryNotFound  = "not_found"
	CategoryForbidden = "forbidden"
	CategoryTLS       = "tls"
	CategoryParse     = "parse"
	CategoryRateLimit = "rate_limit"
	CategoryOther     = "other"
)

const maxPatternExamples = 3

var remediations = map[string]string{
	CategoryTimeout:   "Increase fetch timeouts or check whether the host is overloaded",
	CategoryNotFound:  "The source likely moved; rely on domain variant and archive discovery",
	CategoryForbidden: "The host blocks the crawler; review the user agent and request rate",
	CategoryTLS:       "Certificate problems on the host; retry later or try the http variant",
	CategoryParse:     "The document is not a valid feed; look for an alternate feed link",
	CategoryRateLimit: "Lower the request rate for the host",
	CategoryOther:     "Inspect the error messages manually",
}

// FailurePattern groups failed attempts by error category.
type FailurePattern struct {
	Category    string   `json:"category"`
	Count       int      `json:"count"`
	FeedIDs     []int64  `json:"feed_ids"`
	Examples    []string `json:"examples"`
	Remediation string   `json:"remediation"`
}

// Categorize maps free-form error text to a failure category.
func Categorize(msg string) string {
	switch entity.ClassifyErrorMessage(msg) {
	case entity.ErrTypeTimeout:
		return CategoryTimeout
	case entity.ErrTypeNotFound, entity.ErrTypeGone, entity.ErrTypeDNS:
		return CategoryNotFound
	case entity.ErrTypeForbidden:
		return CategoryForbidden
	case entity.ErrTypeTLS:
		return CategoryTLS
	case entity.ErrTypeParse:
		return CategoryParse
	case entity.ErrTypeRateLimited:
		return CategoryRateLimit
	default:
		return CategoryOther
	}
}

// Remediation returns the suggested fix for a category.
func Remediation(category string) string {
	if r, ok := remediations[category]; ok {
		return r
	}
	return remediations[CategoryOther]
}

// FailurePatterns clusters failed attempts of the configured window,
// largest cluster first.
func (m *Monitor) FailurePatterns(ctx context.Context) ([]FailurePattern, error) {
	attempts, err := m.healing.AttemptsSince(ctx, m.now().Add(-m.cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("attempts since: %w", err)
	}

	byCategory := make(map[string]*FailurePattern)
	seenFeed := make(map[string]map[int64]struct{})
	for _, a := range attempts {
		if a.Success {
			continue
		}
		cat := Categorize(a.ErrorMessage)
		p, ok := byCategory[cat]
		if !ok {
			p = &FailurePattern{Category: cat, Remediation: Remediation(cat)}
			byCategory[cat] = p
			seenFeed[cat] = make(map[int64]struct{})
		}
		p.Count++
		if _, dup := seenFeed[cat][a.FeedID]; !dup {
			seenFeed[cat][a.FeedID] = struct{}{}
			p.FeedIDs = append(p.FeedIDs, a.FeedID)
		}
		if a.ErrorMessage != "" && len(p.Examples) < maxPatternExamples {
			p.Examples = append(p.Examples, a.ErrorMessage)
		}
	}

	out := make([]FailurePattern, 0, len(byCategory))
	for _, p := range byCategory {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}
