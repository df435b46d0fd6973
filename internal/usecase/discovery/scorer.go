package discovery

import (
	"math"
	"net/url"
	"sort"
	"strings"

	"feed-resilience/internal/domain/entity"
)

// Score weights. They sum to 0.85; the remaining headroom comes from the
// strategy similarity average and the validation bonus.
const (
	weightTopicOverlap  = 0.30
	weightSourceType    = 0.20
	weightDomain        = 0.20
	weightStrategyPrior = 0.15

	defaultStrategyPrior = 0.5
)

// strategyPriors is how much each strategy's output is trusted up front.
var strategyPriors = map[string]float64{
	entity.StrategyDomainVariant: 0.9,
	entity.StrategyWayback:       0.85,
	entity.StrategyTopicBased:    0.8,
	entity.StrategySocialAPI:     0.7,
	entity.StrategySearchEngine:  0.6,
}

// subdomainPrefixes are stripped before comparing base names of two hosts.
var subdomainPrefixes = []string{"www.", "feeds.", "feed.", "blog.", "news.", "rss.", "m."}

// StrategyPrior returns the fixed prior confidence of a strategy.
func StrategyPrior(strategy string) float64 {
	if p, ok := strategyPriors[strategy]; ok {
		return p
	}
	return defaultStrategyPrior
}

// Score computes the pre-validation confidence (0-100) of a candidate as a
// replacement for original.
func Score(original *entity.Feed, c *entity.Candidate) int {
	total := weightTopicOverlap * TopicOverlap(original.Topics, c.Topics)

	if c.SourceType != "" && strings.EqualFold(c.SourceType, original.SourceType) {
		total += weightSourceType
	}

	total += weightDomain * DomainSimilarity(original.URL, c.URL)
	total += weightStrategyPrior * StrategyPrior(c.Strategy)

	if c.Similarity != nil {
		total = (total + clamp01(*c.Similarity)) / 2
	}

	return entity.ClampConfidence(int(math.Round(total * 100)))
}

// TopicOverlap returns the fraction of original topics present in candidate.
// Topics compare case-insensitively.
func TopicOverlap(original, candidate []string) float64 {
	if len(original) == 0 || len(candidate) == 0 {
		return 0
	}
	have := make(map[string]struct{}, len(candidate))
	for _, t := range candidate {
		have[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	matches := 0
	for _, t := range original {
		if _, ok := have[strings.ToLower(strings.TrimSpace(t))]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(original))
}

// DomainSimilarity returns 1 for identical hosts (ignoring www), 0.5 when
// the base names match or one contains the other after stripping common
// subdomain prefixes, and 0 otherwise.
func DomainSimilarity(originalURL, candidateURL string) float64 {
	a := hostOf(originalURL)
	b := hostOf(candidateURL)
	if a == "" || b == "" {
		return 0
	}

	a = strings.TrimPrefix(a, "www.")
	b = strings.TrimPrefix(b, "www.")
	if a == b {
		return 1
	}

	baseA := BaseName(stripSubdomainPrefixes(a))
	baseB := BaseName(stripSubdomainPrefixes(b))
	if baseA == "" || baseB == "" {
		return 0
	}
	if baseA == baseB || strings.Contains(baseA, baseB) || strings.Contains(baseB, baseA) {
		return 0.5
	}
	return 0
}

// BaseName returns the registrable label of a host: "example" for
// "blog.example.co.uk" and "example.com".
func BaseName(host string) string {
	labels := strings.Split(strings.TrimSuffix(host, "."), ".")
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return labels[0]
	}
	// two-letter country code under a short second level (co.uk, com.au)
	last := labels[len(labels)-1]
	second := labels[len(labels)-2]
	if len(labels) >= 3 && len(last) == 2 && len(second) <= 3 {
		return labels[len(labels)-3]
	}
	return second
}

func stripSubdomainPrefixes(host string) string {
	for _, p := range subdomainPrefixes {
		host = strings.TrimPrefix(host, p)
	}
	return host
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Deduplicate drops candidates whose lowercased URL was already seen.
// The first occurrence wins, so strategy order decides ties.
func Deduplicate(candidates []entity.Candidate) []entity.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]entity.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c.URL))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// sortByConfidence orders candidates best first, keeping discovery order on ties.
func sortByConfidence(candidates []entity.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
}
