package strategy

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"feed-resilience/internal/domain/entity"
)

//go:embed known_sources.yaml
var knownSourcesYAML []byte

// KnownSource is one curated feed.
type KnownSource struct {
	URL        string   `yaml:"url"`
	Title      string   `yaml:"title"`
	SourceType string   `yaml:"source_type"`
	Topics     []string `yaml:"topics"`
}

// KnownSources indexes curated feeds by topic.
type KnownSources struct {
	sources []KnownSource
	byTopic map[string][]int
}

// LoadKnownSources parses a curated source table.
func LoadKnownSources(data []byte) (*KnownSources, error) {
	var doc struct {
		Sources []KnownSource `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse known sources: %w", err)
	}

	ks := &KnownSources{byTopic: make(map[string][]int)}
	for _, s := range doc.Sources {
		if err := entity.ValidateCandidateURL(s.URL); err != nil {
			return nil, fmt.Errorf("known source %q: %w", s.URL, err)
		}
		idx := len(ks.sources)
		ks.sources = append(ks.sources, s)
		for _, t := range s.Topics {
			key := strings.ToLower(strings.TrimSpace(t))
			ks.byTopic[key] = append(ks.byTopic[key], idx)
		}
	}
	return ks, nil
}

// DefaultKnownSources returns the embedded curated table.
func DefaultKnownSources() (*KnownSources, error) {
	return LoadKnownSources(knownSourcesYAML)
}

// Len returns the number of curated sources.
func (k *KnownSources) Len() int {
	if k == nil {
		return 0
	}
	return len(k.sources)
}

// ForTopics returns the curated sources sharing at least one topic, in
// table order.
func (k *KnownSources) ForTopics(topics []string) []KnownSource {
	if k == nil {
		return nil
	}
	hit := make(map[int]struct{})
	for _, t := range topics {
		for _, idx := range k.byTopic[strings.ToLower(strings.TrimSpace(t))] {
			hit[idx] = struct{}{}
		}
	}
	var out []KnownSource
	for i, s := range k.sources {
		if _, ok := hit[i]; ok {
			out = append(out, s)
		}
	}
	return out
}
