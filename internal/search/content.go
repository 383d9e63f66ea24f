package search

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

const (
	// MinContentScore drops fuzzy matches that are mostly noise.
	MinContentScore = 30

	excerptContext   = 50
	excerptMaxLength = 150
)

// contentKey is one weighted field of a command considered by tier 2.
type contentKey struct {
	weight float64
	value  func(domain.CommandMetadata) string
}

var contentKeys = []contentKey{
	{weight: 0.4, value: func(c domain.CommandMetadata) string { return c.Name }},
	{weight: 0.3, value: func(c domain.CommandMetadata) string { return c.Description }},
	{weight: 0.3, value: func(c domain.CommandMetadata) string { return c.Name + " " + c.Description }},
}

// ContentMatcher fuzzy-matches the query against command names and descriptions.
type ContentMatcher struct {
	logger *slog.Logger
}

// NewContentMatcher creates a tier 2 matcher.
func NewContentMatcher(logger *slog.Logger) *ContentMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentMatcher{logger: logger}
}

type scoredCommand struct {
	result domain.SearchResult
	score  float64
}

// Search returns commands whose name or description approximately contains
// the query, best first.
func (m *ContentMatcher) Search(query string, docs []domain.CommandMetadata) []domain.SearchResult {
	pattern := newFuzzyPattern(query)

	var scored []scoredCommand
	for _, doc := range docs {
		score, ok := documentScore(pattern, doc)
		if !ok {
			continue
		}
		scored = append(scored, scoredCommand{
			score: score,
			result: domain.SearchResult{
				Command:        doc,
				RelevanceScore: relevanceFromFuzzy(score),
				MatchTier:      domain.TierContent,
				MatchReason:    contentReason(query, doc),
				Excerpt:        extractExcerpt(doc.Description, query),
			},
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score < scored[j].score
	})

	results := make([]domain.SearchResult, 0, len(scored))
	for _, s := range scored {
		if s.result.RelevanceScore >= MinContentScore {
			results = append(results, s.result)
		}
	}

	m.logger.Info("Tier 2 (content) search completed",
		"query", query,
		"results", len(results),
		"filtered", len(scored)-len(results))
	return results
}

// documentScore combines the per-key scores of a command; 0 is perfect, 1 is worst.
func documentScore(pattern *fuzzyPattern, doc domain.CommandMetadata) (float64, bool) {
	total := 1.0
	matched := false
	for _, key := range contentKeys {
		value := key.value(doc)
		if strings.TrimSpace(value) == "" {
			continue
		}
		score, ok := pattern.match(value)
		if !ok {
			continue
		}
		matched = true
		if score == 0 {
			score = epsilon
		}
		total *= math.Pow(score, key.weight*fieldNorm(value))
	}
	return total, matched
}

func relevanceFromFuzzy(score float64) int {
	r := int(math.Floor((1 - score) * 100))
	return max(0, min(100, r))
}

func contentReason(query string, doc domain.CommandMetadata) string {
	lowerQuery := strings.ToLower(query)
	switch {
	case strings.Contains(strings.ToLower(doc.Name), lowerQuery):
		return fmt.Sprintf("Name contains: %q", query)
	case strings.Contains(strings.ToLower(doc.Description), lowerQuery):
		return fmt.Sprintf("Description mentions: %q", query)
	default:
		return fmt.Sprintf("Content semantically matches: %q", query)
	}
}

// extractExcerpt returns a window around the first case-insensitive
// occurrence of query in text, or the beginning of text when there is none.
func extractExcerpt(text, query string) string {
	runes := []rune(text)
	idx := indexFold(runes, query)
	if idx < 0 {
		if len(runes) > excerptMaxLength {
			return string(runes[:excerptMaxLength]) + "..."
		}
		return text
	}

	start := max(0, idx-excerptContext)
	end := min(len(runes), idx+utf8.RuneCountInString(query)+excerptContext)
	excerpt := string(runes[start:end])
	if start > 0 {
		excerpt = "..." + excerpt
	}
	if end < len(runes) {
		excerpt += "..."
	}
	return excerpt
}

// indexFold returns the rune offset of the first case-insensitive occurrence
// of query in text, or -1.
func indexFold(text []rune, query string) int {
	lower := strings.ToLower(string(text))
	i := strings.Index(lower, strings.ToLower(query))
	if i < 0 {
		return -1
	}
	idx := utf8.RuneCountInString(lower[:i])
	if idx > len(text) {
		return -1
	}
	return idx
}
