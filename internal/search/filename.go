package search

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

var keywordSeparators = regexp.MustCompile(`[\s_-]+`)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "for": {},
	"from": {}, "has": {}, "he": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"that": {}, "the": {}, "to": {}, "was": {}, "will": {}, "with": {},
}

// FilenameMatcher scores commands by how many query keywords appear in their names.
type FilenameMatcher struct {
	logger *slog.Logger
}

// NewFilenameMatcher creates a tier 1 matcher.
func NewFilenameMatcher(logger *slog.Logger) *FilenameMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilenameMatcher{logger: logger}
}

// Search returns the commands whose names contain at least one query keyword,
// best first.
func (m *FilenameMatcher) Search(query string, docs []domain.CommandMetadata) []domain.SearchResult {
	keywords := ExtractKeywords(query)
	if len(keywords) == 0 {
		m.logger.Debug("No keywords extracted from query", "query", query)
		return nil
	}

	var results []domain.SearchResult
	for _, doc := range docs {
		matched := matchedKeywords(keywords, doc.Name)
		score := filenameScore(len(matched), len(keywords))
		if score == 0 {
			continue
		}
		results = append(results, domain.SearchResult{
			Command:        doc,
			RelevanceScore: score,
			MatchTier:      domain.TierFilename,
			MatchReason:    filenameReason(matched, len(keywords)),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})

	m.logger.Info("Tier 1 (filename) search completed", "query", query, "keywords", len(keywords), "results", len(results))
	return results
}

// ExtractKeywords lowercases the query, splits it on whitespace, underscores
// and hyphens, and drops stop words.
func ExtractKeywords(query string) []string {
	var keywords []string
	for _, word := range keywordSeparators.Split(strings.ToLower(query), -1) {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}

func matchedKeywords(keywords []string, name string) []string {
	lowerName := strings.ToLower(name)
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(lowerName, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func filenameScore(matched, total int) int {
	if total == 0 {
		return 0
	}
	score := matched * 100 / total
	if matched == total && total > 1 {
		score = min(100, score+10)
	}
	return score
}

func filenameReason(matched []string, total int) string {
	switch {
	case len(matched) == total:
		return "Filename matches all keywords: " + strings.Join(matched, ", ")
	case len(matched) > 0:
		return "Filename matches: " + strings.Join(matched, ", ")
	default:
		return "No filename match"
	}
}
