package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

const day = 24 * time.Hour

// ReportSearcher finds reports whose content contains a query.
// An empty commandFilter searches the reports of every command.
type ReportSearcher interface {
	Search(ctx context.Context, query, commandFilter string) ([]domain.ReportMatch, error)
}

// ReportMatcher ranks commands by how often, and how recently, their
// analysis reports mention the query.
type ReportMatcher struct {
	finder ReportSearcher
	now    func() time.Time
	logger *slog.Logger
}

// NewReportMatcher creates a tier 3 matcher. A nil now uses time.Now.
func NewReportMatcher(finder ReportSearcher, now func() time.Time, logger *slog.Logger) *ReportMatcher {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportMatcher{finder: finder, now: now, logger: logger}
}

type commandReports struct {
	score      int
	latestDate *time.Time
	reports    int
}

// Search never fails: finder errors and cancellation yield no results.
func (m *ReportMatcher) Search(ctx context.Context, query string, docs []domain.CommandMetadata) []domain.SearchResult {
	if m.finder == nil {
		return nil
	}

	matches, err := m.finder.Search(ctx, query, "")
	if err != nil {
		m.logger.Error("Tier 3 (reports) search failed", "query", query, "error", err)
		return nil
	}
	if len(matches) == 0 {
		m.logger.Debug("Tier 3 (reports): no matching reports", "query", query)
		return nil
	}

	now := m.now()
	byCommand := make(map[string]*commandReports)
	for _, match := range matches {
		agg, ok := byCommand[match.CommandName]
		if !ok {
			agg = &commandReports{}
			byCommand[match.CommandName] = agg
		}
		agg.score += ReportScore(match, now)
		agg.reports++
		if match.Date != nil && (agg.latestDate == nil || match.Date.After(*agg.latestDate)) {
			agg.latestDate = match.Date
		}
	}

	var results []domain.SearchResult
	for _, doc := range docs {
		agg, ok := byCommand[doc.Name]
		if !ok {
			continue
		}
		results = append(results, domain.SearchResult{
			Command:        doc,
			RelevanceScore: min(100, agg.score),
			MatchTier:      domain.TierReports,
			MatchReason:    reportReason(agg.reports, agg.latestDate, now),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})

	m.logger.Info("Tier 3 (reports) search completed",
		"query", query,
		"reports", len(matches),
		"results", len(results))
	return results
}

// ReportScore is ten points per occurrence plus a bonus for reports
// dated within the last 30 (+20) or 90 (+10) days.
func ReportScore(match domain.ReportMatch, now time.Time) int {
	score := match.MatchCount * 10
	if match.Date == nil {
		return score
	}

	ageDays := now.Sub(*match.Date).Hours() / 24
	switch {
	case ageDays <= 30:
		score += 20
	case ageDays <= 90:
		score += 10
	}
	return score
}

func reportReason(count int, latest *time.Time, now time.Time) string {
	reason := fmt.Sprintf("Found in %d analysis report%s", count, plural(count))
	if latest == nil {
		return reason
	}

	daysAgo := int(math.Floor(float64(now.Sub(*latest)) / float64(day)))
	switch {
	case daysAgo == 0:
		reason += " (today)"
	case daysAgo == 1:
		reason += " (yesterday)"
	case daysAgo < 30:
		reason += fmt.Sprintf(" (%d days ago)", daysAgo)
	case daysAgo < 365:
		months := daysAgo / 30
		reason += fmt.Sprintf(" (%d month%s ago)", months, plural(months))
	default:
		years := daysAgo / 365
		reason += fmt.Sprintf(" (%d year%s ago)", years, plural(years))
	}
	return reason
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
