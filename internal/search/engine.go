package search

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sha1n/mcp-acmt-server/internal/cache"
	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

const (
	// DefaultTimeout bounds a search that misses the cache.
	DefaultTimeout = 5 * time.Second

	// DefaultCacheTTL is the lifetime of cached search results.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheSize is the number of cached queries.
	DefaultCacheSize = 100

	// DefaultTier1Sufficient is the tier 1 result count that skips tiers 2 and 3.
	DefaultTier1Sufficient = 3

	// DefaultTier12Sufficient is the merged tier 1+2 result count that skips tier 3.
	DefaultTier12Sufficient = 2

	MinResults = 1
	MaxResults = 100
)

// Matcher is a synchronous search tier.
type Matcher interface {
	Search(query string, docs []domain.CommandMetadata) []domain.SearchResult
}

// ContextMatcher is a search tier that performs I/O and honors cancellation.
type ContextMatcher interface {
	Search(ctx context.Context, query string, docs []domain.CommandMetadata) []domain.SearchResult
}

// Options configures an Engine.
type Options struct {
	Timeout          time.Duration
	CacheEnabled     bool
	CacheTTL         time.Duration
	CacheSize        int
	Tier1Sufficient  int
	Tier12Sufficient int
	Logger           *slog.Logger
}

// Tiers holds the three search strategies, cheapest first.
type Tiers struct {
	Filename Matcher
	Content  Matcher
	Reports  ContextMatcher
}

// DefaultTiers wires the built-in matchers over a report finder.
func DefaultTiers(finder ReportSearcher, logger *slog.Logger) Tiers {
	return Tiers{
		Filename: NewFilenameMatcher(logger),
		Content:  NewContentMatcher(logger),
		Reports:  NewReportMatcher(finder, nil, logger),
	}
}

// Engine runs the tiers in order, stopping as soon as earlier tiers found
// enough, and caches the merged results.
type Engine struct {
	tiers  Tiers
	opts   Options
	cache  *cache.Cache[[]domain.SearchResult]
	logger *slog.Logger
}

// NewEngine creates a search engine. Zero option values take the package defaults.
func NewEngine(tiers Tiers, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Tier1Sufficient <= 0 {
		opts.Tier1Sufficient = DefaultTier1Sufficient
	}
	if opts.Tier12Sufficient <= 0 {
		opts.Tier12Sufficient = DefaultTier12Sufficient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := &Engine{
		tiers:  tiers,
		opts:   opts,
		logger: opts.Logger,
	}
	if opts.CacheEnabled {
		e.cache = cache.New[[]domain.SearchResult](cache.Options{
			TTL:     opts.CacheTTL,
			MaxSize: opts.CacheSize,
		})
	}
	return e
}

// Search returns at most maxResults commands ranked for query.
// It fails only when the search does not finish within the configured
// timeout (*domain.SearchTimeoutError) or ctx is cancelled.
func (e *Engine) Search(ctx context.Context, query string, docs []domain.CommandMetadata, maxResults int) ([]domain.SearchResult, error) {
	maxResults = ClampMaxResults(maxResults)
	key := CacheKey(query, len(docs))

	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			e.logger.Debug("Search cache hit", "query", query)
			return truncate(cached, maxResults), nil
		}
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	done := make(chan []domain.SearchResult, 1)
	go func() {
		done <- e.runTiers(runCtx, query, docs, maxResults)
	}()

	var results []domain.SearchResult
	select {
	case results = <-done:
	case <-runCtx.Done():
	}

	// A tier interrupted by the deadline may have returned partial results.
	if err := runCtx.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Warn("Search timed out", "query", query, "timeout", e.opts.Timeout)
		return nil, &domain.SearchTimeoutError{Timeout: e.opts.Timeout}
	}

	if e.cache != nil && len(results) > 0 {
		e.cache.Set(key, results)
	}

	e.logger.Info("Search completed",
		"query", query,
		"results", len(results),
		"returned", min(len(results), maxResults),
		"duration", time.Since(start))
	return truncate(results, maxResults), nil
}

func (e *Engine) runTiers(ctx context.Context, query string, docs []domain.CommandMetadata, maxResults int) []domain.SearchResult {
	var tier1 []domain.SearchResult
	if e.tiers.Filename != nil {
		tier1 = e.tiers.Filename.Search(query, docs)
	}
	if len(tier1) >= maxResults || len(tier1) >= e.opts.Tier1Sufficient {
		return Merge(tier1)
	}

	var tier2 []domain.SearchResult
	if e.tiers.Content != nil {
		tier2 = e.tiers.Content.Search(query, docs)
	}
	merged := Merge(tier1, tier2)
	if len(merged) >= e.opts.Tier12Sufficient {
		return merged
	}

	if e.tiers.Reports == nil || ctx.Err() != nil {
		return merged
	}
	return Merge(merged, e.tiers.Reports.Search(ctx, query, docs))
}

// ClearCache drops every cached search.
func (e *Engine) ClearCache() {
	if e.cache == nil {
		return
	}
	e.cache.Clear()
	e.logger.Debug("Search cache cleared")
}

// CacheStats reports the search cache counters; ok is false when caching is disabled.
func (e *Engine) CacheStats() (stats cache.Stats, ok bool) {
	if e.cache == nil {
		return cache.Stats{}, false
	}
	return e.cache.Stats(), true
}

// CacheKey identifies a query over a document set of the given size.
func CacheKey(query string, docCount int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d", query, docCount)))
	return "search:" + hex.EncodeToString(sum[:])
}

// ClampMaxResults bounds n to [MinResults, MaxResults].
func ClampMaxResults(n int) int {
	return max(MinResults, min(MaxResults, n))
}

// Merge keeps one result per command, preferring the higher score and then
// the lower tier, and orders the survivors by score, tier and name.
func Merge(sets ...[]domain.SearchResult) []domain.SearchResult {
	best := make(map[string]domain.SearchResult)
	for _, set := range sets {
		for _, r := range set {
			existing, ok := best[r.Command.Name]
			if !ok || outranks(r, existing) {
				best[r.Command.Name] = r
			}
		}
	}

	merged := make([]domain.SearchResult, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if a.MatchTier != b.MatchTier {
			return a.MatchTier < b.MatchTier
		}
		return a.Command.Name < b.Command.Name
	})
	return merged
}

func outranks(a, b domain.SearchResult) bool {
	if a.RelevanceScore != b.RelevanceScore {
		return a.RelevanceScore > b.RelevanceScore
	}
	return a.MatchTier < b.MatchTier
}

// truncate returns a copy of at most n results so callers cannot mutate cached slices.
func truncate(results []domain.SearchResult, n int) []domain.SearchResult {
	n = min(n, len(results))
	out := make([]domain.SearchResult, n)
	copy(out, results[:n])
	return out
}
