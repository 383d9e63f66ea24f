package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

// MaxBatchSize is the maximum number of documents per batch.
const MaxBatchSize = 100

// headingsBoost ranks matches in headings above matches in body text.
const headingsBoost = 5.0

// ErrNotReady is returned by Search before the first successful Refresh.
var ErrNotReady = errors.New("content index is not ready")

// Source provides the commands to index. *commands.Loader implements it.
type Source interface {
	ListAll(ctx context.Context) ([]domain.CommandMetadata, error)
	GetCommand(ctx context.Context, name string) (*domain.Command, error)
}

// RefreshStats summarizes one Refresh.
type RefreshStats struct {
	Indexed int
	Removed int
	Total   int
}

// Hit is one full-text match.
type Hit struct {
	Name      string
	Path      string
	Score     float64
	Fragments []string
}

// Results holds the hits of a search and the total number of matches.
type Results struct {
	Total uint64
	Hits  []Hit
}

// Service owns the in-memory index and the snapshot it was built from.
type Service struct {
	index bleve.Index

	refreshMu sync.Mutex
	mu        sync.RWMutex
	snapshot  Snapshot
	ready     bool
}

// NewService creates an empty in-memory index.
func NewService() (*Service, error) {
	idx, err := bleve.NewMemOnly(CreateIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create content index: %w", err)
	}
	return &Service{index: idx, snapshot: Snapshot{}}, nil
}

// Refresh brings the index in line with the commands src lists. Only
// commands whose size or modification time changed are re-read.
func (s *Service) Refresh(ctx context.Context, src Source) (stats RefreshStats, err error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	cmds, err := src.ListAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list commands: %w", err)
	}

	current := NewSnapshot(cmds)
	s.mu.RLock()
	changed, removed := s.snapshot.Diff(current)
	s.mu.RUnlock()

	batch := s.index.NewBatch()
	batchSize := 0
	flush := func() error {
		if batchSize == 0 {
			return nil
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("batch index failed: %w", err)
		}
		batch = s.index.NewBatch()
		batchSize = 0
		return nil
	}

	for _, name := range changed {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		cmd, err := src.GetCommand(ctx, name)
		if err != nil {
			slog.Warn("Failed to load command for indexing", "name", name, "error", err)
			// Retried on the next refresh
			delete(current, name)
			continue
		}
		if err := batch.Index(name, document(cmd)); err != nil {
			slog.Warn("Failed to index command", "name", name, "error", err)
			delete(current, name)
			continue
		}
		batchSize++
		stats.Indexed++

		if batchSize >= MaxBatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	for _, name := range removed {
		batch.Delete(name)
		batchSize++
		stats.Removed++
	}

	if err := flush(); err != nil {
		return stats, err
	}

	s.mu.Lock()
	s.snapshot = current
	s.ready = true
	s.mu.Unlock()

	stats.Total = len(current)
	slog.Info("Content index refreshed", "indexed", stats.Indexed, "removed", stats.Removed, "total", stats.Total)
	return stats, nil
}

// Search runs a full-text query over command content and headings.
func (s *Service) Search(ctx context.Context, queryStr string, limit int) (*Results, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}

	contentQuery := bleve.NewMatchQuery(queryStr)
	contentQuery.SetField(domain.CommandFieldContent)

	headingsQuery := bleve.NewMatchQuery(queryStr)
	headingsQuery.SetField(domain.CommandFieldHeadings)
	headingsQuery.SetBoost(headingsBoost)

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(contentQuery, headingsQuery))
	req.Size = limit
	req.Fields = []string{domain.CommandFieldName, domain.CommandFieldPath}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField(domain.CommandFieldContent)
	req.Highlight.AddField(domain.CommandFieldHeadings)

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("content search failed: %w", err)
	}

	out := &Results{Total: res.Total, Hits: make([]Hit, 0, len(res.Hits))}
	for _, match := range res.Hits {
		hit := Hit{Name: match.ID, Score: match.Score}
		if val, ok := match.Fields[domain.CommandFieldName].(string); ok {
			hit.Name = val
		}
		if val, ok := match.Fields[domain.CommandFieldPath].(string); ok {
			hit.Path = val
		}
		hit.Fragments = append(hit.Fragments, match.Fragments[domain.CommandFieldHeadings]...)
		hit.Fragments = append(hit.Fragments, match.Fragments[domain.CommandFieldContent]...)
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

// Ready reports whether the index has been built at least once.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// DocCount returns the number of indexed commands.
func (s *Service) DocCount() (uint64, error) {
	return s.index.DocCount()
}

// Close waits for a running refresh and releases the index.
func (s *Service) Close() error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.index.Close()
}
