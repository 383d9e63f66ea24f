package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/sha1n/mcp-acmt-server/internal/commands"
	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

func writeCommand(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService()
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close index: %v", err)
		}
	})
	return s
}

func hitNames(res *Results) []string {
	names := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		names[i] = h.Name
	}
	return names
}

func TestService_SearchBeforeRefresh(t *testing.T) {
	s := newTestService(t)

	if s.Ready() {
		t.Error("New service should not be ready")
	}
	if _, err := s.Search(context.Background(), "anything", 10); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
}

func TestService_RefreshAndSearch(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "deploy_service", "# Deploy\n\nRoll out the service with kubectl apply.\n\n## Rollback\n\nUndo the rollout.\n")
	writeCommand(t, dir, "analyze_zoom_log", "# Analyze\n\nParse the zoom log and look for a rollback marker.\n")
	writeCommand(t, dir, "cleanup", "# Cleanup\n\nRemove temporary files.\n")

	s := newTestService(t)
	loader := commands.NewLoader(dir, commands.Options{})

	stats, err := s.Refresh(context.Background(), loader)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if stats.Indexed != 3 || stats.Removed != 0 || stats.Total != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if !s.Ready() {
		t.Error("Service should be ready after refresh")
	}
	if n, err := s.DocCount(); err != nil || n != 3 {
		t.Errorf("DocCount = %d, %v", n, err)
	}

	res, err := s.Search(context.Background(), "kubectl", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got := hitNames(res); !slices.Equal(got, []string{"deploy_service"}) {
		t.Fatalf("Expected deploy_service, got %v", got)
	}
	hit := res.Hits[0]
	if hit.Path != filepath.Join(dir, "deploy_service.md") {
		t.Errorf("Unexpected path %q", hit.Path)
	}
	if len(hit.Fragments) == 0 {
		t.Error("Expected highlighted fragments")
	}

	res, err = s.Search(context.Background(), "rollback", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got := hitNames(res); len(got) != 2 || got[0] != "deploy_service" {
		t.Errorf("Expected heading match to rank first, got %v", got)
	}
	if res.Total != 2 {
		t.Errorf("Total = %d, want 2", res.Total)
	}

	res, err = s.Search(context.Background(), "nonexistentterm", 10)
	if err != nil || res.Total != 0 || len(res.Hits) != 0 {
		t.Errorf("Expected no hits, got %+v, %v", res, err)
	}
}

func TestService_SearchLimit(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d"} {
		writeCommand(t, dir, name, "shared keyword in "+name)
	}
	s := newTestService(t)
	if _, err := s.Refresh(context.Background(), commands.NewLoader(dir, commands.Options{})); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	res, err := s.Search(context.Background(), "keyword", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Hits) != 2 || res.Total != 4 {
		t.Errorf("Expected 2 of 4 hits, got %d of %d", len(res.Hits), res.Total)
	}
}

func TestService_RefreshIncremental(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "keep", "unchanged body")
	writeCommand(t, dir, "edit", "original body")
	writeCommand(t, dir, "drop", "doomed body")

	s := newTestService(t)
	loader := commands.NewLoader(dir, commands.Options{})
	if _, err := s.Refresh(context.Background(), loader); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	writeCommand(t, dir, "edit", "replacement body with a longer text")
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(filepath.Join(dir, "edit.md"), later, later); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "drop.md")); err != nil {
		t.Fatal(err)
	}
	writeCommand(t, dir, "added", "fresh body")

	stats, err := s.Refresh(context.Background(), loader)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if stats.Indexed != 2 || stats.Removed != 1 || stats.Total != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if n, _ := s.DocCount(); n != 3 {
		t.Errorf("DocCount = %d, want 3", n)
	}

	res, _ := s.Search(context.Background(), "replacement", 10)
	if got := hitNames(res); !slices.Equal(got, []string{"edit"}) {
		t.Errorf("Expected edited content to be searchable, got %v", got)
	}
	res, _ = s.Search(context.Background(), "doomed", 10)
	if res.Total != 0 {
		t.Errorf("Expected removed command to be gone, got %v", hitNames(res))
	}

	stats, err = s.Refresh(context.Background(), loader)
	if err != nil || stats.Indexed != 0 || stats.Removed != 0 {
		t.Errorf("Expected no-op refresh, got %+v, %v", stats, err)
	}
}

type failingSource struct {
	cmds []domain.CommandMetadata
	err  error
}

func (f *failingSource) ListAll(context.Context) ([]domain.CommandMetadata, error) {
	return f.cmds, f.err
}

func (f *failingSource) GetCommand(_ context.Context, name string) (*domain.Command, error) {
	return nil, &domain.CommandNotFoundError{Name: name}
}

func TestService_RefreshErrors(t *testing.T) {
	s := newTestService(t)

	if _, err := s.Refresh(context.Background(), &failingSource{err: errors.New("boom")}); err == nil {
		t.Error("Expected list error")
	}
	if s.Ready() {
		t.Error("Failed refresh should not mark the service ready")
	}

	src := &failingSource{cmds: []domain.CommandMetadata{{Name: "ghost", Size: 1}}}
	stats, err := s.Refresh(context.Background(), src)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if stats.Indexed != 0 || stats.Total != 0 {
		t.Errorf("Unloadable command should be skipped, got %+v", stats)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Refresh(ctx, src); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
