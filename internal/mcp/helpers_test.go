package mcp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/mcp-acmt-server/internal/commands"
	"github.com/sha1n/mcp-acmt-server/internal/reports"
	"github.com/sha1n/mcp-acmt-server/internal/search"
)

type fixture struct {
	commandsDir string
	reportsDir  string
	localDir    string

	loader   *commands.Loader
	engine   *search.Engine
	finder   *reports.Finder
	linker   *reports.Linker
	uploader *reports.Uploader
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		commandsDir: filepath.Join(root, "Commands"),
		reportsDir:  filepath.Join(root, "Reports"),
		localDir:    filepath.Join(root, "local-reports"),
	}

	writeFile(t, filepath.Join(f.commandsDir, "analyze_zoom_log.md"),
		"---\ndescription: Analyzes zoom speech SDK logs\n---\n# Analyze Zoom Log\n\n## Rollback\n\nCollect the client log first.\n")
	writeFile(t, filepath.Join(f.commandsDir, "deploy_service.md"),
		"# Deploy Service\n\nDeploys a service to the cluster.\n")
	writeFile(t, filepath.Join(f.reportsDir, "analyze_zoom_log", "analyze_zoom_log_20240301.md"),
		"# Report\n\nFound a timeout error in the zoom session.\n")
	writeFile(t, filepath.Join(f.reportsDir, "analyze_zoom_log", "notes.md"),
		"Undated notes without the keyword.\n")

	f.loader = commands.NewLoader(f.commandsDir, commands.Options{CacheEnabled: true, CacheTTL: time.Hour})
	f.finder = reports.NewFinder(f.reportsDir)
	f.linker = reports.NewLinker(f.reportsDir, "https://reports.example.com/r/")
	f.engine = search.NewEngine(search.DefaultTiers(f.finder, nil), search.Options{CacheEnabled: true})
	f.uploader = reports.NewUploader(f.reportsDir, reports.UploadOptions{
		Enabled:        true,
		AutoVersioning: true,
		LocalDir:       f.localDir,
		Now:            func() time.Time { return time.Date(2024, 1, 15, 10, 30, 0, 0, time.Local) },
	}, f.linker, nil)
	return f
}

func (f *fixture) config() ServerConfig {
	return ServerConfig{
		Name:       "test-server",
		Version:    "1.0.0",
		MaxResults: 10,
		Loader:     f.loader,
		Engine:     f.engine,
		Finder:     f.finder,
		Linker:     f.linker,
		Uploader:   f.uploader,
	}
}

// extractTextContent extracts text from MCP result
func extractTextContent(result *mcp.CallToolResult) string {
	var text string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text
}

func decodeResult[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	var out T
	if result.IsError {
		t.Fatalf("Expected success, got error: %s", extractTextContent(result))
	}
	if err := json.Unmarshal([]byte(extractTextContent(result)), &out); err != nil {
		t.Fatalf("Failed to decode result %q: %v", extractTextContent(result), err)
	}
	return out
}

func decodeError(t *testing.T, result *mcp.CallToolResult) ErrorBody {
	t.Helper()
	if !result.IsError {
		t.Fatalf("Expected error result, got: %s", extractTextContent(result))
	}
	var env errorEnvelope
	if err := json.Unmarshal([]byte(extractTextContent(result)), &env); err != nil {
		t.Fatalf("Failed to decode error %q: %v", extractTextContent(result), err)
	}
	return env.Error
}

func intPtr(n int) *int { return &n }
