package reports

import (
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
)

// Linker turns report paths into links clients can open.
type Linker struct {
	reportsDir string
	baseURL    string
}

// NewLinker creates a linker. With an empty baseURL every link is a file:// URL.
func NewLinker(reportsDir, baseURL string) *Linker {
	return &Linker{reportsDir: reportsDir, baseURL: baseURL}
}

// Link returns baseURL joined with the report's path relative to the reports
// directory, each segment escaped. Paths outside the reports directory, or a
// linker without a base URL, produce file://<path>.
func (l *Linker) Link(path string) string {
	if l.baseURL == "" {
		return fileURL(path)
	}

	rel, err := filepath.Rel(l.reportsDir, path)
	if err != nil || !within(l.reportsDir, path) {
		slog.Warn("Cannot link report outside the reports directory", "path", path)
		return fileURL(path)
	}

	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	link := strings.TrimSuffix(l.baseURL, "/") + "/" + strings.Join(segments, "/")
	slog.Debug("Generated report link", "path", path, "link", link)
	return link
}

func fileURL(path string) string {
	return "file://" + path
}
