package reports

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

const (
	reportExt = ".md"

	// legacyDirSuffix marks report directories from an older layout; global scans skip them.
	legacyDirSuffix = "-reports"

	excerptContext = 100
)

var (
	compactDatePattern   = regexp.MustCompile(`(\d{8})`)
	separatedDatePattern = regexp.MustCompile(`(\d{4})[-_](\d{2})[-_](\d{2})`)
)

// Finder discovers and searches analysis reports stored as
// <reports dir>/<command name>/*.md.
type Finder struct {
	dir string
}

// NewFinder creates a finder rooted at the reports directory.
func NewFinder(dir string) *Finder {
	return &Finder{dir: dir}
}

// Dir returns the reports root directory.
func (f *Finder) Dir() string {
	return f.dir
}

// Search returns every report whose content contains query, case-insensitively.
// An empty commandFilter scans all command directories. Results are ordered by
// match count, then newest first, with dated reports ahead of undated ones.
// Unreadable files are skipped; the scan stops early when ctx is done.
func (f *Finder) Search(ctx context.Context, query, commandFilter string) ([]domain.ReportMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	var dirs []string
	if commandFilter != "" {
		dir, ok := f.commandDir(commandFilter)
		if !ok {
			slog.Warn("Report directory not found for command", "command", commandFilter)
			return nil, nil
		}
		dirs = []string{dir}
	} else {
		dirs = f.allCommandDirs()
	}

	lowerQuery := strings.ToLower(query)
	var matches []domain.ReportMatch
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			slog.Warn("Failed to read report directory", "path", dir, "error", err)
			continue
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !isReportFile(entry) {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			match, ok, err := searchFile(path, lowerQuery)
			if err != nil {
				slog.Warn("Failed to search report file", "path", path, "error", err)
				continue
			}
			if ok {
				match.CommandName = filepath.Base(dir)
				matches = append(matches, match)
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].MatchCount != matches[j].MatchCount {
			return matches[i].MatchCount > matches[j].MatchCount
		}
		return newerFirst(matches[i].Date, matches[j].Date)
	})

	slog.Info("Report search completed", "query", query, "command_filter", commandFilter, "matches", len(matches))
	return matches, nil
}

func searchFile(path, lowerQuery string) (domain.ReportMatch, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ReportMatch{}, false, err
	}

	content := string(data)
	lowerContent := strings.ToLower(content)
	if !strings.Contains(lowerContent, lowerQuery) {
		return domain.ReportMatch{}, false, nil
	}

	name := filepath.Base(path)
	return domain.ReportMatch{
		ReportMetadata: domain.ReportMetadata{
			Name: name,
			Path: path,
			Date: ParseReportDate(name),
			Size: int64(len(data)),
		},
		Excerpt:    excerpt(content, lowerContent, lowerQuery, excerptContext),
		MatchCount: strings.Count(lowerContent, lowerQuery),
	}, true, nil
}

// ListForCommand returns the metadata of every report of a command, newest first.
// A command without a report directory has no reports.
func (f *Finder) ListForCommand(ctx context.Context, command string) ([]domain.ReportMetadata, error) {
	dir, ok := f.commandDir(command)
	if !ok {
		slog.Debug("No reports directory for command", "command", command)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &domain.FileSystemError{Op: "list reports", Path: dir, Err: err}
	}

	var reports []domain.ReportMetadata
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isReportFile(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			slog.Warn("Failed to load report metadata", "name", entry.Name(), "error", err)
			continue
		}
		reports = append(reports, domain.ReportMetadata{
			Name:        entry.Name(),
			CommandName: command,
			Path:        filepath.Join(dir, entry.Name()),
			Date:        ParseReportDate(entry.Name()),
			Size:        info.Size(),
		})
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return newerFirst(reports[i].Date, reports[j].Date)
	})

	slog.Debug("Listed reports for command", "command", command, "count", len(reports))
	return reports, nil
}

// Get loads a single report.
func (f *Finder) Get(ctx context.Context, command, reportName string) (*domain.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(f.dir, command, reportName)
	if !within(f.dir, path) {
		return nil, &domain.InvalidInputError{Message: "Invalid report path: path traversal detected"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.ReportNotFoundError{CommandName: command, ReportName: reportName, ExpectedPath: path}
		}
		return nil, &domain.FileSystemError{Op: "read report", Path: path, Err: err}
	}

	return &domain.Report{
		ReportMetadata: domain.ReportMetadata{
			Name:        reportName,
			CommandName: command,
			Path:        path,
			Date:        ParseReportDate(reportName),
			Size:        int64(len(data)),
		},
		Content: string(data),
	}, nil
}

func (f *Finder) commandDir(command string) (string, bool) {
	dir := filepath.Join(f.dir, command)
	if !within(f.dir, dir) || dir == filepath.Clean(f.dir) {
		return "", false
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}

func (f *Finder) allCommandDirs() []string {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		slog.Warn("Failed to list report directories", "path", f.dir, "error", err)
		return nil
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasSuffix(entry.Name(), legacyDirSuffix) {
			dirs = append(dirs, filepath.Join(f.dir, entry.Name()))
		}
	}
	return dirs
}

func isReportFile(entry fs.DirEntry) bool {
	return !entry.IsDir() && strings.HasSuffix(entry.Name(), reportExt)
}

// ParseReportDate extracts a calendar date from a report file name, trying
// YYYYMMDD first and then YYYY-MM-DD or YYYY_MM_DD. The date is midnight
// local time. It returns nil when no valid date is present.
func ParseReportDate(filename string) *time.Time {
	if m := compactDatePattern.FindStringSubmatch(filename); m != nil {
		if d := calendarDate(m[1][0:4], m[1][4:6], m[1][6:8]); d != nil {
			return d
		}
	}
	if m := separatedDatePattern.FindStringSubmatch(filename); m != nil {
		return calendarDate(m[1], m[2], m[3])
	}
	return nil
}

func calendarDate(year, month, day string) *time.Time {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)

	date := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.Local)
	// time.Date normalizes out-of-range values; reject anything it had to adjust.
	if date.Year() != y || int(date.Month()) != m || date.Day() != d {
		return nil
	}
	return &date
}

// newerFirst orders dated reports newest first, ahead of undated ones.
func newerFirst(a, b *time.Time) bool {
	switch {
	case a != nil && b != nil:
		return a.After(*b)
	case a != nil:
		return true
	default:
		return false
	}
}

// excerpt returns up to radius runes either side of the first match, with
// "..." marking truncated ends.
func excerpt(content, lowerContent, lowerQuery string, radius int) string {
	idx := strings.Index(lowerContent, lowerQuery)
	if idx < 0 {
		return ""
	}

	runes := []rune(content)
	// strings.ToLower maps rune for rune, so rune offsets agree between the two strings.
	start := utf8.RuneCountInString(lowerContent[:idx])
	end := start + utf8.RuneCountInString(lowerQuery)

	from := max(0, start-radius)
	to := min(len(runes), end+radius)

	out := string(runes[from:to])
	if from > 0 {
		out = "..." + out
	}
	if to < len(runes) {
		out += "..."
	}
	return strings.TrimSpace(out)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
