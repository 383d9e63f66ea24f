package reports

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

const (
	DefaultMaxSizeMB       = 10
	DefaultFilePermissions = os.FileMode(0o644)
	DefaultLocalDir        = "local-reports"

	maxReportNameLength = 100
	defaultReportName   = "报告"
	timestampLayout     = "20060102_150405"
)

var (
	commandNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	reportNamePattern  = regexp.MustCompile(`^[\p{L}\p{N}_\s-]+$`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
	unsafeNameChars    = regexp.MustCompile(`[^\p{L}\p{N}_-]`)
	versionSuffix      = regexp.MustCompile(`_v(\d+)\.md$`)
)

// UploadOptions configures an Uploader.
type UploadOptions struct {
	Enabled        bool
	MaxSizeMB      int
	AutoVersioning bool
	FileMode       os.FileMode

	// LocalDir receives reports the user chose not to upload.
	LocalDir string

	Now func() time.Time
}

// UploadRequest is a report submitted for storage.
type UploadRequest struct {
	CommandName string
	Content     string

	// ReportName is an optional human-readable name embedded in the file name.
	ReportName string

	// Owner is the email recorded by the remote sync.
	Owner string
}

// UploadResult describes a stored report.
type UploadResult struct {
	Path       string
	Name       string
	Link       string
	Version    int
	SyncStatus SyncStatus
	SyncError  string
}

// LocalResult describes a report saved to the local directory.
type LocalResult struct {
	Path string
	Name string
}

// Uploader validates and stores reports under <reports dir>/<command>/.
type Uploader struct {
	dir    string
	opts   UploadOptions
	linker *Linker
	syncer *Syncer
}

// NewUploader creates an uploader. linker and syncer may be nil.
func NewUploader(reportsDir string, opts UploadOptions, linker *Linker, syncer *Syncer) *Uploader {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = DefaultMaxSizeMB
	}
	if opts.FileMode == 0 {
		opts.FileMode = DefaultFilePermissions
	}
	if opts.LocalDir == "" {
		opts.LocalDir = DefaultLocalDir
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if linker == nil {
		linker = NewLinker(reportsDir, "")
	}
	return &Uploader{dir: reportsDir, opts: opts, linker: linker, syncer: syncer}
}

// Upload validates the request, writes the report atomically under a
// versioned file name and then syncs it to the remote service.
// Sync failures are reported in the result, not as errors.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if !u.opts.Enabled {
		return nil, &domain.UploadError{ErrCode: domain.CodeUploadDisabled, Message: "Report upload is disabled"}
	}
	if err := u.validate(req); err != nil {
		return nil, err
	}

	dir, err := u.prepareDir(req.CommandName)
	if err != nil {
		return nil, err
	}

	name := fileName(req.CommandName, req.ReportName, u.opts.Now(), "v1")
	path, err := u.store(ctx, dir, name, []byte(req.Content))
	if err != nil {
		return nil, err
	}

	result := &UploadResult{
		Path:       path,
		Name:       filepath.Base(path),
		Link:       u.linker.Link(path),
		Version:    extractVersion(filepath.Base(path)),
		SyncStatus: SyncSkipped,
	}
	slog.Info("Report uploaded", "command", req.CommandName, "path", path, "size", len(req.Content), "version", result.Version)

	if u.syncer != nil {
		sync := u.syncer.Sync(ctx, req.CommandName, result.Name, req.Owner)
		result.SyncStatus = sync.Status
		result.SyncError = sync.Error
	}
	return result, nil
}

// SaveLocal writes a report to <local dir>/<command>/ without versioning or sync.
func (u *Uploader) SaveLocal(ctx context.Context, command, content, reportName string) (*LocalResult, error) {
	if !commandNamePattern.MatchString(command) {
		return nil, invalidCommandName(command)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(u.opts.LocalDir, command)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, localSaveFailed(dir, err)
	}

	name := fileName(command, reportName, u.opts.Now(), "local")
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), u.opts.FileMode); err != nil {
		return nil, localSaveFailed(dir, err)
	}

	slog.Info("Report saved locally", "path", path, "size", len(content))
	return &LocalResult{Path: path, Name: name}, nil
}

func (u *Uploader) validate(req UploadRequest) error {
	if !commandNamePattern.MatchString(req.CommandName) {
		return invalidCommandName(req.CommandName)
	}

	sizeMB := float64(len(req.Content)) / (1024 * 1024)
	if sizeMB > float64(u.opts.MaxSizeMB) {
		return &domain.UploadError{
			ErrCode: domain.CodeSizeLimitExceeded,
			Message: fmt.Sprintf("Report size %.2fMB exceeds limit %dMB", sizeMB, u.opts.MaxSizeMB),
			Details: map[string]any{"size_mb": sizeMB, "limit_mb": u.opts.MaxSizeMB},
		}
	}

	if strings.TrimSpace(req.Content) == "" {
		return &domain.UploadError{ErrCode: domain.CodeEmptyContent, Message: "Report content cannot be empty"}
	}

	if name := strings.TrimSpace(req.ReportName); name != "" {
		if !reportNamePattern.MatchString(name) {
			return &domain.UploadError{
				ErrCode: domain.CodeInvalidReportName,
				Message: "Invalid report name: must contain only letters, numbers, underscores, hyphens, and spaces",
				Details: map[string]any{"report_name": req.ReportName},
			}
		}
		if n := utf8.RuneCountInString(name); n > maxReportNameLength {
			return &domain.UploadError{
				ErrCode: domain.CodeReportNameTooLong,
				Message: fmt.Sprintf("Report name too long: maximum %d characters", maxReportNameLength),
				Details: map[string]any{"report_name_length": n},
			}
		}
	}
	return nil
}

func (u *Uploader) prepareDir(command string) (string, error) {
	dir := filepath.Join(u.dir, command)
	if !within(u.dir, dir) || dir == filepath.Clean(u.dir) {
		return "", &domain.UploadError{
			ErrCode: domain.CodePathTraversal,
			Message: "Invalid directory path: path traversal detected",
			Details: map[string]any{"attempted_path": dir},
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &domain.UploadError{
			ErrCode: domain.CodeDirectoryPrep,
			Message: fmt.Sprintf("Failed to prepare report directory: %v", err),
			Details: map[string]any{"path": dir, "error": err.Error()},
		}
	}
	return dir, nil
}

// store writes content under the first free version of name while holding
// the command directory lock.
func (u *Uploader) store(ctx context.Context, dir, name string, content []byte) (string, error) {
	lock := newDirLock(dir)
	if err := lock.lock(ctx, DefaultLockTimeout); err != nil {
		return "", &domain.UploadError{
			ErrCode: domain.CodeFileWriteFailed,
			Message: fmt.Sprintf("Failed to lock report directory: %v", err),
			Details: map[string]any{"path": dir, "error": err.Error()},
		}
	}
	defer func() {
		if err := lock.unlock(); err != nil {
			slog.Warn("Failed to release report directory lock", "path", dir, "error", err)
		}
	}()

	path := u.resolveVersion(dir, name)
	if err := writeAtomic(path, content, u.opts.FileMode); err != nil {
		return "", &domain.UploadError{
			ErrCode: domain.CodeFileWriteFailed,
			Message: fmt.Sprintf("Failed to write report file: %v", err),
			Details: map[string]any{"path": path, "error": err.Error()},
		}
	}
	if err := os.Chmod(path, u.opts.FileMode); err != nil {
		slog.Warn("Failed to set report file permissions", "path", path, "mode", u.opts.FileMode, "error", err)
	}
	return path, nil
}

// resolveVersion returns the first free _vN variant of name when
// auto-versioning is on; otherwise name itself, overwriting any existing file.
func (u *Uploader) resolveVersion(dir, name string) string {
	path := filepath.Join(dir, name)
	if !u.opts.AutoVersioning {
		return path
	}

	version := 1
	for exists(path) {
		version++
		path = filepath.Join(dir, versionSuffix.ReplaceAllString(name, fmt.Sprintf("_v%d.md", version)))
	}
	if version > 1 {
		slog.Info("Version conflict resolved", "file", name, "version", version)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// writeAtomic writes data to a uniquely named temp file in the target
// directory and renames it into place.
func writeAtomic(path string, data []byte, mode os.FileMode) error {
	tempPath := filepath.Join(filepath.Dir(path), "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tempPath, data, mode); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// fileName builds <command>_<name>_<YYYYMMDD_HHMMSS>_<suffix>.md.
func fileName(command, reportName string, now time.Time, suffix string) string {
	name := sanitizeReportName(reportName)
	if name == "" {
		name = defaultReportName
	}
	return fmt.Sprintf("%s_%s_%s_%s.md", command, name, now.Format(timestampLayout), suffix)
}

func sanitizeReportName(name string) string {
	name = whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "_")
	return unsafeNameChars.ReplaceAllString(name, "")
}

func extractVersion(name string) int {
	m := versionSuffix.FindStringSubmatch(name)
	if m == nil {
		return 1
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 1
	}
	return v
}

func invalidCommandName(command string) error {
	return &domain.UploadError{
		ErrCode: domain.CodeInvalidCommandName,
		Message: "Invalid command name: must contain only alphanumeric characters, underscores, and hyphens",
		Details: map[string]any{"command_name": command},
	}
}

func localSaveFailed(dir string, err error) error {
	return &domain.UploadError{
		ErrCode: domain.CodeLocalSaveFailed,
		Message: fmt.Sprintf("Failed to save report locally: %v", err),
		Details: map[string]any{"path": dir, "error": err.Error()},
	}
}
