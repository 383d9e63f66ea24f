// Package commands loads command files from the commands directory.
package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sha1n/mcp-acmt-server/internal/cache"
	"github.com/sha1n/mcp-acmt-server/internal/domain"
	"github.com/sha1n/mcp-acmt-server/internal/validate"
)

const (
	DefaultMetadataCacheSize = 1000
	DefaultContentCacheSize  = 500
	DefaultConcurrency       = 8

	// NoDescription is used for command files without any prose.
	NoDescription = "No description available"

	commandExt           = ".md"
	listCacheKey         = "commands:list"
	previewBytes         = 500
	maxDescriptionLength = 200
	maxSuggestions       = 3
)

var (
	headingLine  = regexp.MustCompile(`(?m)^#.*$`)
	frontmatter  = regexp.MustCompile(`\A---\r?\n([\s\S]*?)\r?\n---[ \t]*(?:\r?\n|\z)`)
	markdownBody = goldmark.New()
)

// Options configures a Loader.
type Options struct {
	CacheEnabled bool
	CacheTTL     time.Duration

	// Concurrency bounds the number of files read in parallel by ListAll.
	Concurrency int
}

// Loader lists and reads command files, caching metadata and content.
type Loader struct {
	dir          string
	cacheEnabled bool
	concurrency  int

	list     *cache.Cache[[]domain.CommandMetadata]
	metadata *cache.Cache[domain.CommandMetadata]
	content  *cache.Cache[domain.Command]
}

// NewLoader creates a loader over the commands directory.
func NewLoader(dir string, opts Options) *Loader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Loader{
		dir:          dir,
		cacheEnabled: opts.CacheEnabled,
		concurrency:  opts.Concurrency,
		list:         cache.New[[]domain.CommandMetadata](cache.Options{TTL: opts.CacheTTL, MaxSize: 1}),
		metadata:     cache.New[domain.CommandMetadata](cache.Options{TTL: opts.CacheTTL, MaxSize: DefaultMetadataCacheSize}),
		content:      cache.New[domain.Command](cache.Options{TTL: opts.CacheTTL, MaxSize: DefaultContentCacheSize}),
	}
}

// Dir returns the commands directory.
func (l *Loader) Dir() string {
	return l.dir
}

// ListAll returns the metadata of every command file, sorted by name.
// Files that cannot be read are skipped.
func (l *Loader) ListAll(ctx context.Context) ([]domain.CommandMetadata, error) {
	if l.cacheEnabled {
		if cached, ok := l.list.Get(listCacheKey); ok {
			slog.Debug("Commands list cache hit")
			return slices.Clone(cached), nil
		}
	}

	names, err := l.commandNames()
	if err != nil {
		return nil, err
	}

	loaded := make([]*domain.CommandMetadata, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, name := range names {
		g.Go(func() error {
			md, err := l.GetMetadata(gctx, name)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("Failed to load command metadata", "name", name, "error", err)
				return nil
			}
			loaded[i] = &md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	commands := make([]domain.CommandMetadata, 0, len(loaded))
	for _, md := range loaded {
		if md != nil {
			commands = append(commands, *md)
		}
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })

	if l.cacheEnabled {
		l.list.Set(listCacheKey, slices.Clone(commands))
	}
	slog.Info("Loaded commands", "count", len(commands), "dir", l.dir)
	return commands, nil
}

// GetCommand loads a command with its full content. The name may carry the
// ".md" extension. A missing file yields a *domain.CommandNotFoundError with
// the closest existing names as suggestions.
func (l *Loader) GetCommand(ctx context.Context, name string) (*domain.Command, error) {
	name, path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}

	key := "command:content:" + name
	if l.cacheEnabled {
		if cached, ok := l.content.Get(key); ok {
			slog.Debug("Command content cache hit", "name", name)
			return &cached, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, l.readError(name, path, "read command", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, l.readError(name, path, "stat command", err)
	}

	command := domain.Command{
		CommandMetadata: domain.CommandMetadata{
			Name:         name,
			Path:         path,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			Description:  ExtractDescription(data),
		},
		Content: string(data),
	}
	if l.cacheEnabled {
		l.content.Set(key, command)
	}

	slog.Debug("Loaded command", "name", name, "size", info.Size())
	return &command, nil
}

// GetMetadata returns a command's metadata, deriving the description from
// the first bytes of the file only.
func (l *Loader) GetMetadata(ctx context.Context, name string) (domain.CommandMetadata, error) {
	name, path, err := l.resolve(name)
	if err != nil {
		return domain.CommandMetadata{}, err
	}

	key := "command:meta:" + name
	if l.cacheEnabled {
		if cached, ok := l.metadata.Get(key); ok {
			return cached, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.CommandMetadata{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.CommandMetadata{}, l.readError(name, path, "open command", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return domain.CommandMetadata{}, l.readError(name, path, "stat command", err)
	}

	preview := make([]byte, previewBytes)
	n, err := io.ReadFull(f, preview)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.CommandMetadata{}, l.readError(name, path, "read command metadata", err)
	}

	md := domain.CommandMetadata{
		Name:         name,
		Path:         path,
		Size:         info.Size(),
		LastModified: info.ModTime(),
		Description:  ExtractDescription(bytes.ToValidUTF8(preview[:n], nil)),
	}
	if l.cacheEnabled {
		l.metadata.Set(key, md)
	}
	return md, nil
}

// ClearCache drops all cached listings, metadata and content.
func (l *Loader) ClearCache() {
	l.list.Clear()
	l.metadata.Clear()
	l.content.Clear()
	slog.Debug("Command caches cleared")
}

// Suggest returns up to three existing command names that fuzzily match name.
func (l *Loader) Suggest(name string) []string {
	names, err := l.commandNames()
	if err != nil || len(names) == 0 {
		return nil
	}

	matches := fuzzy.Find(strings.ToLower(name), lowerAll(names))
	var out []string
	for _, m := range matches {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, names[m.Index])
	}
	return out
}

func (l *Loader) resolve(name string) (string, string, error) {
	name, err := validate.CommandName(name)
	if err != nil {
		return "", "", err
	}
	path := filepath.Join(l.dir, name+commandExt)
	if filepath.Dir(path) != filepath.Clean(l.dir) {
		return "", "", &domain.InvalidInputError{Message: "invalid command path: " + name}
	}
	return name, path, nil
}

func (l *Loader) readError(name, path, op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &domain.CommandNotFoundError{Name: name, Suggestions: l.Suggest(name)}
	}
	return &domain.FileSystemError{Op: op, Path: path, Err: err}
}

// commandNames lists the valid command names in the directory.
func (l *Loader) commandNames() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, &domain.FileSystemError{Op: "list commands", Path: l.dir, Err: err}
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), commandExt) {
			continue
		}
		name, err := validate.CommandName(entry.Name())
		if err != nil {
			slog.Warn("Skipping command file with invalid name", "name", entry.Name())
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// ExtractDescription derives a short description from Markdown source: the
// frontmatter "description" key, else the first top-level paragraph, else the
// text without heading lines. Results longer than 200 characters are cut to
// 197 plus "...".
func ExtractDescription(src []byte) string {
	body := src
	if m := frontmatter.FindSubmatchIndex(src); m != nil {
		var meta struct {
			Description string `yaml:"description"`
		}
		if err := yaml.Unmarshal(src[m[2]:m[3]], &meta); err == nil {
			if desc := strings.TrimSpace(meta.Description); desc != "" {
				return truncate(desc)
			}
		}
		body = src[m[1]:]
	}

	if para := firstParagraph(body); para != "" {
		return truncate(para)
	}

	if rest := strings.TrimSpace(headingLine.ReplaceAllString(string(body), "")); rest != "" {
		return truncate(rest)
	}
	return NoDescription
}

func firstParagraph(src []byte) string {
	doc := markdownBody.Parser().Parse(text.NewReader(src))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() != ast.KindParagraph {
			continue
		}
		var buf bytes.Buffer
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		if para := strings.TrimSpace(buf.String()); para != "" {
			return para
		}
	}
	return ""
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxDescriptionLength {
		return s
	}
	return string([]rune(s)[:maxDescriptionLength-3]) + "..."
}
