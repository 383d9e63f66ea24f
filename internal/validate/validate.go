// Package validate checks and normalizes tool arguments.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

const (
	MaxQueryLength       = 500
	MaxCommandNameLength = 255

	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 100

	MinMaxResults = 1
	MaxMaxResults = 100

	commandExt = ".md"
)

var (
	commandNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// Tab, newline and carriage return are allowed.
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// CommandName validates a command name, with or without the ".md" extension,
// and returns it without the extension.
func CommandName(name string) (string, error) {
	base := strings.TrimSuffix(name, commandExt)
	switch {
	case base == "":
		return "", invalid("command name is required")
	case len(base) > MaxCommandNameLength:
		return "", invalid("command name exceeds %d characters", MaxCommandNameLength)
	case !commandNamePattern.MatchString(base):
		return "", invalid("invalid command name %q: must be alphanumeric with underscores or hyphens only", name)
	}
	return base, nil
}

// Query trims a search query and checks its length and content.
func Query(query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n == 0:
		return "", invalid("query is required")
	case n > MaxQueryLength:
		return "", invalid("query exceeds %d characters", MaxQueryLength)
	case controlChars.MatchString(trimmed):
		return "", invalid("query contains control characters")
	}
	return trimmed, nil
}

// ReportName checks that a report file name is a plain file name.
func ReportName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("report name is required")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", invalid("invalid report name %q", name)
	}
	return name, nil
}

// Pagination replaces out-of-range values with the defaults.
func Pagination(page, pageSize int) (int, int) {
	if page <= 0 {
		page = DefaultPage
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}

// MaxResults returns def when n is unset and otherwise clamps n to [1, 100].
func MaxResults(n *int, def int) int {
	if n == nil {
		return def
	}
	return max(MinMaxResults, min(MaxMaxResults, *n))
}

func invalid(format string, args ...any) error {
	return &domain.InvalidInputError{Message: fmt.Sprintf(format, args...)}
}
