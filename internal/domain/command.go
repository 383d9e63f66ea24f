package domain

import "time"

// CommandMetadata describes a command file without its content.
// It is the unit every search tier scores.
type CommandMetadata struct {
	// Name is the file name without the ".md" extension.
	Name string `json:"name"`

	// Path is the absolute location of the command file.
	Path string `json:"path"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// LastModified is the file modification time.
	LastModified time.Time `json:"last_modified"`

	// Description is a short summary derived from the file, at most 200 characters.
	Description string `json:"description"`
}

// Command is a command file loaded together with its full Markdown content.
type Command struct {
	CommandMetadata
	Content string `json:"content"`
}

// CommandDocument is the shape stored in the full-text content index.
type CommandDocument struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Headings string `json:"headings"`
	Content  string `json:"content"`
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	CommandFieldName     = "name"
	CommandFieldPath     = "path"
	CommandFieldHeadings = "headings"
	CommandFieldContent  = "content"
)
