package domain

import "time"

// ReportMetadata describes an analysis report stored under a command's report directory.
type ReportMetadata struct {
	// Name is the report file name, including the ".md" extension.
	Name string `json:"name"`

	// CommandName is the command the report belongs to (its parent directory name).
	CommandName string `json:"command_name"`

	Path string `json:"path"`

	// Date is parsed from the file name and is nil when the name carries no date.
	Date *time.Time `json:"date"`

	Size int64 `json:"size"`
}

// ReportMatch is a report whose content contains a search query.
type ReportMatch struct {
	ReportMetadata
	Excerpt    string `json:"excerpt"`
	MatchCount int    `json:"match_count"`
}

// Report is a report loaded with its full content.
type Report struct {
	ReportMetadata
	Content string `json:"content"`
}
