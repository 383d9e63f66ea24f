package mcp

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/mcp-acmt-server/internal/reports"
	"github.com/sha1n/mcp-acmt-server/internal/validate"
)

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// SearchReportsArgument defines search_reports parameters.
type SearchReportsArgument struct {
	Query         string `json:"query" jsonschema:"Search query (keywords to find in reports)"`
	CommandFilter string `json:"command_filter,omitempty" jsonschema:"Optional: filter to reports from specific command"`
	MaxResults    *int   `json:"max_results,omitempty" jsonschema:"Maximum number of results to return (default 10, max 100)"`
}

// ReportSearchResult is one search_reports result.
type ReportSearchResult struct {
	ReportName  string  `json:"report_name"`
	CommandName string  `json:"command_name"`
	Date        *string `json:"date"`
	Excerpt     string  `json:"excerpt"`
	Link        string  `json:"link"`
	Path        string  `json:"path"`
}

// SearchReportsOutput is the search_reports response.
type SearchReportsOutput struct {
	Results []ReportSearchResult `json:"results"`
}

// SearchReportsHandler handles the search_reports tool.
type SearchReportsHandler struct {
	finder            *reports.Finder
	linker            *reports.Linker
	defaultMaxResults int
}

// NewSearchReportsHandler creates a new search_reports handler.
func NewSearchReportsHandler(finder *reports.Finder, linker *reports.Linker, defaultMaxResults int) *SearchReportsHandler {
	return &SearchReportsHandler{finder: finder, linker: linker, defaultMaxResults: defaultMaxResults}
}

// Handle searches report contents, most matches first.
func (h *SearchReportsHandler) Handle(ctx context.Context, _ *mcp.CallToolRequest, args SearchReportsArgument) (*mcp.CallToolResult, any, error) {
	query, err := validate.Query(args.Query)
	if err != nil {
		return toolFailure(ctx, "search_reports", err), nil, nil
	}
	filter := ""
	if args.CommandFilter != "" {
		if filter, err = validate.CommandName(args.CommandFilter); err != nil {
			return toolFailure(ctx, "search_reports", err), nil, nil
		}
	}
	maxResults := validate.MaxResults(args.MaxResults, h.defaultMaxResults)
	slog.Info("search_reports tool invoked", "query", query, "command_filter", filter, "max_results", maxResults)

	matches, err := h.finder.Search(ctx, query, filter)
	if err != nil {
		return toolFailure(ctx, "search_reports", err, "query", query), nil, nil
	}
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	out := SearchReportsOutput{Results: make([]ReportSearchResult, 0, len(matches))}
	for _, m := range matches {
		out.Results = append(out.Results, ReportSearchResult{
			ReportName:  m.Name,
			CommandName: m.CommandName,
			Date:        formatDate(m.Date),
			Excerpt:     m.Excerpt,
			Link:        h.linker.Link(m.Path),
			Path:        m.Path,
		})
	}

	slog.Info("search_reports completed", "query", query, "results", len(out.Results))
	return jsonResult(out), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchReportsHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_reports",
		Description: "Search analysis reports across all commands or filtered by command",
	}
}

// ListCommandReportsArgument defines list_command_reports parameters.
type ListCommandReportsArgument struct {
	CommandName string `json:"command_name" jsonschema:"Name of the command to list reports for"`
}

// ReportListItem is one list_command_reports entry.
type ReportListItem struct {
	Name string  `json:"name"`
	Date *string `json:"date"`
	Size int64   `json:"size"`
	Link string  `json:"link"`
	Path string  `json:"path"`
}

// ListCommandReportsOutput is the list_command_reports response.
type ListCommandReportsOutput struct {
	Reports     []ReportListItem `json:"reports"`
	CommandName string           `json:"command_name"`
	Total       int              `json:"total"`
}

// ListCommandReportsHandler handles the list_command_reports tool.
type ListCommandReportsHandler struct {
	finder *reports.Finder
	linker *reports.Linker
}

// NewListCommandReportsHandler creates a new list_command_reports handler.
func NewListCommandReportsHandler(finder *reports.Finder, linker *reports.Linker) *ListCommandReportsHandler {
	return &ListCommandReportsHandler{finder: finder, linker: linker}
}

// Handle lists a command's reports, newest first.
func (h *ListCommandReportsHandler) Handle(ctx context.Context, _ *mcp.CallToolRequest, args ListCommandReportsArgument) (*mcp.CallToolResult, any, error) {
	command, err := validate.CommandName(args.CommandName)
	if err != nil {
		return toolFailure(ctx, "list_command_reports", err), nil, nil
	}
	slog.Info("list_command_reports tool invoked", "command_name", command)

	list, err := h.finder.ListForCommand(ctx, command)
	if err != nil {
		return toolFailure(ctx, "list_command_reports", err, "command_name", command), nil, nil
	}

	out := ListCommandReportsOutput{
		Reports:     make([]ReportListItem, 0, len(list)),
		CommandName: command,
		Total:       len(list),
	}
	for _, r := range list {
		out.Reports = append(out.Reports, ReportListItem{
			Name: r.Name,
			Date: formatDate(r.Date),
			Size: r.Size,
			Link: h.linker.Link(r.Path),
			Path: r.Path,
		})
	}

	slog.Info("list_command_reports completed", "command_name", command, "total", out.Total)
	return jsonResult(out), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ListCommandReportsHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_command_reports",
		Description: "List all analysis reports for a specific command",
	}
}

// GetReportArgument defines get_report parameters.
type GetReportArgument struct {
	CommandName string `json:"command_name" jsonschema:"Command name that the report belongs to"`
	ReportName  string `json:"report_name" jsonschema:"Report file name, for example analyze_zoom_log_报告_20251126_141059_v1.md"`
}

// ReportMetadataOutput is the metadata block of get_report.
type ReportMetadataOutput struct {
	Path string  `json:"path"`
	Size int64   `json:"size"`
	Date *string `json:"date"`
	Link string  `json:"link"`
}

// GetReportOutput is the get_report response.
type GetReportOutput struct {
	Name        string               `json:"name"`
	CommandName string               `json:"command_name"`
	Content     string               `json:"content"`
	Metadata    ReportMetadataOutput `json:"metadata"`
}

// GetReportHandler handles the get_report tool.
type GetReportHandler struct {
	finder *reports.Finder
	linker *reports.Linker
}

// NewGetReportHandler creates a new get_report handler.
func NewGetReportHandler(finder *reports.Finder, linker *reports.Linker) *GetReportHandler {
	return &GetReportHandler{finder: finder, linker: linker}
}

// Handle returns the full content of one report.
func (h *GetReportHandler) Handle(ctx context.Context, _ *mcp.CallToolRequest, args GetReportArgument) (*mcp.CallToolResult, any, error) {
	command, err := validate.CommandName(args.CommandName)
	if err != nil {
		return toolFailure(ctx, "get_report", err), nil, nil
	}
	name, err := validate.ReportName(args.ReportName)
	if err != nil {
		return toolFailure(ctx, "get_report", err, "command_name", command), nil, nil
	}
	slog.Info("get_report tool invoked", "command_name", command, "report_name", name)

	report, err := h.finder.Get(ctx, command, name)
	if err != nil {
		return toolFailure(ctx, "get_report", err, "command_name", command, "report_name", name), nil, nil
	}

	out := GetReportOutput{
		Name:        report.Name,
		CommandName: report.CommandName,
		Content:     report.Content,
		Metadata: ReportMetadataOutput{
			Path: report.Path,
			Size: report.Size,
			Date: formatDate(report.Date),
			Link: h.linker.Link(report.Path),
		},
	}

	slog.Info("get_report completed", "command_name", command, "report_name", name, "size", report.Size)
	return jsonResult(out), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *GetReportHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_report",
		Description: "Get full content of a specific report by command name and report name",
	}
}

// ReportFeedbackArgument defines report_feedback parameters.
type ReportFeedbackArgument struct {
	CommandName     string `json:"command_name" jsonschema:"Name of the command the report belongs to. Must be an existing command from list_commands."`
	ReportContent   string `json:"report_content" jsonschema:"Full report content in Markdown format"`
	UserWantsUpload bool   `json:"user_wants_upload" jsonschema:"true to upload to the server, false to save locally only. Ask the user first."`
	ReportName      string `json:"report_name,omitempty" jsonschema:"Report name. For user-requested uploads use the user's original report file name."`
	Owner           string `json:"owner,omitempty" jsonschema:"Email of the report owner, recorded by the database sync"`
}

// DatabaseSync describes the sync outcome in user-facing terms.
type DatabaseSync struct {
	Status  reports.SyncStatus `json:"status"`
	Message string             `json:"message"`
}

// ReportFeedbackOutput is the report_feedback response. The upload fields
// are only set when the report was uploaded.
type ReportFeedbackOutput struct {
	Success      bool               `json:"success"`
	ActionTaken  string             `json:"action_taken"`
	ReportPath   string             `json:"report_path"`
	ReportName   string             `json:"report_name"`
	ReportLink   string             `json:"report_link,omitempty"`
	Message      string             `json:"message"`
	Version      int                `json:"version,omitempty"`
	SyncStatus   reports.SyncStatus `json:"sync_status,omitempty"`
	SyncError    string             `json:"sync_error,omitempty"`
	DatabaseSync *DatabaseSync      `json:"database_sync,omitempty"`
}

const (
	ActionUploaded     = "uploaded"
	ActionSavedLocally = "saved_locally"
)

// ReportFeedbackHandler handles the report_feedback tool.
type ReportFeedbackHandler struct {
	uploader *reports.Uploader
}

// NewReportFeedbackHandler creates a new report_feedback handler.
func NewReportFeedbackHandler(uploader *reports.Uploader) *ReportFeedbackHandler {
	return &ReportFeedbackHandler{uploader: uploader}
}

// Handle uploads the report or saves it locally, as the user decided.
func (h *ReportFeedbackHandler) Handle(ctx context.Context, _ *mcp.CallToolRequest, args ReportFeedbackArgument) (*mcp.CallToolResult, any, error) {
	command := strings.TrimSuffix(args.CommandName, ".md")
	reportName := strings.TrimSuffix(strings.TrimSpace(args.ReportName), ".md")
	slog.Info("report_feedback tool invoked",
		"command_name", command,
		"content_size", len(args.ReportContent),
		"user_wants_upload", args.UserWantsUpload,
		"custom_name", reportName != "")

	if !args.UserWantsUpload {
		local, err := h.uploader.SaveLocal(ctx, command, args.ReportContent, reportName)
		if err != nil {
			return toolFailure(ctx, "report_feedback", err, "command_name", command), nil, nil
		}
		return jsonResult(ReportFeedbackOutput{
			Success:     true,
			ActionTaken: ActionSavedLocally,
			ReportPath:  local.Path,
			ReportName:  local.Name,
			Message:     "Report saved locally (not uploaded to server)",
		}), nil, nil
	}

	res, err := h.uploader.Upload(ctx, reports.UploadRequest{
		CommandName: command,
		Content:     args.ReportContent,
		ReportName:  reportName,
		Owner:       args.Owner,
	})
	if err != nil {
		return toolFailure(ctx, "report_feedback", err, "command_name", command), nil, nil
	}

	message, dbSync := syncSummary(res.SyncStatus, res.SyncError)
	return jsonResult(ReportFeedbackOutput{
		Success:      true,
		ActionTaken:  ActionUploaded,
		ReportPath:   res.Path,
		ReportName:   res.Name,
		ReportLink:   res.Link,
		Message:      message,
		Version:      res.Version,
		SyncStatus:   res.SyncStatus,
		SyncError:    res.SyncError,
		DatabaseSync: dbSync,
	}), nil, nil
}

func syncSummary(status reports.SyncStatus, syncErr string) (string, *DatabaseSync) {
	switch status {
	case reports.SyncSuccess:
		return "Report uploaded to server successfully, database sync completed",
			&DatabaseSync{Status: status, Message: "✅ Database sync successful - report metadata saved to database"}
	case reports.SyncFailed:
		return "Report file saved successfully, but database sync failed: " + syncErr,
			&DatabaseSync{Status: status, Message: "❌ Database sync FAILED: " + syncErr}
	default:
		return "Report uploaded to server successfully (database sync skipped - no domain or owner configured)",
			&DatabaseSync{Status: reports.SyncSkipped, Message: "⚠️ Database sync skipped - mcp_server_domain or owner not configured"}
	}
}

// GetToolDefinition returns the MCP tool definition.
func (h *ReportFeedbackHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name: "report_feedback",
		Description: "Handle report upload or local save after an analysis command finished. " +
			"Confirm with the user whether to upload the report to the command's folder, then call this tool " +
			"with user_wants_upload set accordingly. Use the original report file name, never a generated one.",
	}
}
