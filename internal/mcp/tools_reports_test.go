package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/mcp-acmt-server/internal/domain"
	"github.com/sha1n/mcp-acmt-server/internal/reports"
)

func TestSearchReportsHandler(t *testing.T) {
	f := newFixture(t)
	handler := NewSearchReportsHandler(f.finder, f.linker, 10)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchReportsArgument{Query: "TIMEOUT"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	out := decodeResult[SearchReportsOutput](t, result)
	if len(out.Results) != 1 {
		t.Fatalf("Expected 1 result, got %+v", out.Results)
	}
	got := out.Results[0]
	if got.ReportName != "analyze_zoom_log_20240301.md" || got.CommandName != "analyze_zoom_log" {
		t.Errorf("Unexpected result %+v", got)
	}
	if got.Date == nil || !strings.HasPrefix(*got.Date, "2024-0") {
		t.Errorf("Expected parsed date, got %v", got.Date)
	}
	if !strings.Contains(got.Excerpt, "timeout error") {
		t.Errorf("Unexpected excerpt %q", got.Excerpt)
	}
	if got.Link != "https://reports.example.com/r/analyze_zoom_log/analyze_zoom_log_20240301.md" {
		t.Errorf("Unexpected link %q", got.Link)
	}
}

func TestSearchReportsHandler_Filters(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.reportsDir, "deploy_service", "deploy_2024-02-01.md"), "timeout during deploy")
	handler := NewSearchReportsHandler(f.finder, f.linker, 10)

	result, _, _ := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchReportsArgument{Query: "timeout"})
	if out := decodeResult[SearchReportsOutput](t, result); len(out.Results) != 2 {
		t.Errorf("Expected 2 results across commands, got %d", len(out.Results))
	}

	result, _, _ = handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchReportsArgument{Query: "timeout", CommandFilter: "deploy_service"})
	out := decodeResult[SearchReportsOutput](t, result)
	if len(out.Results) != 1 || out.Results[0].CommandName != "deploy_service" {
		t.Errorf("Expected filtered result, got %+v", out.Results)
	}

	result, _, _ = handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchReportsArgument{Query: "timeout", MaxResults: intPtr(1)})
	if out := decodeResult[SearchReportsOutput](t, result); len(out.Results) != 1 {
		t.Errorf("Expected max_results to cap the output, got %d", len(out.Results))
	}

	result, _, _ = handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchReportsArgument{Query: "timeout", CommandFilter: "../etc"})
	if body := decodeError(t, result); body.Code != domain.CodeInvalidInput {
		t.Errorf("Expected INVALID_INPUT for bad filter, got %+v", body)
	}
}

func TestListCommandReportsHandler(t *testing.T) {
	f := newFixture(t)
	handler := NewListCommandReportsHandler(f.finder, f.linker)

	result, _, _ := handler.Handle(context.Background(), &mcp.CallToolRequest{}, ListCommandReportsArgument{CommandName: "analyze_zoom_log"})
	out := decodeResult[ListCommandReportsOutput](t, result)
	if out.Total != 2 || out.CommandName != "analyze_zoom_log" {
		t.Fatalf("Unexpected listing %+v", out)
	}
	if out.Reports[0].Name != "analyze_zoom_log_20240301.md" || out.Reports[0].Date == nil {
		t.Errorf("Expected dated report first, got %+v", out.Reports[0])
	}
	if out.Reports[1].Name != "notes.md" || out.Reports[1].Date != nil {
		t.Errorf("Expected undated report last, got %+v", out.Reports[1])
	}

	result, _, _ = handler.Handle(context.Background(), &mcp.CallToolRequest{}, ListCommandReportsArgument{CommandName: "deploy_service"})
	if text := extractTextContent(result); !strings.Contains(text, `"reports": []`) || !strings.Contains(text, `"total": 0`) {
		t.Errorf("Expected empty listing, got %s", text)
	}
}

func TestGetReportHandler(t *testing.T) {
	f := newFixture(t)
	handler := NewGetReportHandler(f.finder, f.linker)

	result, _, _ := handler.Handle(context.Background(), &mcp.CallToolRequest{}, GetReportArgument{
		CommandName: "analyze_zoom_log",
		ReportName:  "analyze_zoom_log_20240301.md",
	})
	out := decodeResult[GetReportOutput](t, result)
	if !strings.Contains(out.Content, "timeout error") || out.CommandName != "analyze_zoom_log" {
		t.Errorf("Unexpected report %+v", out)
	}
	if out.Metadata.Size == 0 || out.Metadata.Date == nil || !strings.HasPrefix(out.Metadata.Link, "https://reports.example.com/r/") {
		t.Errorf("Unexpected metadata %+v", out.Metadata)
	}
}

func TestGetReportHandler_Errors(t *testing.T) {
	f := newFixture(t)
	handler := NewGetReportHandler(f.finder, f.linker)

	tests := []struct {
		name     string
		args     GetReportArgument
		wantCode string
	}{
		{"missing report", GetReportArgument{CommandName: "analyze_zoom_log", ReportName: "absent.md"}, domain.CodeReportNotFound},
		{"traversal", GetReportArgument{CommandName: "analyze_zoom_log", ReportName: "../../secret.md"}, domain.CodeInvalidInput},
		{"blank report name", GetReportArgument{CommandName: "analyze_zoom_log", ReportName: "  "}, domain.CodeInvalidInput},
		{"bad command", GetReportArgument{CommandName: "a/b", ReportName: "x.md"}, domain.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, _ := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tt.args)
			if body := decodeError(t, result); body.Code != tt.wantCode {
				t.Errorf("Expected %s, got %+v", tt.wantCode, body)
			}
		})
	}

	result, _, _ := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tests[0].args)
	body := decodeError(t, result)
	if body.Details["expected_path"] != filepath.Join(f.reportsDir, "analyze_zoom_log", "absent.md") {
		t.Errorf("Unexpected details %+v", body.Details)
	}
}

func TestReportFeedbackHandler_Upload(t *testing.T) {
	f := newFixture(t)
	handler := NewReportFeedbackHandler(f.uploader)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, ReportFeedbackArgument{
		CommandName:     "analyze_zoom_log",
		ReportContent:   "# Findings\n\nAll good.",
		UserWantsUpload: true,
		ReportName:      "Weekly check.md",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	out := decodeResult[ReportFeedbackOutput](t, result)
	if !out.Success || out.ActionTaken != ActionUploaded || out.Version != 1 {
		t.Errorf("Unexpected output %+v", out)
	}
	if out.ReportName != "analyze_zoom_log_Weekly_check_20240115_103000_v1.md" {
		t.Errorf("Unexpected report name %q", out.ReportName)
	}
	if out.SyncStatus != reports.SyncSkipped || out.DatabaseSync == nil || out.DatabaseSync.Status != reports.SyncSkipped {
		t.Errorf("Expected skipped sync, got %+v", out)
	}
	if !strings.HasPrefix(out.ReportLink, "https://reports.example.com/r/analyze_zoom_log/") {
		t.Errorf("Unexpected link %q", out.ReportLink)
	}
	data, err := os.ReadFile(out.ReportPath)
	if err != nil || string(data) != "# Findings\n\nAll good." {
		t.Errorf("Uploaded file content = %q, %v", data, err)
	}
}

func TestReportFeedbackHandler_SaveLocally(t *testing.T) {
	f := newFixture(t)
	handler := NewReportFeedbackHandler(f.uploader)

	result, _, _ := handler.Handle(context.Background(), &mcp.CallToolRequest{}, ReportFeedbackArgument{
		CommandName:   "analyze_zoom_log",
		ReportContent: "local only",
	})

	out := decodeResult[ReportFeedbackOutput](t, result)
	if out.ActionTaken != ActionSavedLocally || out.DatabaseSync != nil || out.Version != 0 {
		t.Errorf("Unexpected output %+v", out)
	}
	if filepath.Dir(out.ReportPath) != filepath.Join(f.localDir, "analyze_zoom_log") {
		t.Errorf("Expected file under the local dir, got %q", out.ReportPath)
	}
	if !strings.HasSuffix(out.ReportName, "_local.md") {
		t.Errorf("Unexpected name %q", out.ReportName)
	}
}

func TestReportFeedbackHandler_UploadErrors(t *testing.T) {
	f := newFixture(t)
	handler := NewReportFeedbackHandler(f.uploader)

	tests := []struct {
		name     string
		args     ReportFeedbackArgument
		wantCode string
	}{
		{"empty content", ReportFeedbackArgument{CommandName: "analyze_zoom_log", ReportContent: "  ", UserWantsUpload: true}, domain.CodeEmptyContent},
		{"bad command", ReportFeedbackArgument{CommandName: "bad name", ReportContent: "x", UserWantsUpload: true}, domain.CodeInvalidCommandName},
		{"bad report name", ReportFeedbackArgument{CommandName: "analyze_zoom_log", ReportContent: "x", UserWantsUpload: true, ReportName: "a/b"}, domain.CodeInvalidReportName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, _ := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tt.args)
			if body := decodeError(t, result); body.Code != tt.wantCode {
				t.Errorf("Expected %s, got %+v", tt.wantCode, body)
			}
		})
	}
}

func TestSyncSummary(t *testing.T) {
	tests := []struct {
		status      reports.SyncStatus
		syncErr     string
		wantMessage string
		wantStatus  reports.SyncStatus
	}{
		{reports.SyncSuccess, "", "database sync completed", reports.SyncSuccess},
		{reports.SyncFailed, "HTTP error: 500", "database sync failed: HTTP error: 500", reports.SyncFailed},
		{reports.SyncSkipped, "", "database sync skipped", reports.SyncSkipped},
		{"", "", "database sync skipped", reports.SyncSkipped},
	}

	for _, tt := range tests {
		message, dbSync := syncSummary(tt.status, tt.syncErr)
		if !strings.Contains(message, tt.wantMessage) {
			t.Errorf("syncSummary(%q) message = %q", tt.status, message)
		}
		if dbSync.Status != tt.wantStatus {
			t.Errorf("syncSummary(%q) status = %q", tt.status, dbSync.Status)
		}
	}
}
