package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

// ErrorBody is the payload of a failed tool call.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// errorResult renders err as {"error": {...}} with IsError set.
func errorResult(err error) *mcp.CallToolResult {
	body := errorBody(err)
	data, merr := json.MarshalIndent(errorEnvelope{Error: body}, "", "  ")
	if merr != nil {
		data = []byte(`{"error":{"code":"` + domain.CodeInternal + `","message":"failed to encode error"}}`)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}

func errorBody(err error) ErrorBody {
	body := ErrorBody{Code: domain.ErrorCode(err), Message: err.Error()}

	var (
		notFound       *domain.CommandNotFoundError
		reportNotFound *domain.ReportNotFoundError
		upload         *domain.UploadError
		timeout        *domain.SearchTimeoutError
		fsErr          *domain.FileSystemError
	)
	switch {
	case errors.As(err, &notFound):
		details := map[string]any{"command_name": notFound.Name}
		if len(notFound.Suggestions) > 0 {
			details["suggestions"] = notFound.Suggestions
		}
		body.Details = details
	case errors.As(err, &reportNotFound):
		body.Details = map[string]any{
			"command_name":  reportNotFound.CommandName,
			"report_name":   reportNotFound.ReportName,
			"expected_path": reportNotFound.ExpectedPath,
		}
	case errors.As(err, &upload):
		body.Details = upload.Details
	case errors.As(err, &timeout):
		body.Details = map[string]any{"timeout_ms": timeout.Timeout.Milliseconds()}
	case errors.As(err, &fsErr):
		body.Details = map[string]any{"path": fsErr.Path}
	}
	return body
}

// toolFailure logs a failed tool call and converts it to an error result.
func toolFailure(ctx context.Context, tool string, err error, attrs ...any) *mcp.CallToolResult {
	level := slog.LevelError
	switch domain.ErrorCode(err) {
	case domain.CodeInvalidInput, domain.CodeCommandNotFound, domain.CodeReportNotFound:
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, tool+" failed", append(attrs, "error", err, "code", domain.ErrorCode(err))...)
	return errorResult(err)
}
