package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error codes reported to MCP clients.
const (
	CodeCommandNotFound = "COMMAND_NOT_FOUND"
	CodeSearchTimeout   = "SEARCH_TIMEOUT"
	CodeInvalidConfig   = "INVALID_CONFIG"
	CodeFileSystem      = "FILE_SYSTEM_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeInternal        = "INTERNAL_ERROR"
	CodeReportNotFound  = "REPORT_NOT_FOUND"
)

// Upload error codes.
const (
	CodeUploadDisabled     = "UPLOAD_DISABLED"
	CodeInvalidCommandName = "INVALID_COMMAND_NAME"
	CodeSizeLimitExceeded  = "SIZE_LIMIT_EXCEEDED"
	CodeEmptyContent       = "EMPTY_CONTENT"
	CodeInvalidReportName  = "INVALID_REPORT_NAME"
	CodeReportNameTooLong  = "REPORT_NAME_TOO_LONG"
	CodePathTraversal      = "PATH_TRAVERSAL_ATTEMPT"
	CodeDirectoryPrep      = "DIRECTORY_PREPARATION_FAILED"
	CodeFileWriteFailed    = "FILE_WRITE_FAILED"
	CodeLocalSaveFailed    = "LOCAL_SAVE_FAILED"
)

// CodedError is implemented by errors that carry a client-facing code.
type CodedError interface {
	error
	Code() string
}

// ErrorCode returns the code of the first CodedError in err's chain,
// or CodeInternal when there is none.
func ErrorCode(err error) string {
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeInternal
}

// SearchTimeoutError is returned when a search does not finish before its deadline.
type SearchTimeoutError struct {
	Timeout time.Duration
}

func (e *SearchTimeoutError) Error() string {
	return fmt.Sprintf("search timed out after %s", e.Timeout)
}

func (e *SearchTimeoutError) Code() string { return CodeSearchTimeout }

// Unwrap lets callers match the timeout with errors.Is(err, context.DeadlineExceeded).
func (e *SearchTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// CommandNotFoundError is returned when a named command has no file.
type CommandNotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *CommandNotFoundError) Error() string {
	msg := "command not found: " + e.Name
	if len(e.Suggestions) > 0 {
		msg += " (did you mean: " + strings.Join(e.Suggestions, ", ") + "?)"
	}
	return msg
}

func (e *CommandNotFoundError) Code() string { return CodeCommandNotFound }

// ReportNotFoundError is returned when a report file does not exist.
type ReportNotFoundError struct {
	CommandName  string
	ReportName   string
	ExpectedPath string
}

func (e *ReportNotFoundError) Error() string {
	return fmt.Sprintf("report not found: %s for command %s", e.ReportName, e.CommandName)
}

func (e *ReportNotFoundError) Code() string { return CodeReportNotFound }

// FileSystemError wraps an I/O failure on a known path.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Code() string { return CodeFileSystem }

func (e *FileSystemError) Unwrap() error { return e.Err }

// InvalidInputError reports a rejected tool argument.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string { return e.Message }

func (e *InvalidInputError) Code() string { return CodeInvalidInput }

// UploadError reports a failed report upload or local save.
type UploadError struct {
	ErrCode string
	Message string
	Details map[string]any
}

func (e *UploadError) Error() string { return e.Message }

func (e *UploadError) Code() string { return e.ErrCode }
