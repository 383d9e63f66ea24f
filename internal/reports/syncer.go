package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	syncEndpoint = "/api/ai-commands/report/sync"

	// syncSuccessCode is the API's application-level success code.
	syncSuccessCode = 2000

	DefaultSyncRetries    = 3
	DefaultSyncRetryDelay = time.Second
	DefaultSyncTimeout    = 10 * time.Second
)

var ownerEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SyncStatus is the outcome of synchronizing an uploaded report.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
	SyncSkipped SyncStatus = "skipped"
)

// SyncOptions configures a Syncer.
type SyncOptions struct {
	// Domain is the base URL of the remote service. Empty disables syncing.
	Domain string

	// Retries is the number of attempts after the first one.
	Retries int

	RetryDelay time.Duration

	// Timeout bounds each HTTP attempt. Ignored when HTTPClient is set.
	Timeout time.Duration

	HTTPClient *http.Client
}

// SyncAttempt records one request to the remote service.
type SyncAttempt struct {
	Attempt    int           `json:"attempt"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// SyncResult summarizes a sync including every attempt made.
type SyncResult struct {
	Status   SyncStatus
	Error    string
	Attempts []SyncAttempt
}

type syncRequest struct {
	CommandName string `json:"commandName"`
	ReportName  string `json:"reportName"`
	Owner       string `json:"owner"`
}

type syncResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Syncer records uploaded reports in the remote service's database.
type Syncer struct {
	domain  string
	retries int
	client  *http.Client
	limiter *rate.Limiter
}

// NewSyncer creates a syncer. Negative retries are treated as zero.
func NewSyncer(opts SyncOptions) *Syncer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultSyncTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RetryDelay > 0 {
		limit = rate.Every(opts.RetryDelay)
	}

	domain := strings.TrimSpace(opts.Domain)
	slog.Info("Report syncer initialized", "domain", domain, "enabled", domain != "")

	return &Syncer{
		domain:  strings.TrimSuffix(domain, "/"),
		retries: max(0, opts.Retries),
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Enabled reports whether a remote domain is configured.
func (s *Syncer) Enabled() bool {
	return s != nil && s.domain != ""
}

// Sync posts the report's identity to the remote service, retrying failed
// attempts. Missing configuration or owner skips the sync; a malformed owner
// fails it without any request.
func (s *Syncer) Sync(ctx context.Context, commandName, reportName, owner string) SyncResult {
	if !s.Enabled() {
		slog.Debug("Report sync skipped: no server domain configured")
		return SyncResult{Status: SyncSkipped}
	}

	owner = strings.TrimSpace(owner)
	if owner == "" {
		slog.Warn("Report sync skipped: owner email not provided")
		return SyncResult{Status: SyncSkipped, Error: "owner email is required for sync"}
	}
	if !ownerEmailPattern.MatchString(owner) {
		msg := fmt.Sprintf("owner must be an email address, got %q", owner)
		slog.Error("Report sync precondition failed", "error", msg)
		return SyncResult{Status: SyncFailed, Error: msg}
	}

	if !strings.HasSuffix(commandName, ".md") {
		commandName += ".md"
	}
	body, err := json.Marshal(syncRequest{CommandName: commandName, ReportName: reportName, Owner: owner})
	if err != nil {
		return SyncResult{Status: SyncFailed, Error: fmt.Sprintf("failed to encode sync request: %v", err)}
	}

	url := s.domain + syncEndpoint
	maxAttempts := s.retries + 1
	slog.Info("Syncing report", "url", url, "command", commandName, "report", reportName, "max_attempts", maxAttempts)

	var result SyncResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			result.Status = SyncFailed
			result.Error = fmt.Sprintf("sync interrupted: %v", err)
			return result
		}

		a := s.attempt(ctx, url, body, attempt)
		result.Attempts = append(result.Attempts, a)
		if a.Error == "" {
			slog.Info("Report synced", "command", commandName, "report", reportName, "attempt", attempt)
			result.Status = SyncSuccess
			return result
		}
		slog.Warn("Report sync attempt failed", "attempt", attempt, "max_attempts", maxAttempts, "error", a.Error)
	}

	result.Status = SyncFailed
	result.Error = fmt.Sprintf("sync failed after %d attempts: %s", maxAttempts, result.Attempts[len(result.Attempts)-1].Error)
	slog.Error("Report sync failed", "command", commandName, "report", reportName, "error", result.Error)
	return result
}

func (s *Syncer) attempt(ctx context.Context, url string, body []byte, n int) (a SyncAttempt) {
	start := time.Now()
	a.Attempt = n
	defer func() { a.Duration = time.Since(start) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		a.Error = fmt.Sprintf("failed to create request: %v", err)
		return a
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		a.Error = fmt.Sprintf("network error: %v", err)
		return a
	}
	defer func() { _ = resp.Body.Close() }()

	a.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		a.Error = fmt.Sprintf("HTTP error: %s", resp.Status)
		return a
	}

	var decoded syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		a.Error = fmt.Sprintf("invalid sync response: %v", err)
		return a
	}
	if decoded.Code != syncSuccessCode {
		a.Error = fmt.Sprintf("sync API error: code=%d, msg=%s", decoded.Code, decoded.Msg)
	}
	return a
}
