package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ParseLogLevel maps a configured level name to a slog.Level
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log-level must be one of debug, info, warn, error, got: %s", level)
	}
}

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == TransportSSE {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}
	logger.InfoContext(ctx, "Config: commands_dir", "value", s.CommandsDir)
	logger.InfoContext(ctx, "Config: reports_dir", "value", s.ReportsDir)
	logger.InfoContext(ctx, "Config: log_level", "value", s.LogLevel)

	logger.InfoContext(ctx, "Config: cache.enabled", "value", s.Cache.Enabled)
	if s.Cache.Enabled {
		logger.InfoContext(ctx, "Config: cache.ttl", "value", s.Cache.TTL)
	}

	logger.InfoContext(ctx, "Config: search.max_results", "value", s.Search.MaxResults)
	logger.InfoContext(ctx, "Config: search.timeout", "value", s.Search.Timeout)

	logger.InfoContext(ctx, "Config: reports.upload_enabled", "value", s.Reports.UploadEnabled)
	if s.Reports.UploadEnabled {
		logger.InfoContext(ctx, "Config: reports.upload_max_size_mb", "value", s.Reports.UploadMaxSizeMB)
		logger.InfoContext(ctx, "Config: reports.auto_versioning", "value", s.Reports.AutoVersioning)
	}
	if s.Reports.LinkBaseURL != "" {
		logger.InfoContext(ctx, "Config: reports.link_base_url", "value", s.Reports.LinkBaseURL)
	}

	if s.Sync.Domain == "" {
		logger.InfoContext(ctx, "Config: sync.domain", "value", "disabled")
	} else {
		logger.InfoContext(ctx, "Config: sync.domain", "value", s.Sync.Domain)
		logger.InfoContext(ctx, "Config: sync.retries", "value", s.Sync.Retries)
	}

	logger.InfoContext(ctx, "Config: watch.enabled", "value", s.Watch.Enabled)
	logger.InfoContext(ctx, "Config: index.enabled", "value", s.Index.Enabled)
}

// SettingsLogValue returns a slog.Value for Settings
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.String("commands_dir", s.CommandsDir),
		slog.String("reports_dir", s.ReportsDir),
		slog.Group("cache",
			slog.Bool("enabled", s.Cache.Enabled),
			slog.Duration("ttl", s.Cache.TTL),
		),
		slog.Group("search",
			slog.Int("max_results", s.Search.MaxResults),
			slog.Duration("timeout", s.Search.Timeout),
		),
		slog.Group("reports",
			slog.Bool("upload_enabled", s.Reports.UploadEnabled),
			slog.String("file_permissions", s.Reports.FilePermissions),
			slog.String("local_dir", s.Reports.LocalDir),
		),
		slog.String("sync_domain", s.Sync.Domain),
		slog.Bool("watch", s.Watch.Enabled),
		slog.Bool("index", s.Index.Enabled),
	)
}
