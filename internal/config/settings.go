package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Transport type constants
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

const maxSearchResults = 100

// CacheSettings configuration for the command metadata cache
type CacheSettings struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// SearchSettings configuration for the tiered command search
type SearchSettings struct {
	MaxResults       int           `mapstructure:"max_results"`
	Timeout          time.Duration `mapstructure:"timeout"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	CacheSize        int           `mapstructure:"cache_size"`
	Tier1Sufficient  int           `mapstructure:"tier1_sufficient"`
	Tier12Sufficient int           `mapstructure:"tier12_sufficient"`
}

// ReportsSettings configuration for report storage and upload
type ReportsSettings struct {
	UploadEnabled   bool   `mapstructure:"upload_enabled"`
	UploadMaxSizeMB int    `mapstructure:"upload_max_size_mb"`
	AutoVersioning  bool   `mapstructure:"auto_versioning"`
	FilePermissions string `mapstructure:"file_permissions"` // octal, e.g. "644"
	LinkBaseURL     string `mapstructure:"link_base_url"`
	LocalDir        string `mapstructure:"local_dir"`
}

// FileMode parses FilePermissions as an octal file mode
func (r ReportsSettings) FileMode() (os.FileMode, error) {
	mode, err := strconv.ParseUint(r.FilePermissions, 8, 32)
	if err != nil || mode > 0o777 {
		return 0, fmt.Errorf("invalid octal file permissions %q", r.FilePermissions)
	}
	return os.FileMode(mode), nil
}

// SyncSettings configuration for the remote report database sync
type SyncSettings struct {
	Domain     string        `mapstructure:"domain"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// WatchSettings configuration for the commands directory watcher
type WatchSettings struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// IndexSettings configuration for the full-text content index
type IndexSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

// Settings application settings
type Settings struct {
	Transport   string          `mapstructure:"transport"`
	Host        string          `mapstructure:"host"`
	Port        int             `mapstructure:"port"`
	CommandsDir string          `mapstructure:"commands_dir"`
	ReportsDir  string          `mapstructure:"reports_dir"`
	LogLevel    string          `mapstructure:"log_level"`
	Cache       CacheSettings   `mapstructure:"cache"`
	Search      SearchSettings  `mapstructure:"search"`
	Reports     ReportsSettings `mapstructure:"reports"`
	Sync        SyncSettings    `mapstructure:"sync"`
	Watch       WatchSettings   `mapstructure:"watch"`
	Index       IndexSettings   `mapstructure:"index"`
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("transport", TransportStdio)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("commands_dir", "./Commands")
	v.SetDefault("reports_dir", "./Commands-Analyze-Report")
	v.SetDefault("log_level", "info")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.timeout", 5*time.Second)
	v.SetDefault("search.cache_ttl", 5*time.Minute)
	v.SetDefault("search.cache_size", 100)
	v.SetDefault("search.tier1_sufficient", 3)
	v.SetDefault("search.tier12_sufficient", 2)

	v.SetDefault("reports.upload_enabled", true)
	v.SetDefault("reports.upload_max_size_mb", 10)
	v.SetDefault("reports.auto_versioning", true)
	v.SetDefault("reports.file_permissions", "644")
	v.SetDefault("reports.link_base_url", "")
	v.SetDefault("reports.local_dir", "./local-reports")

	v.SetDefault("sync.domain", "")
	v.SetDefault("sync.retries", 3)
	v.SetDefault("sync.retry_delay", time.Second)
	v.SetDefault("sync.timeout", 10*time.Second)

	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", 250*time.Millisecond)

	v.SetDefault("index.enabled", true)

	// Environment variables
	v.SetEnvPrefix("AICMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variable names that don't follow the key layout
	_ = v.BindEnv("cache.enabled", "AICMD_ENABLE_CACHE")
	_ = v.BindEnv("cache.ttl", "AICMD_CACHE_TTL")
	_ = v.BindEnv("search.max_results", "AICMD_MAX_RESULTS")
	_ = v.BindEnv("search.timeout", "AICMD_SEARCH_TIMEOUT")
	_ = v.BindEnv("reports.upload_enabled", "AICMD_ENABLE_REPORT_UPLOAD")
	_ = v.BindEnv("reports.upload_max_size_mb", "AICMD_REPORT_UPLOAD_MAX_SIZE_MB")
	_ = v.BindEnv("reports.auto_versioning", "AICMD_REPORT_AUTO_VERSIONING")
	_ = v.BindEnv("reports.file_permissions", "AICMD_REPORT_FILE_PERMISSIONS")
	_ = v.BindEnv("reports.link_base_url", "AICMD_REPORT_BASE_URL")
	_ = v.BindEnv("reports.local_dir", "AICMD_LOCAL_REPORTS_DIR")
	_ = v.BindEnv("sync.domain", "AICMD_MCP_SERVER_DOMAIN")

	if flags != nil {
		_ = v.BindPFlag("transport", flags.Lookup("transport"))
		_ = v.BindPFlag("host", flags.Lookup("host"))
		_ = v.BindPFlag("port", flags.Lookup("port"))
		_ = v.BindPFlag("commands_dir", flags.Lookup("commands-dir"))
		_ = v.BindPFlag("reports_dir", flags.Lookup("reports-dir"))
		_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
		_ = v.BindPFlag("cache.enabled", flags.Lookup("cache-enabled"))
		_ = v.BindPFlag("cache.ttl", flags.Lookup("cache-ttl"))
		_ = v.BindPFlag("search.max_results", flags.Lookup("max-results"))
		_ = v.BindPFlag("search.timeout", flags.Lookup("search-timeout"))
		_ = v.BindPFlag("sync.domain", flags.Lookup("sync-domain"))
		_ = v.BindPFlag("watch.enabled", flags.Lookup("watch"))
		_ = v.BindPFlag("index.enabled", flags.Lookup("index-enabled"))
	}

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	// Bare integers keep their legacy units
	if err := normalizeDuration(v, "cache.ttl", time.Second); err != nil {
		return nil, err
	}
	if err := normalizeDuration(v, "search.timeout", time.Millisecond); err != nil {
		return nil, err
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	settings.Transport = strings.ToLower(strings.TrimSpace(settings.Transport))
	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))
	settings.Sync.Domain = strings.TrimRight(strings.TrimSpace(settings.Sync.Domain), "/")

	for _, dir := range []*string{&settings.CommandsDir, &settings.ReportsDir, &settings.Reports.LocalDir} {
		resolved, err := resolveDir(*dir)
		if err != nil {
			return nil, err
		}
		*dir = resolved
	}

	return &settings, nil
}

// normalizeDuration converts a bare integer value of key into a duration of the given unit
func normalizeDuration(v *viper.Viper, key string, unit time.Duration) error {
	raw, ok := v.Get(key).(string)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Trim(raw, "0123456789") != "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	v.Set(key, time.Duration(n)*unit)
	return nil
}

// resolveDir expands ~ and makes path absolute. Empty paths stay empty.
func resolveDir(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(expandHomeDir(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory %q: %w", path, err)
	}
	return abs, nil
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ValidateSettings checks the resolved settings for invalid or conflicting values.
func ValidateSettings(s *Settings) error {
	switch s.Transport {
	case TransportStdio, TransportSSE:
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	if _, err := ParseLogLevel(s.LogLevel); err != nil {
		return err
	}

	if s.CommandsDir == "" {
		return errors.New("commands-dir cannot be empty")
	}
	if s.ReportsDir == "" {
		return errors.New("reports-dir cannot be empty")
	}

	if s.Cache.TTL <= 0 {
		return errors.New("cache-ttl must be positive")
	}

	if err := validateSearchSettings(&s.Search); err != nil {
		return err
	}
	if err := validateReportsSettings(&s.Reports); err != nil {
		return err
	}
	if err := validateSyncSettings(&s.Sync); err != nil {
		return err
	}

	if s.Watch.Enabled && s.Watch.Debounce <= 0 {
		return errors.New("watch debounce must be positive")
	}

	return nil
}

func validateSearchSettings(s *SearchSettings) error {
	if s.MaxResults <= 0 {
		return errors.New("max-results must be positive")
	}
	if s.MaxResults > maxSearchResults {
		return fmt.Errorf("max-results cannot exceed %d", maxSearchResults)
	}
	if s.Timeout <= 0 {
		return errors.New("search-timeout must be positive")
	}
	if s.CacheTTL <= 0 {
		return errors.New("search cache ttl must be positive")
	}
	if s.CacheSize <= 0 {
		return errors.New("search cache size must be positive")
	}
	if s.Tier1Sufficient <= 0 || s.Tier12Sufficient <= 0 {
		return errors.New("search tier thresholds must be positive")
	}
	return nil
}

func validateReportsSettings(r *ReportsSettings) error {
	if r.UploadMaxSizeMB <= 0 {
		return errors.New("report upload max size must be positive")
	}
	if _, err := r.FileMode(); err != nil {
		return err
	}
	if r.LocalDir == "" {
		return errors.New("local reports dir cannot be empty")
	}
	return nil
}

func validateSyncSettings(s *SyncSettings) error {
	if s.Retries < 0 {
		return errors.New("sync retries cannot be negative")
	}
	if s.Domain == "" {
		return nil // sync disabled
	}
	u, err := url.Parse(s.Domain)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("sync-domain must be an http(s) URL, got: " + s.Domain)
	}
	if s.Timeout <= 0 {
		return errors.New("sync timeout must be positive")
	}
	return nil
}
