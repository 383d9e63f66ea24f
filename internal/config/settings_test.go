package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func validSettings() *Settings {
	return &Settings{
		Transport:   TransportStdio,
		CommandsDir: "/srv/commands",
		ReportsDir:  "/srv/reports",
		LogLevel:    "info",
		Cache:       CacheSettings{Enabled: true, TTL: time.Hour},
		Search: SearchSettings{
			MaxResults:       10,
			Timeout:          5 * time.Second,
			CacheTTL:         5 * time.Minute,
			CacheSize:        100,
			Tier1Sufficient:  3,
			Tier12Sufficient: 2,
		},
		Reports: ReportsSettings{
			UploadEnabled:   true,
			UploadMaxSizeMB: 10,
			FilePermissions: "644",
			LocalDir:        "/srv/local-reports",
		},
		Sync:  SyncSettings{Retries: 3, RetryDelay: time.Second, Timeout: 10 * time.Second},
		Watch: WatchSettings{Enabled: true, Debounce: 250 * time.Millisecond},
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Transport != TransportStdio {
		t.Errorf("Expected default transport 'stdio', got '%s'", settings.Transport)
	}
	if settings.Port != 8080 || settings.Host != "0.0.0.0" {
		t.Errorf("Unexpected default address %s:%d", settings.Host, settings.Port)
	}
	if !filepath.IsAbs(settings.CommandsDir) || filepath.Base(settings.CommandsDir) != "Commands" {
		t.Errorf("Expected absolute default commands dir, got %s", settings.CommandsDir)
	}
	if filepath.Base(settings.ReportsDir) != "Commands-Analyze-Report" {
		t.Errorf("Unexpected default reports dir %s", settings.ReportsDir)
	}
	if !settings.Cache.Enabled || settings.Cache.TTL != time.Hour {
		t.Errorf("Unexpected cache defaults %+v", settings.Cache)
	}
	if settings.Search.MaxResults != 10 || settings.Search.Timeout != 5*time.Second {
		t.Errorf("Unexpected search defaults %+v", settings.Search)
	}
	if settings.Search.Tier1Sufficient != 3 || settings.Search.Tier12Sufficient != 2 {
		t.Errorf("Unexpected tier thresholds %+v", settings.Search)
	}
	if settings.Reports.FilePermissions != "644" || settings.Reports.UploadMaxSizeMB != 10 {
		t.Errorf("Unexpected reports defaults %+v", settings.Reports)
	}
	if settings.Sync.Domain != "" || settings.Sync.Retries != 3 {
		t.Errorf("Unexpected sync defaults %+v", settings.Sync)
	}
	if !settings.Watch.Enabled || settings.Watch.Debounce != 250*time.Millisecond || !settings.Index.Enabled {
		t.Errorf("Unexpected watch/index defaults %+v %+v", settings.Watch, settings.Index)
	}

	if err := ValidateSettings(settings); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadSettings_EnvVars(t *testing.T) {
	t.Setenv("AICMD_PORT", "9090")
	t.Setenv("AICMD_COMMANDS_DIR", "/opt/commands")
	t.Setenv("AICMD_ENABLE_CACHE", "false")
	t.Setenv("AICMD_MAX_RESULTS", "25")
	t.Setenv("AICMD_REPORT_BASE_URL", "https://reports.example.com/")
	t.Setenv("AICMD_MCP_SERVER_DOMAIN", "https://api.example.com/")
	t.Setenv("AICMD_SEARCH_CACHE_SIZE", "42")
	t.Setenv("AICMD_WATCH_ENABLED", "false")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", settings.Port)
	}
	if settings.CommandsDir != "/opt/commands" {
		t.Errorf("Expected commands dir /opt/commands, got %s", settings.CommandsDir)
	}
	if settings.Cache.Enabled {
		t.Error("Expected cache to be disabled")
	}
	if settings.Search.MaxResults != 25 || settings.Search.CacheSize != 42 {
		t.Errorf("Unexpected search settings %+v", settings.Search)
	}
	if settings.Reports.LinkBaseURL != "https://reports.example.com/" {
		t.Errorf("Unexpected link base %q", settings.Reports.LinkBaseURL)
	}
	if settings.Sync.Domain != "https://api.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %q", settings.Sync.Domain)
	}
	if settings.Watch.Enabled {
		t.Error("Expected watcher to be disabled")
	}
}

func TestLoadSettings_LegacyIntegerDurations(t *testing.T) {
	tests := []struct {
		name        string
		ttl         string
		timeout     string
		wantTTL     time.Duration
		wantTimeout time.Duration
	}{
		{"integers", "120", "1500", 2 * time.Minute, 1500 * time.Millisecond},
		{"durations", "10m", "2s", 10 * time.Minute, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AICMD_CACHE_TTL", tt.ttl)
			t.Setenv("AICMD_SEARCH_TIMEOUT", tt.timeout)

			settings, err := LoadSettings()
			if err != nil {
				t.Fatalf("Failed to load settings: %v", err)
			}
			if settings.Cache.TTL != tt.wantTTL {
				t.Errorf("cache ttl = %v, want %v", settings.Cache.TTL, tt.wantTTL)
			}
			if settings.Search.Timeout != tt.wantTimeout {
				t.Errorf("search timeout = %v, want %v", settings.Search.Timeout, tt.wantTimeout)
			}
		})
	}
}

func TestLoadSettings_EnvFile(t *testing.T) {
	content := []byte("host=127.0.0.2\nport=7000")
	tmpEnv := ".env"
	if err := os.WriteFile(tmpEnv, content, 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}
	defer func() { _ = os.Remove(tmpEnv) }()

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Host != "127.0.0.2" {
		t.Errorf("Expected host 127.0.0.2, got %s", settings.Host)
	}
	if settings.Port != 7000 {
		t.Errorf("Expected port 7000, got %d", settings.Port)
	}
}

func TestLoadSettings_InvalidConfig(t *testing.T) {
	t.Setenv("AICMD_PORT", "not-a-number")

	_, err := LoadSettings()
	if err == nil {
		t.Fatal("Expected error for invalid port type")
	}
}

func TestLoadSettings_ExpandHomeDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("No home directory available")
	}
	t.Setenv("AICMD_REPORTS_DIR", "~/reports")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.ReportsDir != filepath.Join(home, "reports") {
		t.Errorf("Expected expanded reports dir, got %s", settings.ReportsDir)
	}
}

func TestLoadSettingsWithFlags_CLIOverridesEnv(t *testing.T) {
	t.Setenv("AICMD_PORT", "9090")
	t.Setenv("AICMD_TRANSPORT", "sse")
	t.Setenv("AICMD_SEARCH_TIMEOUT", "100")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.String("transport", "", "")
	flags.Duration("search-timeout", 0, "")
	_ = flags.Set("port", "7777")
	_ = flags.Set("transport", "stdio")
	_ = flags.Set("search-timeout", "3s")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 7777 {
		t.Errorf("Expected CLI port 7777, got %d", settings.Port)
	}
	if settings.Transport != TransportStdio {
		t.Errorf("Expected CLI transport 'stdio', got '%s'", settings.Transport)
	}
	if settings.Search.Timeout != 3*time.Second {
		t.Errorf("Expected CLI search timeout 3s, got %v", settings.Search.Timeout)
	}
}

func TestLoadSettingsWithFlags_UnchangedFlagsKeepEnv(t *testing.T) {
	t.Setenv("AICMD_HOST", "192.168.1.1")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("host", "", "")
	flags.Bool("watch", true, "")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Host != "192.168.1.1" {
		t.Errorf("Expected env host '192.168.1.1', got '%s'", settings.Host)
	}
	if !settings.Watch.Enabled {
		t.Error("Expected default watch setting to be kept")
	}
}

func TestLoadSettingsWithFlags_AllFlagTypes(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("commands-dir", "", "")
	flags.String("reports-dir", "", "")
	flags.String("log-level", "", "")
	flags.Bool("cache-enabled", true, "")
	flags.Duration("cache-ttl", 0, "")
	flags.Int("max-results", 0, "")
	flags.String("sync-domain", "", "")
	flags.Bool("index-enabled", true, "")

	_ = flags.Set("commands-dir", "/tmp/cmds")
	_ = flags.Set("reports-dir", "/tmp/reports")
	_ = flags.Set("log-level", "DEBUG")
	_ = flags.Set("cache-enabled", "false")
	_ = flags.Set("cache-ttl", "30m")
	_ = flags.Set("max-results", "5")
	_ = flags.Set("sync-domain", "http://sync.local")
	_ = flags.Set("index-enabled", "false")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.CommandsDir != "/tmp/cmds" || settings.ReportsDir != "/tmp/reports" {
		t.Errorf("Unexpected dirs %s %s", settings.CommandsDir, settings.ReportsDir)
	}
	if settings.LogLevel != "debug" {
		t.Errorf("Expected normalized log level, got %s", settings.LogLevel)
	}
	if settings.Cache.Enabled || settings.Cache.TTL != 30*time.Minute {
		t.Errorf("Unexpected cache settings %+v", settings.Cache)
	}
	if settings.Search.MaxResults != 5 {
		t.Errorf("Expected max results 5, got %d", settings.Search.MaxResults)
	}
	if settings.Sync.Domain != "http://sync.local" {
		t.Errorf("Unexpected sync domain %q", settings.Sync.Domain)
	}
	if settings.Index.Enabled {
		t.Error("Expected index to be disabled")
	}
}

func TestValidateSettings_Valid(t *testing.T) {
	s := validSettings()
	if err := ValidateSettings(s); err != nil {
		t.Errorf("Expected valid settings, got %v", err)
	}

	s.Transport = TransportSSE
	s.Sync.Domain = "https://api.example.com"
	if err := ValidateSettings(s); err != nil {
		t.Errorf("Expected valid sse settings, got %v", err)
	}
}

func TestValidateSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"transport", func(s *Settings) { s.Transport = "http" }, "transport must be"},
		{"log level", func(s *Settings) { s.LogLevel = "verbose" }, "log-level"},
		{"commands dir", func(s *Settings) { s.CommandsDir = "" }, "commands-dir"},
		{"reports dir", func(s *Settings) { s.ReportsDir = "" }, "reports-dir"},
		{"cache ttl", func(s *Settings) { s.Cache.TTL = 0 }, "cache-ttl"},
		{"max results zero", func(s *Settings) { s.Search.MaxResults = 0 }, "max-results must be positive"},
		{"max results too large", func(s *Settings) { s.Search.MaxResults = 101 }, "cannot exceed 100"},
		{"search timeout", func(s *Settings) { s.Search.Timeout = -time.Second }, "search-timeout"},
		{"search cache size", func(s *Settings) { s.Search.CacheSize = 0 }, "cache size"},
		{"tier threshold", func(s *Settings) { s.Search.Tier12Sufficient = 0 }, "thresholds"},
		{"upload size", func(s *Settings) { s.Reports.UploadMaxSizeMB = 0 }, "upload max size"},
		{"permissions", func(s *Settings) { s.Reports.FilePermissions = "rw-r--r--" }, "octal"},
		{"permissions digit", func(s *Settings) { s.Reports.FilePermissions = "648" }, "octal"},
		{"local dir", func(s *Settings) { s.Reports.LocalDir = "" }, "local reports dir"},
		{"retries", func(s *Settings) { s.Sync.Retries = -1 }, "retries"},
		{"sync scheme", func(s *Settings) { s.Sync.Domain = "api.example.com" }, "http(s)"},
		{"sync ftp", func(s *Settings) { s.Sync.Domain = "ftp://api.example.com" }, "http(s)"},
		{"debounce", func(s *Settings) { s.Watch.Debounce = 0 }, "debounce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReportsSettings_FileMode(t *testing.T) {
	mode, err := ReportsSettings{FilePermissions: "600"}.FileMode()
	if err != nil || mode != 0o600 {
		t.Errorf("FileMode() = %o, %v", mode, err)
	}
	if _, err := (ReportsSettings{FilePermissions: "1777"}).FileMode(); err == nil {
		t.Error("Expected error for mode outside 0777")
	}
}

func TestExpandHomeDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("No home directory available")
	}

	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/x/y", filepath.Join(home, "x", "y")},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
	}
	for _, tt := range tests {
		if got := expandHomeDir(tt.in); got != tt.want {
			t.Errorf("expandHomeDir(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
