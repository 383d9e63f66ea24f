package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-acmt-server/internal/commands"
	"github.com/sha1n/mcp-acmt-server/internal/config"
	"github.com/sha1n/mcp-acmt-server/internal/index"
	mcputil "github.com/sha1n/mcp-acmt-server/internal/mcp"
	"github.com/sha1n/mcp-acmt-server/internal/reports"
	"github.com/sha1n/mcp-acmt-server/internal/search"
	"github.com/spf13/pflag"
)

// ServerName is the MCP implementation name reported to clients
const ServerName = "acmt-mcp"

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(context.Context, *mcp.Server, *config.Settings) error
	CreateServer      func(*config.Settings, string) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Always log to stderr, stdout carries the stdio transport
	level, err := config.ParseLogLevel(settings.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting ACMT MCP server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(settings, version)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if settings.Transport == config.TransportStdio {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(ctx, mcpServer, settings)
}

// CreateMCPServer wires the command, report, search and index components and
// creates the MCP server. The returned cleanup stops background work.
func CreateMCPServer(settings *config.Settings, version string) (*mcp.Server, func(), error) {
	fileMode, err := settings.Reports.FileMode()
	if err != nil {
		return nil, nil, err
	}

	loader := commands.NewLoader(settings.CommandsDir, commands.Options{
		CacheEnabled: settings.Cache.Enabled,
		CacheTTL:     settings.Cache.TTL,
	})
	finder := reports.NewFinder(settings.ReportsDir)
	linker := reports.NewLinker(settings.ReportsDir, settings.Reports.LinkBaseURL)
	syncer := reports.NewSyncer(reports.SyncOptions{
		Domain:     settings.Sync.Domain,
		Retries:    settings.Sync.Retries,
		RetryDelay: settings.Sync.RetryDelay,
		Timeout:    settings.Sync.Timeout,
	})
	uploader := reports.NewUploader(settings.ReportsDir, reports.UploadOptions{
		Enabled:        settings.Reports.UploadEnabled,
		MaxSizeMB:      settings.Reports.UploadMaxSizeMB,
		AutoVersioning: settings.Reports.AutoVersioning,
		FileMode:       fileMode,
		LocalDir:       settings.Reports.LocalDir,
	}, linker, syncer)

	engine := search.NewEngine(search.DefaultTiers(finder, slog.Default()), search.Options{
		Timeout:          settings.Search.Timeout,
		CacheEnabled:     settings.Cache.Enabled,
		CacheTTL:         settings.Search.CacheTTL,
		CacheSize:        settings.Search.CacheSize,
		Tier1Sufficient:  settings.Search.Tier1Sufficient,
		Tier12Sufficient: settings.Search.Tier12Sufficient,
	})

	// Background work is not tied to any request context
	ctx, cancel := context.WithCancel(context.Background())

	var idx *index.Service
	if settings.Index.Enabled {
		svc, err := index.NewService()
		if err != nil {
			slog.Error("Content index unavailable", "error", err)
		} else {
			idx = svc
			go refreshIndex(ctx, idx, loader)
		}
	}

	if settings.Watch.Enabled {
		watcher, err := commands.NewWatcher(loader, settings.Watch.Debounce, func() {
			engine.ClearCache()
			if idx != nil {
				refreshIndex(ctx, idx, loader)
			}
		})
		if err != nil {
			// The directory may not exist yet; tools still report it per call
			slog.Warn("Commands watcher disabled", "dir", settings.CommandsDir, "error", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:       ServerName,
		Version:    version,
		MaxResults: settings.Search.MaxResults,
		Loader:     loader,
		Engine:     engine,
		Finder:     finder,
		Linker:     linker,
		Uploader:   uploader,
		Index:      idx,
	})

	cleanup := func() {
		cancel()
		if idx != nil {
			if err := idx.Close(); err != nil {
				slog.Error("Failed to close content index", "error", err)
			}
		}
	}

	return server, cleanup, nil
}

func refreshIndex(ctx context.Context, idx *index.Service, loader *commands.Loader) {
	if _, err := idx.Refresh(ctx, loader); err != nil && ctx.Err() == nil {
		slog.Error("Content index refresh failed", "error", err)
	}
}
