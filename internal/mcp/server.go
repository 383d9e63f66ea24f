package mcp

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/mcp-acmt-server/internal/commands"
	"github.com/sha1n/mcp-acmt-server/internal/index"
	"github.com/sha1n/mcp-acmt-server/internal/reports"
	"github.com/sha1n/mcp-acmt-server/internal/search"
)

// DefaultMaxResults is used when ServerConfig.MaxResults is not set.
const DefaultMaxResults = 10

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string

	// MaxResults is the default result limit of the search tools.
	MaxResults int

	Loader   *commands.Loader
	Engine   *search.Engine
	Finder   *reports.Finder
	Linker   *reports.Linker
	Uploader *reports.Uploader

	// Index enables search_command_content when set.
	Index *index.Service
}

// CreateServer creates the MCP server and registers the tools whose
// dependencies are configured.
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	if cfg.Loader != nil {
		RegisterListCommandsTool(s, cfg.Loader)
		RegisterGetCommandTool(s, cfg.Loader)
		if cfg.Engine != nil {
			RegisterSearchCommandsTool(s, cfg.Loader, cfg.Engine, maxResults)
		}
	}

	if cfg.Finder != nil {
		linker := cfg.Linker
		if linker == nil {
			linker = reports.NewLinker(cfg.Finder.Dir(), "")
		}
		RegisterSearchReportsTool(s, cfg.Finder, linker, maxResults)
		RegisterListCommandReportsTool(s, cfg.Finder, linker)
		RegisterGetReportTool(s, cfg.Finder, linker)
	}

	if cfg.Uploader != nil {
		RegisterReportFeedbackTool(s, cfg.Uploader)
	}

	if cfg.Index != nil {
		RegisterSearchContentTool(s, cfg.Index, maxResults)
	} else {
		slog.Debug("Content index disabled, search_command_content not registered")
	}

	return s
}

// RegisterSearchCommandsTool registers search_commands with an MCP server.
func RegisterSearchCommandsTool(server *mcp.Server, loader *commands.Loader, engine *search.Engine, maxResults int) {
	handler := NewSearchCommandsHandler(loader, engine, maxResults)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// RegisterGetCommandTool registers get_command with an MCP server.
func RegisterGetCommandTool(server *mcp.Server, loader *commands.Loader) {
	handler := NewGetCommandHandler(loader)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// RegisterListCommandsTool registers list_commands with an MCP server.
func RegisterListCommandsTool(server *mcp.Server, loader *commands.Loader) {
	handler := NewListCommandsHandler(loader)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// RegisterSearchReportsTool registers search_reports with an MCP server.
func RegisterSearchReportsTool(server *mcp.Server, finder *reports.Finder, linker *reports.Linker, maxResults int) {
	handler := NewSearchReportsHandler(finder, linker, maxResults)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// RegisterListCommandReportsTool registers list_command_reports with an MCP server.
func RegisterListCommandReportsTool(server *mcp.Server, finder *reports.Finder, linker *reports.Linker) {
	handler := NewListCommandReportsHandler(finder, linker)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// RegisterGetReportTool registers get_report with an MCP server.
func RegisterGetReportTool(server *mcp.Server, finder *reports.Finder, linker *reports.Linker) {
	handler := NewGetReportHandler(finder, linker)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// RegisterReportFeedbackTool registers report_feedback with an MCP server.
func RegisterReportFeedbackTool(server *mcp.Server, uploader *reports.Uploader) {
	handler := NewReportFeedbackHandler(uploader)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// RegisterSearchContentTool registers search_command_content with an MCP server.
func RegisterSearchContentTool(server *mcp.Server, service *index.Service, maxResults int) {
	handler := NewSearchContentHandler(service, maxResults)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
