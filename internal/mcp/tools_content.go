package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/mcp-acmt-server/internal/index"
	"github.com/sha1n/mcp-acmt-server/internal/validate"
)

// SearchContentArgument defines search_command_content parameters.
type SearchContentArgument struct {
	Query      string `json:"query" jsonschema:"Full-text query over command bodies and headings"`
	MaxResults *int   `json:"max_results,omitempty" jsonschema:"Maximum number of results to return (default 10, max 100)"`
}

// SearchContentHandler handles the search_command_content tool.
type SearchContentHandler struct {
	service           *index.Service
	defaultMaxResults int
}

// NewSearchContentHandler creates a new search_command_content handler.
func NewSearchContentHandler(service *index.Service, defaultMaxResults int) *SearchContentHandler {
	return &SearchContentHandler{service: service, defaultMaxResults: defaultMaxResults}
}

// Handle executes the full-text search and returns formatted results.
func (h *SearchContentHandler) Handle(ctx context.Context, _ *mcp.CallToolRequest, args SearchContentArgument) (*mcp.CallToolResult, any, error) {
	query, err := validate.Query(args.Query)
	if err != nil {
		return toolFailure(ctx, "search_command_content", err), nil, nil
	}
	maxResults := validate.MaxResults(args.MaxResults, h.defaultMaxResults)

	results, err := h.service.Search(ctx, query, maxResults)
	if errors.Is(err, index.ErrNotReady) {
		err = fmt.Errorf("content search is not available yet, commands are still being indexed: %w", err)
	}
	if err != nil {
		return toolFailure(ctx, "search_command_content", err, "query", query), nil, nil
	}

	slog.Info("search_command_content completed", "query", query, "total", results.Total)
	return textResult(formatContentResults(results, query)), nil, nil
}

func formatContentResults(results *index.Results, query string) string {
	if results.Total == 0 {
		return fmt.Sprintf("No results found for query: %s", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for '%s':\n\n", results.Total, query)

	for i, hit := range results.Hits {
		fmt.Fprintf(&sb, "### %d. %s\n", i+1, hit.Name)
		fmt.Fprintf(&sb, "**Path**: %s\n", hit.Path)
		fmt.Fprintf(&sb, "**Score**: %.4f\n\n", hit.Score)

		if len(hit.Fragments) > 0 {
			sb.WriteString("```\n")
			for _, fragment := range hit.Fragments {
				sb.WriteString(fragment)
				sb.WriteString("\n")
			}
			sb.WriteString("```\n")
		}
		sb.WriteString("\n")
	}

	if results.Total > uint64(len(results.Hits)) {
		fmt.Fprintf(&sb, "... and %d more results\n", results.Total-uint64(len(results.Hits)))
	}
	return sb.String()
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchContentHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_command_content",
		Description: "Full-text search over the complete content of all commands, with highlighted fragments",
	}
}
