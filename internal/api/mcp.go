package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/dexview/internal/catalog"
	"github.com/kalambet/dexview/internal/session"
)

const defaultSearchLimit = 20

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store         CatalogStore
	ReloadContext context.Context
	Version       string
}

// NewMCPServer creates an MCP server exposing the catalog session as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.ReloadContext == nil {
		deps.ReloadContext = context.Background()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := server.NewMCPServer(
		"dexview",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("dexview: an in-memory Pokémon catalog. Search by name, filter by type, open item details."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_catalog",
			mcp.WithDescription("Set the search term and type filter, then return the matching catalog items in catalog order."),
			mcp.WithString("query", mcp.Description("Case-insensitive name substring; empty matches every name")),
			mcp.WithString("category", mcp.Description(`Type to filter on, or "all"`)),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items to return (default 20)")),
		),
		mcpSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("get_item",
			mcp.WithDescription("Open the detail view of one catalog item and return it."),
			mcp.WithNumber("id", mcp.Description("Item id"), mcp.Required()),
		),
		mcpGetItem(deps),
	)

	s.AddTool(
		mcp.NewTool("close_item",
			mcp.WithDescription("Close the currently open item detail view."),
		),
		mcpCloseItem(deps),
	)

	s.AddTool(
		mcp.NewTool("list_categories",
			mcp.WithDescription("List every type present in the loaded catalog."),
		),
		mcpListCategories(deps),
	)

	s.AddTool(
		mcp.NewTool("reload_catalog",
			mcp.WithDescription("Discard the current catalog and fetch it again from the upstream API."),
		),
		mcpReload(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"catalog://status",
			"Catalog Status",
			mcp.WithResourceDescription("Session status, filter criteria and category index as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(deps),
	)

	return s
}

type searchResult struct {
	Status   catalog.Status   `json:"status"`
	Criteria catalog.Criteria `json:"criteria"`
	Matched  int              `json:"matched"`
	Items    []catalog.Item   `json:"items"`
}

func mcpSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c := catalog.Criteria{
			Search:   req.GetString("query", ""),
			Category: req.GetString("category", catalog.AllCategories),
		}
		limit := req.GetInt("limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}

		snap, err := deps.Store.SetCriteria(c)
		if errors.Is(err, session.ErrUnknownCategory) {
			return mcpError(fmt.Sprintf("%v; known categories: %v", err, snap.Categories)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if snap.Status != catalog.StatusReady {
			return mcpError(statusMessage(snap)), nil
		}

		res := searchResult{
			Status:   snap.Status,
			Criteria: snap.Criteria,
			Matched:  len(snap.Items),
			Items:    snap.Items,
		}
		if len(res.Items) > limit {
			res.Items = res.Items[:limit]
		}
		return mcpJSON(res)
	}
}

func mcpGetItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("id", 0)
		if id <= 0 {
			return mcpError("id is required"), nil
		}

		it, ok := deps.Store.Select(id)
		if !ok {
			snap := deps.Store.Snapshot()
			if snap.Status != catalog.StatusReady {
				return mcpError(statusMessage(snap)), nil
			}
			return mcpError(fmt.Sprintf("item %d not found", id)), nil
		}
		return mcpJSON(it)
	}
}

func mcpCloseItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.Store.ClearSelection()
		return mcpText("Closed item view"), nil
	}
}

func mcpListCategories(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap := deps.Store.Snapshot()
		if snap.Status != catalog.StatusReady {
			return mcpError(statusMessage(snap)), nil
		}
		return mcpJSON(snap.Categories)
	}
}

func mcpReload(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := deps.Store.Start(deps.ReloadContext)
		return mcpText(fmt.Sprintf("Reloading catalog (session %s)", id)), nil
	}
}

func mcpResourceStatus(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snap := deps.Store.Snapshot()
		status := struct {
			SessionID  string           `json:"session_id"`
			Status     catalog.Status   `json:"status"`
			Error      string           `json:"error,omitempty"`
			Total      int              `json:"total"`
			Visible    int              `json:"visible"`
			Categories []string         `json:"categories"`
			Criteria   catalog.Criteria `json:"criteria"`
			Selected   *int             `json:"selected,omitempty"`
		}{
			SessionID:  snap.SessionID,
			Status:     snap.Status,
			Error:      snap.Error,
			Total:      snap.Total,
			Visible:    len(snap.Items),
			Categories: snap.Categories,
			Criteria:   snap.Criteria,
		}
		if snap.Selected != nil {
			id := snap.Selected.ID
			status.Selected = &id
		}

		b, err := json.Marshal(status)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func statusMessage(snap session.Snapshot) string {
	if snap.Status == catalog.StatusFailed {
		return fmt.Sprintf("%s: %s (use reload_catalog to try again)", snap.Error, snap.Cause)
	}
	return "catalog is still loading"
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
