package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mietwerk/portal/internal/credentials"
	"github.com/mietwerk/portal/internal/services"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Rooms    *services.Rooms
	Bookings *services.Bookings
	Issues   *services.Issues
	Creds    *credentials.Manager
}

// NewMCPServer creates an MCP server exposing the portal's read surface and
// issue reporting to assistants. Tools act on behalf of the logged-in
// tenant; without a credential the authenticated tools report that instead
// of failing opaquely.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"portal",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("mietwerk portal — tenant housing portal: search rooms, review bookings, report maintenance issues."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_rooms",
			mcp.WithDescription("Search available rooms. Returns the current listing with prices and addresses."),
			mcp.WithString("max_price", mcp.Description("Only rooms at or below this monthly price in euro")),
			mcp.WithString("min_size", mcp.Description("Only rooms of at least this size in square meters")),
		),
		mcpSearchRooms(deps),
	)

	s.AddTool(
		mcp.NewTool("my_bookings",
			mcp.WithDescription("List the logged-in tenant's bookings."),
		),
		mcpMyBookings(deps),
	)

	s.AddTool(
		mcp.NewTool("report_issue",
			mcp.WithDescription("Report a maintenance issue for the logged-in tenant."),
			mcp.WithString("title", mcp.Description("Short issue title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("What is broken and where"), mcp.Required()),
			mcp.WithString("room_id", mcp.Description("Room the issue concerns, if known")),
		),
		mcpReportIssue(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"portal://tenant",
			"Logged-in Tenant",
			mcp.WithResourceDescription("The tenant record of the current session as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTenant(deps),
	)

	return s
}

func mcpSearchRooms(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filters := map[string]string{}
		if v := req.GetString("max_price", ""); v != "" {
			filters["max_price"] = v
		}
		if v := req.GetString("min_size", ""); v != "" {
			filters["min_size"] = v
		}

		list, err := deps.Rooms.List(ctx, filters)
		if err != nil {
			return mcpError(fmt.Sprintf("room search failed: %v", err)), nil
		}

		b, err := json.Marshal(list)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpMyBookings(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !deps.Creds.Authenticated() {
			return mcpError("not logged in: log into the portal first"), nil
		}

		bookings, err := deps.Bookings.List(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("could not fetch bookings: %v", err)), nil
		}
		if len(bookings) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(bookings)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal bookings: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpReportIssue(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !deps.Creds.Authenticated() {
			return mcpError("not logged in: log into the portal first"), nil
		}

		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		description, err := req.RequireString("description")
		if err != nil {
			return mcpError("description is required"), nil
		}

		issueReq := services.IssueRequest{Title: title, Description: description}
		if v := req.GetString("room_id", ""); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return mcpError("room_id must be a number"), nil
			}
			issueReq.RoomID = id
		}

		issue, err := deps.Issues.Create(ctx, issueReq)
		if err != nil {
			return mcpError(fmt.Sprintf("could not report issue: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Reported issue %d (%s)", issue.ID, issue.Status)), nil
	}
}

func mcpResourceTenant(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		principal, ok := deps.Creds.Principal()
		if !ok {
			return nil, fmt.Errorf("not logged in")
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(principal),
			},
		}, nil
	}
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
