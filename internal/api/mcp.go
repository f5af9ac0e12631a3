package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/havenapp/haven/internal/analytics"
	"github.com/havenapp/haven/internal/diary"
	"github.com/havenapp/haven/internal/storage"
)

const (
	mcpRecentEntries  = 10
	mcpPreviewRunes   = 200
	mcpDefaultListMax = 10
)

// MCPDeps holds dependencies for the MCP server. Every tool acts on behalf
// of UserID. Profiles is optional.
type MCPDeps struct {
	Entries   EntryService
	Analytics AnalyticsService
	Profiles  ProfileService
	UserID    string
}

// NewMCPServer creates an MCP server with the diary tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"haven",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("haven: a private diary with mood insights. Use these tools to write entries and reflect on patterns."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("add_entry",
			mcp.WithDescription("Write a new diary entry. It is analyzed for mood and themes in the background."),
			mcp.WithString("content", mcp.Description("The entry text"), mcp.Required()),
			mcp.WithString("mood", mcp.Description("Optional self-reported mood")),
			mcp.WithArray("tags", mcp.Description("Optional tags")),
		),
		mcpAddEntry(deps),
	)

	s.AddTool(
		mcp.NewTool("list_entries",
			mcp.WithDescription("List recent diary entries, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 10, max 100)")),
		),
		mcpListEntries(deps),
	)

	s.AddTool(
		mcp.NewTool("emotional_insights",
			mcp.WithDescription("Summarize sentiment, emotions, themes and triggers across recent entries."),
			mcp.WithNumber("days", mcp.Description("Window in days (default 30, max 365)")),
		),
		mcpEmotionalInsights(deps),
	)

	s.AddTool(
		mcp.NewTool("writing_stats",
			mcp.WithDescription("Report entry counts, word totals and the current writing streak."),
			mcp.WithNumber("days", mcp.Description("Window in days (default 30, max 365)")),
		),
		mcpWritingStats(deps),
	)

	if deps.Profiles != nil {
		s.AddTool(
			mcp.NewTool("set_preference",
				mcp.WithDescription("Update a user profile field."),
				mcp.WithString("key", mcp.Description("Profile field key (e.g. communication.tone)"), mcp.Required()),
				mcp.WithString("value", mcp.Description("Value to set; empty clears the field"), mcp.Required()),
			),
			mcpSetPreference(deps),
		)

		s.AddResource(
			mcp.NewResource(
				"user://profile",
				"User Profile",
				mcp.WithResourceDescription("Current user profile as JSON"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceProfile(deps),
		)
	}

	s.AddResource(
		mcp.NewResource(
			"diary://recent",
			"Recent Entries",
			mcp.WithResourceDescription("Last 10 diary entries with a short preview"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAddEntry(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		e, err := deps.Entries.Create(ctx, deps.UserID, diary.NewEntry{
			Content: content,
			Mood:    req.GetString("mood", ""),
			Tags:    req.GetStringSlice("tags", nil),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save entry: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored entry %s (%d words)", e.ID, e.Metadata.WordCount)), nil
	}
}

func mcpListEntries(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", mcpDefaultListMax)
		if limit <= 0 {
			limit = mcpDefaultListMax
		}
		if limit > diary.MaxListLimit {
			limit = diary.MaxListLimit
		}

		entries, err := deps.Entries.List(ctx, deps.UserID, diary.ListOptions{Limit: limit, Kind: storage.KindDiary})
		if err != nil {
			return mcpError(fmt.Sprintf("listing entries failed: %v", err)), nil
		}
		if len(entries) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entries: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpEmotionalInsights(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		days := analytics.NormalizeWindow(req.GetInt("days", analytics.DefaultWindowDays))
		summary, err := deps.Analytics.AggregateInsights(ctx, deps.UserID, days)
		if err != nil {
			return mcpError(fmt.Sprintf("computing insights failed: %v", err)), nil
		}
		return mcpJSON(summary), nil
	}
}

func mcpWritingStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		days := analytics.NormalizeWindow(req.GetInt("days", analytics.DefaultWindowDays))
		stats, err := deps.Analytics.ComputeStats(ctx, deps.UserID, days)
		if err != nil {
			return mcpError(fmt.Sprintf("computing stats failed: %v", err)), nil
		}
		return mcpJSON(stats), nil
	}
}

func mcpSetPreference(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value := req.GetString("value", "")

		if err := deps.Profiles.Update(deps.UserID, map[string]any{key: value}); err != nil {
			return mcpError(fmt.Sprintf("failed to set preference: %v", err)), nil
		}
		if value == "" {
			return mcpText(fmt.Sprintf("Cleared %s", key)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", key, value)), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := deps.Profiles.GetProfile(deps.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
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

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Entries.List(ctx, deps.UserID, diary.ListOptions{Limit: mcpRecentEntries, Kind: storage.KindDiary})
		if err != nil {
			return nil, fmt.Errorf("failed to list recent entries: %w", err)
		}

		type entryPreview struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Mood      string `json:"mood,omitempty"`
			Preview   string `json:"preview"`
			Processed bool   `json:"processed"`
		}

		previews := make([]entryPreview, len(entries))
		for i, e := range entries {
			text := e.Content
			if utf8.RuneCountInString(text) > mcpPreviewRunes {
				runes := []rune(text)
				text = string(runes[:mcpPreviewRunes]) + "..."
			}
			previews[i] = entryPreview{
				ID:        e.ID,
				CreatedAt: e.CreatedAt.Format(time.RFC3339),
				Mood:      e.Mood,
				Preview:   text,
				Processed: e.Processed,
			}
		}

		b, err := json.Marshal(previews)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal entries: %w", err)
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

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
		IsError: true,
	}
}
