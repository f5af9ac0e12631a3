package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/havenapp/haven/internal/analytics"
	"github.com/havenapp/haven/internal/diary"
	"github.com/havenapp/haven/internal/profile"
	"github.com/havenapp/haven/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Entries:   diary.NewService(store, nil),
		Analytics: analytics.NewAggregator(store, nil),
		Profiles:  profile.NewManager(store),
		UserID:    "alice",
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

// --- tests ---

func TestMCPTool_AddEntry(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	result := callTool(t, mcpAddEntry(deps), "add_entry", map[string]any{
		"content": "Finished my art project and felt proud",
		"mood":    "proud",
		"tags":    []any{"art"},
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); !strings.Contains(text, "7 words") {
		t.Errorf("response = %q", text)
	}

	entries, err := store.ListEntries(storage.EntryFilter{OwnerID: "alice"})
	if err != nil {
		t.Fatalf("listing entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Mood != "proud" || len(entries[0].Tags) != 1 {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestMCPTool_AddEntry_Invalid(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result := callTool(t, mcpAddEntry(deps), "add_entry", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error for missing content")
	}

	result = callTool(t, mcpAddEntry(deps), "add_entry", map[string]any{"content": "   "})
	if !result.IsError {
		t.Fatal("expected error for blank content")
	}
}

func TestMCPTool_ListEntries(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	ctx := context.Background()
	for _, c := range []string{"one", "two", "three"} {
		if _, err := deps.Entries.Create(ctx, "alice", diary.NewEntry{Content: c}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := deps.Entries.Create(ctx, "bob", diary.NewEntry{Content: "not yours"}); err != nil {
		t.Fatal(err)
	}

	result := callTool(t, mcpListEntries(deps), "list_entries", map[string]any{"limit": 2})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var entries []storage.Entry
	if err := json.Unmarshal([]byte(toolText(t, result)), &entries); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Content != "three" {
		t.Errorf("first entry = %q, want newest", entries[0].Content)
	}
}

func TestMCPTool_ListEntries_Empty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	result := callTool(t, mcpListEntries(deps), "list_entries", nil)
	if text := toolText(t, result); text != "[]" {
		t.Errorf("expected [], got %s", text)
	}
}

func TestMCPTool_WritingStats(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if _, err := deps.Entries.Create(context.Background(), "alice", diary.NewEntry{Content: "four words right here"}); err != nil {
		t.Fatal(err)
	}

	result := callTool(t, mcpWritingStats(deps), "writing_stats", map[string]any{"days": 9999})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var stats analytics.Stats
	if err := json.Unmarshal([]byte(toolText(t, result)), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalWords != 4 || stats.WindowDays != analytics.MaxWindowDays {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMCPTool_EmotionalInsights(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result := callTool(t, mcpEmotionalInsights(deps), "emotional_insights", nil)
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var summary analytics.InsightSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.WindowDays != analytics.DefaultWindowDays {
		t.Errorf("window = %d", summary.WindowDays)
	}
}

func TestMCPTool_SetPreference(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result := callTool(t, mcpSetPreference(deps), "set_preference", map[string]any{
		"key":   profile.KeyTone,
		"value": "gentle",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	p, err := deps.Profiles.GetProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.Communication.Tone != "gentle" {
		t.Errorf("tone = %q", p.Communication.Tone)
	}

	result = callTool(t, mcpSetPreference(deps), "set_preference", map[string]any{"key": "nope", "value": "x"})
	if !result.IsError {
		t.Error("expected error for unknown key")
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	long := strings.Repeat("é", 300)
	if _, err := deps.Entries.Create(context.Background(), "alice", diary.NewEntry{Content: long}); err != nil {
		t.Fatal(err)
	}

	contents, err := mcpResourceRecent(deps)(context.Background(), makeReadResourceRequest("diary://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var previews []struct {
		Preview string `json:"preview"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &previews); err != nil {
		t.Fatal(err)
	}
	if len(previews) != 1 {
		t.Fatalf("expected 1 preview, got %d", len(previews))
	}
	if got := []rune(previews[0].Preview); len(got) != mcpPreviewRunes+3 {
		t.Errorf("preview runes = %d, want %d", len(got), mcpPreviewRunes+3)
	}
}

func TestMCPResource_Profile(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if err := deps.Profiles.Update("alice", map[string]any{profile.KeyName: "Alice"}); err != nil {
		t.Fatal(err)
	}

	contents, err := mcpResourceProfile(deps)(context.Background(), makeReadResourceRequest("user://profile"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)
	if !strings.Contains(tc.Text, `"Alice"`) {
		t.Errorf("profile resource = %s", tc.Text)
	}
}

func TestNewMCPServer_RegistersTools(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	s := NewMCPServer(deps)
	if s == nil {
		t.Fatal("expected server")
	}

	deps.Profiles = nil
	if NewMCPServer(deps) == nil {
		t.Fatal("expected server without profiles")
	}
}
