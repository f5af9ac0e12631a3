package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/havenapp/haven/internal/analytics"
	"github.com/havenapp/haven/internal/auth"
	"github.com/havenapp/haven/internal/config"
	"github.com/havenapp/haven/internal/profile"
	"github.com/havenapp/haven/internal/resources"
	"github.com/havenapp/haven/internal/storage"
)

// openLocalStore opens the configured database for commands that work
// without a running server.
func openLocalStore() (*storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// --- users ---

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users and API tokens",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user and print its API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u := storage.User{
			ID:          uuid.New().String(),
			DisplayName: strings.TrimSpace(name),
			CreatedAt:   time.Now().UTC(),
		}
		if err := store.CreateUser(u); err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		token, err := auth.NewVerifier(store).Issue(u.ID)
		if err != nil {
			return fmt.Errorf("issuing token: %w", err)
		}

		printSuccess("Created user %s", u.ID)
		printWarning("The token is shown once. Store it now.")
		fmt.Println(token)
		return nil
	},
}

var usersTokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue an additional API token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if _, err := store.GetUser(args[0]); err != nil {
			return fmt.Errorf("loading user %s: %w", args[0], err)
		}
		token, err := auth.NewVerifier(store).Issue(args[0])
		if err != nil {
			return fmt.Errorf("issuing token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		users, err := store.ListUsers()
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No users found.")
			return nil
		}
		for _, u := range users {
			fmt.Printf("%s  %s  %s\n", colorize(colorCyan, u.ID), u.CreatedAt.Format(time.RFC3339), u.DisplayName)
		}
		return nil
	},
}

func init() {
	usersCreateCmd.Flags().String("name", "", "display name")
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersTokenCmd)
	usersCmd.AddCommand(usersListCmd)
}

// --- entries ---

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Write and browse diary entries",
}

// entryView is the subset of an entry the CLI prints.
type entryView struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Mood      string    `json:"mood"`
	Tags      []string  `json:"tags"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"createdAt"`
	Insight   *struct {
		Sentiment struct {
			Label string  `json:"label"`
			Score float64 `json:"score"`
		} `json:"sentiment"`
	} `json:"insight"`
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/entries?limit=%d&includeInsights=true", limit))
		if err != nil {
			return err
		}
		var entries []entryView
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No entries found.")
			return nil
		}
		for _, e := range entries {
			mood := "pending"
			if e.Insight != nil {
				mood = fmt.Sprintf("%s %+.2f", e.Insight.Sentiment.Label, e.Insight.Sentiment.Score)
			}
			fmt.Printf("%s  %s  %-16s %s\n",
				colorize(colorCyan, shortID(e.ID)),
				e.CreatedAt.Local().Format("2006-01-02 15:04"),
				mood,
				preview(strings.Join(strings.Fields(e.Content), " "), 60),
			)
		}
		return nil
	},
}

var entriesAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Write a new entry",
	Long: `Write a new entry from arguments or a file.

Examples:
  haven entries add "Talked to my coach about the tryouts" --mood nervous --tags sport
  haven entries add --file ./today.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		mood, _ := cmd.Flags().GetString("mood")
		tagsStr, _ := cmd.Flags().GetString("tags")

		content := strings.Join(args, " ")
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			content = string(data)
		}
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("entry text or --file is required")
		}

		req := map[string]any{"content": content}
		if mood != "" {
			req["mood"] = mood
		}
		if tags := splitTags(tagsStr); tags != nil {
			req["tags"] = tags
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/entries", req)
		if err != nil {
			return err
		}
		var e entryView
		if err := decodeJSON(resp, &e); err != nil {
			return err
		}

		printSuccess("Saved entry %s", e.ID)
		return nil
	},
}

var entriesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an entry and its insights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/entries/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var entry any
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}

		resp, err = client.get(cmd.Context(), "/entries/"+url.PathEscape(args[0])+"/insights")
		if err != nil {
			return err
		}
		var insights []any
		if err := decodeJSON(resp, &insights); err != nil {
			return err
		}

		return printJSON(os.Stdout, map[string]any{"entry": entry, "insights": insights})
	},
}

var entriesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an entry and its insights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/entries/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted entry %s", args[0])
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func init() {
	entriesListCmd.Flags().Int("limit", 20, "maximum number of entries to list")
	entriesAddCmd.Flags().String("file", "", "read the entry from a file")
	entriesAddCmd.Flags().String("mood", "", "self-reported mood")
	entriesAddCmd.Flags().String("tags", "", "comma-separated tags")
	entriesCmd.AddCommand(entriesListCmd)
	entriesCmd.AddCommand(entriesAddCmd)
	entriesCmd.AddCommand(entriesShowCmd)
	entriesCmd.AddCommand(entriesDeleteCmd)
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show writing stats and emotional insights",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var stats analytics.Stats
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/analytics/stats?days=%d", days))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		var summary analytics.InsightSummary
		resp, err = client.get(cmd.Context(), fmt.Sprintf("/analytics/emotional-insights?days=%d", days))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &summary); err != nil {
			return err
		}

		if asJSON {
			return printJSON(os.Stdout, map[string]any{"stats": stats, "insights": summary})
		}
		printStats(stats, summary)
		return nil
	},
}

func printStats(stats analytics.Stats, summary analytics.InsightSummary) {
	printStatus("Window", "%d days", stats.WindowDays)
	printStatus("Entries", "%d", stats.TotalEntries)
	printStatus("Words", "%d (%.1f per entry)", stats.TotalWords, stats.AverageWordsPerEntry)
	printStatus("Days active", "%d", stats.DaysActive)
	printStatus("Streak", "%d", stats.WritingStreak)
	if summary.TotalInsights == 0 {
		printStatus("Mood", "no analyzed entries yet")
		return
	}
	printStatus("Mood", "%+.2f, %s", summary.AverageSentiment, summary.SentimentTrend)
	printList("Top emotions", summary.TopEmotions)
	printList("Top themes", summary.TopThemes)
	printList("Triggers", summary.CommonTriggers)
	printList("Coping", summary.EffectiveCopingStrategies)
}

func printList(label string, items []string) {
	if len(items) == 0 {
		return
	}
	printStatus(label, "%s", strings.Join(items, ", "))
}

func init() {
	statsCmd.Flags().Int("days", analytics.DefaultWindowDays, "window in days")
	statsCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- process-pending ---

var processPendingCmd = &cobra.Command{
	Use:   "process-pending",
	Short: "Queue your unprocessed entries for analysis on the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/entries/process-pending"
		if limit > 0 {
			path += fmt.Sprintf("?limit=%d", limit)
		}
		resp, err := client.post(cmd.Context(), path, nil)
		if err != nil {
			return err
		}
		var result map[string]int
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Queued %d entries for analysis", result["submitted"])
		return nil
	},
}

func init() {
	processPendingCmd.Flags().Int("limit", 0, "maximum number of entries to queue (0 = server default)")
}

// --- resources ---

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Manage wellness resources",
}

var resourcesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a PDF, Markdown or text file as a resource",
	Long: `Import a PDF, Markdown or text file as a resource.

Examples:
  haven resources import --file ./sleep-guide.pdf --title "Sleep guide" --category wellbeing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")
		category, _ := cmd.Flags().GetString("category")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := resources.NewService(store).ImportFile(cmd.Context(), file, title, category)
		if err != nil {
			return err
		}
		printSuccess("Imported %q into %s (%s)", res.Title, res.Category, res.ID)
		return nil
	},
}

var resourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/resources"
		if category != "" {
			path += "?category=" + url.QueryEscape(category)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var list []storage.Resource
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No resources found.")
			return nil
		}
		for _, r := range list {
			fmt.Printf("%s  %-10s %s\n", colorize(colorCyan, shortID(r.ID)), r.Category, r.Title)
		}
		return nil
	},
}

func init() {
	resourcesImportCmd.Flags().String("file", "", "file to import (.pdf, .md, .txt)")
	resourcesImportCmd.Flags().String("title", "", "title (default: file name)")
	resourcesImportCmd.Flags().String("category", resources.DefaultCategory, "category")
	resourcesListCmd.Flags().String("category", "", "only list this category")
	resourcesCmd.AddCommand(resourcesImportCmd)
	resourcesCmd.AddCommand(resourcesListCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}
		var p any
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(os.Stdout, p)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field (list fields take comma-separated values)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		var v any = value
		if profile.IsListKey(key) {
			v = splitTags(value)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/profile", map[string]any{key: v})
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("  %s\n", colorize(colorBold, "# "+config.ConfigFilePath()))
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
