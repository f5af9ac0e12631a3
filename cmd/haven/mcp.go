package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/havenapp/haven/internal/api"
	"github.com/havenapp/haven/internal/storage"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the diary tools over MCP (stdio) for one user",
	Long: `Serve the diary tools over the Model Context Protocol on stdin/stdout.

Entries written through MCP are analyzed in this process while it runs.

Example:
  haven mcp --user 3f2b9c1e-...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		return runMCP(userID)
	},
}

func init() {
	mcpCmd.Flags().String("user", "", "id of the user the tools act for")
	mcpCmd.MarkFlagRequired("user")
}

func runMCP(userID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	if _, err := store.GetUser(userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("unknown user %q; create one with: haven users create", userID)
		}
		return fmt.Errorf("loading user: %w", err)
	}

	p, err := buildProviders(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, store, p)
	if err != nil {
		return err
	}
	defer a.Close()

	a.queue.Start(ctx)
	defer a.queue.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Entries:   a.entries,
		Analytics: a.analytics,
		Profiles:  a.profiles,
		UserID:    userID,
	})
	slog.Info("MCP server started (stdio transport)", "user_id", userID)

	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
