package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/havenapp/haven/internal/api"
	"github.com/havenapp/haven/internal/config"
	"github.com/havenapp/haven/internal/pipeline"
	"github.com/havenapp/haven/internal/speech"
	"github.com/havenapp/haven/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the haven server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running haven server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show haven server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "haven.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func serverURL(cfg config.Config) string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)))
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "haven version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	if n, err := store.ResetStaleAnalyses(); err != nil {
		return fmt.Errorf("resetting stale analyses: %w", err)
	} else if n > 0 {
		slog.Info("released entries left analyzing by a previous run", "count", n)
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

	if n, err := a.resources.Seed(ctx); err != nil {
		slog.Warn("seeding wellness resources", "error", err)
	} else if n > 0 {
		slog.Info("seeded wellness resources", "count", n)
	}

	a.queue.Start(ctx)
	defer a.queue.Close()

	deps := api.Deps{
		Auth:      a.verifier,
		Entries:   a.entries,
		Pipeline:  a.queue,
		Analytics: a.analytics,
		Chat:      a.chat,
		Speech:    a.speech,
		Profiles:  a.profiles,
		Resources: a.resources,
	}
	if a.audio != nil {
		deps.Audio = a.audio
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)

	srv := &http.Server{
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pipeline.NewSweeper(a.queue, cfg.Pipeline.RetryInterval, cfg.Pipeline.RetryBatch).Run(gctx)
		return nil
	})
	if a.audio != nil {
		g.Go(func() error {
			speech.NewOutputSweeper(cfg.Speech.OutputDir, cfg.Speech.OutputTTL, cfg.Speech.SweepInterval).Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		slog.Info("haven listening", "addr", addr, "backend", cfg.Provider.Backend)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("haven is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop haven (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to haven (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(serverURL(cfg) + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running at %s", serverURL(cfg))
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Backend", "%s", cfg.Provider.Backend)
	switch cfg.Provider.Backend {
	case "ollama":
		ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}
		printStatus("Model", "%s", cfg.Ollama.Model)
	default:
		printStatus("Chat model", "%s", cfg.Provider.ChatModel)
		printStatus("Analysis model", "%s", cfg.Provider.AnalysisModel)
	}
	if cfg.Provider.OpenAIAPIKey == "" {
		printWarning("HAVEN_OPENAI_API_KEY is not set; speech is disabled")
	}
	if cfg.Speech.GCSBucket != "" {
		printStatus("Speech output", "gs://%s", cfg.Speech.GCSBucket)
	} else {
		printStatus("Speech output", "%s", cfg.Speech.OutputDir)
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
