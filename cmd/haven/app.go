package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/havenapp/haven/internal/analytics"
	"github.com/havenapp/haven/internal/auth"
	"github.com/havenapp/haven/internal/chat"
	"github.com/havenapp/haven/internal/config"
	"github.com/havenapp/haven/internal/diary"
	"github.com/havenapp/haven/internal/ollama"
	"github.com/havenapp/haven/internal/pipeline"
	"github.com/havenapp/haven/internal/profile"
	"github.com/havenapp/haven/internal/provider"
	"github.com/havenapp/haven/internal/resources"
	"github.com/havenapp/haven/internal/speech"
	"github.com/havenapp/haven/internal/storage"
)

// audioURLPrefix is where the HTTP server publishes locally stored speech.
const audioURLPrefix = "/audio/"

// providers holds the guarded AI backends selected by configuration.
type providers struct {
	chat        provider.Generator
	analysis    provider.Generator
	transcriber provider.Transcriber
	synthesizer provider.Synthesizer
}

// app is the fully wired service graph shared by serve and mcp.
type app struct {
	cfg       config.Config
	store     *storage.Store
	profiles  *profile.Manager
	queue     *pipeline.Queue
	entries   *diary.Service
	analytics *analytics.Aggregator
	chat      *chat.Service
	speech    *speech.Service
	audio     *speech.LocalStore // nil when audio is published to GCS
	gcs       *speech.GCSStore
	resources *resources.Service
	verifier  *auth.Verifier
}

// setupLogging installs the process-wide slog handler. Logs always go to
// stderr so that stdout stays free for command output and the MCP transport.
func setupLogging(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// loadConfig loads and validates configuration for commands that talk to a provider.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// buildProviders selects the generation backend and wraps every backend in
// the timeout and rate-limit guard.
func buildProviders(ctx context.Context, cfg config.Config, progress io.Writer) (providers, error) {
	guard := provider.NewGuard(cfg.Provider.Timeout, cfg.Provider.RateLimit)

	var oa *provider.OpenAI
	if cfg.Provider.OpenAIAPIKey != "" {
		oa = provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:          cfg.Provider.OpenAIAPIKey,
			BaseURL:         cfg.Provider.OpenAIBaseURL,
			ChatModel:       cfg.Provider.ChatModel,
			TranscribeModel: cfg.Provider.TranscribeModel,
			TTSModel:        cfg.Provider.TTSModel,
		})
	}

	var p providers
	switch cfg.Provider.Backend {
	case "ollama":
		client := ollama.New(cfg.Ollama.BaseURL)
		if err := ollama.EnsureReady(ctx, client, cfg.Ollama.Model, progress); err != nil {
			return providers{}, err
		}
		gen := provider.NewOllama(client, cfg.Ollama.Model)
		p.chat = guard.Generator(gen)
		p.analysis = guard.Generator(gen)
	default:
		p.chat = guard.Generator(oa)
		p.analysis = guard.Generator(oa.WithModel(cfg.Provider.AnalysisModel))
	}

	if oa != nil {
		p.transcriber = guard.Transcriber(oa)
		p.synthesizer = guard.Synthesizer(oa)
	} else {
		none := provider.Unavailable{Reason: "set HAVEN_OPENAI_API_KEY to enable speech"}
		p.transcriber = none
		p.synthesizer = none
	}
	return p, nil
}

// newApp wires every service on top of store. The analysis queue is created
// but not started.
func newApp(ctx context.Context, cfg config.Config, store *storage.Store, p providers) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		store:     store,
		profiles:  profile.NewManager(store),
		analytics: analytics.NewAggregator(store, loc),
		resources: resources.NewService(store),
		verifier:  auth.NewVerifier(store),
	}

	analyzer := pipeline.NewAnalyzer(store, p.analysis, a.profiles)
	a.queue = pipeline.NewQueue(analyzer, store, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)
	a.entries = diary.NewService(store, a.queue)
	a.chat = chat.New(a.entries, p.chat, a.profiles)

	var audioStore speech.AudioStore
	if cfg.Speech.GCSBucket != "" {
		gcs, err := speech.NewGCSStore(ctx, cfg.Speech.GCSBucket, cfg.Speech.GCSCredentials, cfg.Speech.OutputTTL)
		if err != nil {
			return nil, fmt.Errorf("opening speech bucket: %w", err)
		}
		a.gcs = gcs
		audioStore = gcs
	} else {
		a.audio = speech.NewLocalStore(cfg.Speech.OutputDir, audioURLPrefix, cfg.Speech.OutputTTL)
		audioStore = a.audio
	}
	a.speech = speech.NewService(p.transcriber, p.synthesizer, audioStore, speech.Config{
		TempDir:        cfg.Speech.TempDir,
		MaxUploadBytes: int64(cfg.Speech.MaxUploadMB) << 20,
	})

	return a, nil
}

// Close releases resources held by the app other than the store.
func (a *app) Close() {
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			slog.Warn("closing speech bucket client", "error", err)
		}
	}
}
