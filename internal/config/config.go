package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Provider  ProviderConfig
	Ollama    OllamaConfig
	Pipeline  PipelineConfig
	Speech    SpeechConfig
	Analytics AnalyticsConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	MaxConnections int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
}

type ProviderConfig struct {
	Backend         string // "openai" or "ollama"
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	ChatModel       string
	AnalysisModel   string
	TranscribeModel string
	TTSModel        string
	Timeout         time.Duration
	RateLimit       float64 // requests per second, 0 = unlimited
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type PipelineConfig struct {
	Workers       int
	QueueSize     int
	RetryInterval time.Duration
	RetryBatch    int
}

type SpeechConfig struct {
	MaxUploadMB    int
	TempDir        string
	OutputDir      string
	OutputTTL      time.Duration
	SweepInterval  time.Duration
	GCSBucket      string
	GCSCredentials string
}

type AnalyticsConfig struct {
	Timezone string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           4100,
			MaxConnections: 256,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Provider: ProviderConfig{
			Backend:         "openai",
			ChatModel:       "gpt-4o-mini",
			AnalysisModel:   "gpt-4o-mini",
			TranscribeModel: "whisper-1",
			TTSModel:        "tts-1",
			Timeout:         30 * time.Second,
			RateLimit:       5,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
		},
		Pipeline: PipelineConfig{
			Workers:       2,
			QueueSize:     256,
			RetryInterval: time.Minute,
			RetryBatch:    50,
		},
		Speech: SpeechConfig{
			MaxUploadMB:   25,
			OutputDir:     filepath.Join(dataDir, "speech"),
			OutputTTL:     time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			Timezone: "UTC",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/haven/config.json, then applies HAVEN_* environment
// overrides. Secrets are read from the environment only.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Validate checks the settings needed to serve requests.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider.Backend {
	case "openai":
		if c.Provider.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("missing required config: OpenAI API key. "+
				"Set it via environment variable HAVEN_OPENAI_API_KEY"))
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("provider.backend must be openai or ollama, got %q", c.Provider.Backend))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.queue_size must be positive, got %d", c.Pipeline.QueueSize))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location returns the analytics time zone.
func (c Config) Location() (*time.Location, error) {
	if c.Analytics.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Analytics.Timezone)
	if err != nil {
		return nil, fmt.Errorf("analytics.timezone: %w", err)
	}
	return loc, nil
}

// SlogLevel maps log.level to a slog level. Unknown values mean info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
