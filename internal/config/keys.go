package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "HAVEN_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "HAVEN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_connections", typ: kInt, env: "HAVEN_SERVER_MAX_CONNECTIONS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConnections = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConnections },
	},
	{
		key: "storage.data_dir", typ: kString, env: "HAVEN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "HAVEN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "HAVEN_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "provider.backend", typ: kString, env: "HAVEN_PROVIDER_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Provider.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.Backend },
	},
	{
		key: "provider.openai_api_key", typ: kString, env: "HAVEN_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Provider.OpenAIAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.OpenAIAPIKey },
	},
	{
		key: "provider.openai_base_url", typ: kString, env: "HAVEN_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Provider.OpenAIBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.OpenAIBaseURL },
	},
	{
		key: "provider.chat_model", typ: kString, env: "HAVEN_PROVIDER_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Provider.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.ChatModel },
	},
	{
		key: "provider.analysis_model", typ: kString, env: "HAVEN_PROVIDER_ANALYSIS_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Provider.AnalysisModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.AnalysisModel },
	},
	{
		key: "provider.transcribe_model", typ: kString, env: "HAVEN_PROVIDER_TRANSCRIBE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Provider.TranscribeModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.TranscribeModel },
	},
	{
		key: "provider.tts_model", typ: kString, env: "HAVEN_PROVIDER_TTS_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Provider.TTSModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.TTSModel },
	},
	{
		key: "provider.timeout", typ: kDuration, env: "HAVEN_PROVIDER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Provider.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Provider.Timeout },
	},
	{
		key: "provider.rate_limit", typ: kFloat, env: "HAVEN_PROVIDER_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Provider.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Provider.RateLimit },
	},
	{
		key: "ollama.base_url", typ: kString, env: "HAVEN_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "HAVEN_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "pipeline.workers", typ: kInt, env: "HAVEN_PIPELINE_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.Workers },
	},
	{
		key: "pipeline.queue_size", typ: kInt, env: "HAVEN_PIPELINE_QUEUE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.QueueSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.QueueSize },
	},
	{
		key: "pipeline.retry_interval", typ: kDuration, env: "HAVEN_PIPELINE_RETRY_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.RetryInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pipeline.RetryInterval },
	},
	{
		key: "pipeline.retry_batch", typ: kInt, env: "HAVEN_PIPELINE_RETRY_BATCH",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.RetryBatch = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.RetryBatch },
	},
	{
		key: "speech.max_upload_mb", typ: kInt, env: "HAVEN_SPEECH_MAX_UPLOAD_MB",
		apply:   func(cfg *Config, v any) { cfg.Speech.MaxUploadMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Speech.MaxUploadMB },
	},
	{
		key: "speech.temp_dir", typ: kString, env: "HAVEN_SPEECH_TEMP_DIR",
		apply:   func(cfg *Config, v any) { cfg.Speech.TempDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Speech.TempDir },
	},
	{
		key: "speech.output_dir", typ: kString, env: "HAVEN_SPEECH_OUTPUT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Speech.OutputDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Speech.OutputDir },
	},
	{
		key: "speech.output_ttl", typ: kDuration, env: "HAVEN_SPEECH_OUTPUT_TTL",
		apply:   func(cfg *Config, v any) { cfg.Speech.OutputTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Speech.OutputTTL },
	},
	{
		key: "speech.sweep_interval", typ: kDuration, env: "HAVEN_SPEECH_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Speech.SweepInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Speech.SweepInterval },
	},
	{
		key: "speech.gcs_bucket", typ: kString, env: "HAVEN_SPEECH_GCS_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Speech.GCSBucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Speech.GCSBucket },
	},
	{
		key: "speech.gcs_credentials", typ: kString, env: "HAVEN_SPEECH_GCS_CREDENTIALS",
		apply:   func(cfg *Config, v any) { cfg.Speech.GCSCredentials = v.(string) },
		extract: func(cfg Config) any { return cfg.Speech.GCSCredentials },
	},
	{
		key: "analytics.timezone", typ: kString, env: "HAVEN_ANALYTICS_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Analytics.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Analytics.Timezone },
	},
}

// parseValue converts raw into the Go type of spec.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
