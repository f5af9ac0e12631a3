// Package api exposes haven over HTTP and MCP.
package api

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/havenapp/haven/internal/analytics"
	"github.com/havenapp/haven/internal/chat"
	"github.com/havenapp/haven/internal/diary"
	"github.com/havenapp/haven/internal/metrics"
	"github.com/havenapp/haven/internal/profile"
	"github.com/havenapp/haven/internal/provider"
	"github.com/havenapp/haven/internal/speech"
	"github.com/havenapp/haven/internal/storage"
)

// EntryService is the entry contract. Implemented by diary.Service.
type EntryService interface {
	Create(ctx context.Context, ownerID string, in diary.NewEntry) (storage.Entry, error)
	Get(ctx context.Context, id, ownerID string) (storage.Entry, error)
	List(ctx context.Context, ownerID string, opts diary.ListOptions) ([]storage.Entry, error)
	Update(ctx context.Context, id, ownerID string, p diary.Patch) (storage.Entry, error)
	Delete(ctx context.Context, id, ownerID string) error
	Insights(ctx context.Context, id, ownerID string) ([]storage.Insight, error)
	LatestInsight(ctx context.Context, entryID string) (storage.Insight, bool, error)
}

// PendingProcessor submits one owner's unprocessed entries for analysis.
// Implemented by pipeline.Queue.
type PendingProcessor interface {
	ProcessPendingFor(ctx context.Context, ownerID string, limit int) (int, error)
}

// AnalyticsService computes rollups. Implemented by analytics.Aggregator.
type AnalyticsService interface {
	ComputeStats(ctx context.Context, ownerID string, windowDays int) (analytics.Stats, error)
	AggregateInsights(ctx context.Context, ownerID string, windowDays int) (analytics.InsightSummary, error)
	MoodTimeline(ctx context.Context, ownerID string, windowDays int) ([]analytics.DayMood, error)
}

// ChatService runs the companion conversation. Implemented by chat.Service.
type ChatService interface {
	Send(ctx context.Context, ownerID, message string) (chat.Reply, error)
	History(ctx context.Context, ownerID string, limit int) ([]storage.Entry, error)
	Prompts(ctx context.Context, ownerID string, count int) []string
}

// SpeechService transcribes and synthesizes audio. Implemented by speech.Service.
type SpeechService interface {
	Transcribe(ctx context.Context, r io.Reader, filename string, opts provider.TranscribeOptions) (string, error)
	Synthesize(ctx context.Context, in provider.SynthesisInput, opts provider.VoiceOptions) ([]byte, error)
	SynthesizeDownload(ctx context.Context, in provider.SynthesisInput, opts provider.VoiceOptions) (speech.Download, error)
	MaxUploadBytes() int64
}

// AudioFiles opens published audio. Implemented by speech.LocalStore.
type AudioFiles interface {
	Open(name string) (*os.File, error)
}

// ProfileService reads and updates user profiles. Implemented by profile.Manager.
type ProfileService interface {
	GetProfile(userID string) (profile.Profile, error)
	Update(userID string, fields map[string]any) error
}

// ResourceLister lists wellness resources. Implemented by resources.Service.
type ResourceLister interface {
	List(ctx context.Context, category string) ([]storage.Resource, error)
}

// Deps holds the services behind the HTTP API. Audio may be nil when
// synthesized audio is published elsewhere.
type Deps struct {
	Auth      TokenVerifier
	Entries   EntryService
	Pipeline  PendingProcessor
	Analytics AnalyticsService
	Chat      ChatService
	Speech    SpeechService
	Audio     AudioFiles
	Profiles  ProfileService
	Resources ResourceLister
}

// NewHandler builds the HTTP handler serving every haven route.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/audio/{name}", handleAudio(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Auth))

		r.Post("/entries", handleCreateEntry(deps))
		r.Get("/entries", handleListEntries(deps))
		r.Post("/entries/process-pending", handleProcessPending(deps))
		r.Get("/entries/{id}", handleGetEntry(deps))
		r.Patch("/entries/{id}", handleUpdateEntry(deps))
		r.Delete("/entries/{id}", handleDeleteEntry(deps))
		r.Get("/entries/{id}/insights", handleEntryInsights(deps))

		r.Get("/analytics/emotional-insights", handleEmotionalInsights(deps))
		r.Get("/analytics/stats", handleStats(deps))
		r.Get("/analytics/mood-timeline", handleMoodTimeline(deps))

		r.Post("/chat", handleChat(deps))
		r.Get("/chat/history", handleChatHistory(deps))
		r.Get("/diary/prompts", handlePrompts(deps))

		r.Post("/speech/transcribe", handleTranscribe(deps))
		r.Post("/speech/synthesize", handleSynthesize(deps))

		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))
		r.Get("/resources", handleListResources(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
