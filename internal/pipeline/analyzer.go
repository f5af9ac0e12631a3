// Package pipeline runs entry analysis in the background: a claim-guarded
// Analyzer, a bounded Queue of workers and a Sweeper that retries leftovers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/havenapp/haven/internal/insight"
	"github.com/havenapp/haven/internal/metrics"
	"github.com/havenapp/haven/internal/provider"
	"github.com/havenapp/haven/internal/storage"
)

var (
	// ErrNotClaimed means the entry is missing, already analyzing or processed.
	ErrNotClaimed = errors.New("entry not claimable for analysis")
	// ErrStale means the entry content changed while it was being analyzed.
	ErrStale = errors.New("entry content changed during analysis")
)

// AnalysisStore is the persistence the Analyzer needs. Implemented by storage.Store.
type AnalysisStore interface {
	ClaimEntryForAnalysis(id string) (storage.Entry, bool, error)
	CompleteAnalysis(ins storage.Insight, contentVersion int) (bool, error)
	ReleaseAnalysis(id string, contentVersion int) error
}

// ProfileSummarizer returns a short description of a user for prompts.
type ProfileSummarizer interface {
	GetSummary(userID string) (string, error)
}

const (
	analysisMaxTokens   = 1024
	analysisTemperature = 0.2
)

// Analyzer turns one unprocessed entry into a stored Insight.
type Analyzer struct {
	store    AnalysisStore
	gen      provider.Generator
	profiles ProfileSummarizer
	now      func() time.Time
	logger   *slog.Logger
}

// NewAnalyzer creates an Analyzer. profiles may be nil.
func NewAnalyzer(store AnalysisStore, gen provider.Generator, profiles ProfileSummarizer) *Analyzer {
	return &Analyzer{
		store:    store,
		gen:      gen,
		profiles: profiles,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// Analyze claims the entry, asks the generator for an analysis and persists
// the decoded Insight. Provider and storage failures release the claim so
// the entry can be retried. A reply without usable JSON is stored as a
// fallback insight.
func (a *Analyzer) Analyze(ctx context.Context, entryID string) (storage.Insight, error) {
	e, ok, err := a.store.ClaimEntryForAnalysis(entryID)
	if err != nil {
		metrics.PipelineAnalyses.WithLabelValues("failed").Inc()
		return storage.Insight{}, fmt.Errorf("claiming entry %s: %w", entryID, err)
	}
	if !ok {
		metrics.PipelineAnalyses.WithLabelValues("skipped").Inc()
		return storage.Insight{}, ErrNotClaimed
	}

	ins, err := a.analyzeClaimed(ctx, e)
	if err != nil {
		if relErr := a.store.ReleaseAnalysis(e.ID, e.ContentVersion); relErr != nil {
			a.logger.Error("releasing analysis claim", "entry_id", e.ID, "error", relErr)
		}
		metrics.PipelineAnalyses.WithLabelValues("failed").Inc()
		return storage.Insight{}, err
	}

	stored, err := a.store.CompleteAnalysis(ins, e.ContentVersion)
	if err != nil {
		if relErr := a.store.ReleaseAnalysis(e.ID, e.ContentVersion); relErr != nil {
			a.logger.Error("releasing analysis claim", "entry_id", e.ID, "error", relErr)
		}
		metrics.PipelineAnalyses.WithLabelValues("failed").Inc()
		return storage.Insight{}, fmt.Errorf("storing insight for %s: %w", e.ID, err)
	}
	if !stored {
		metrics.PipelineAnalyses.WithLabelValues("stale").Inc()
		return storage.Insight{}, ErrStale
	}

	if ins.Fallback {
		metrics.PipelineAnalyses.WithLabelValues("fallback").Inc()
	} else {
		metrics.PipelineAnalyses.WithLabelValues("processed").Inc()
	}
	return ins, nil
}

func (a *Analyzer) analyzeClaimed(ctx context.Context, e storage.Entry) (storage.Insight, error) {
	var summary string
	if a.profiles != nil {
		s, err := a.profiles.GetSummary(e.OwnerID)
		if err != nil {
			a.logger.Warn("loading profile summary", "user_id", e.OwnerID, "error", err)
		}
		summary = s
	}

	system, prompt := insight.BuildPrompt(e.Content, e.Mood, summary)
	raw, err := a.gen.Generate(ctx, prompt, provider.GenerateOptions{
		System:      system,
		MaxTokens:   analysisMaxTokens,
		Temperature: analysisTemperature,
		JSON:        true,
	})
	if err != nil {
		return storage.Insight{}, fmt.Errorf("generating analysis for %s: %w", e.ID, err)
	}

	an := insight.Decode(raw)
	if an.Fallback {
		a.logger.Warn("analysis reply had no usable JSON, storing defaults",
			"entry_id", e.ID, "error", provider.ErrMalformedJSON)
	}

	return storage.Insight{
		ID:               uuid.New().String(),
		EntryID:          e.ID,
		OwnerID:          e.OwnerID,
		Sentiment:        an.Sentiment,
		Emotions:         an.Emotions,
		Entities:         an.Entities,
		Themes:           an.Themes,
		Triggers:         an.Triggers,
		CopingStrategies: an.CopingStrategies,
		Urgency:          an.Urgency,
		Summary:          an.Summary,
		Fallback:         an.Fallback,
		CreatedAt:        a.now().UTC().Truncate(time.Microsecond),
	}, nil
}
