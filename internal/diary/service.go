// Package diary owns the entry contract: validation, derived metadata,
// ownership checks and handing new content to the analysis queue.
package diary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/havenapp/haven/internal/storage"
)

// Content and listing bounds.
const (
	MaxDiaryContent  = 10000
	MaxChatContent   = 4000
	MaxTags          = 20
	MaxTagLength     = 50
	MaxMoodLength    = 50
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Store is the persistence the Service needs. Implemented by storage.Store.
type Store interface {
	SaveEntry(e storage.Entry) error
	GetEntry(id string) (storage.Entry, error)
	ListEntries(f storage.EntryFilter) ([]storage.Entry, error)
	UpdateEntry(e storage.Entry, contentChanged bool) (storage.Entry, error)
	DeleteEntry(id string) error
	ListInsights(entryID string) ([]storage.Insight, error)
}

// Submitter accepts entry ids for asynchronous analysis. Submit must not block.
type Submitter interface {
	Submit(entryID string) bool
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewEntry is the input to Create.
type NewEntry struct {
	Content string
	Mood    string
	Tags    []string
	Kind    string
	Role    string
}

// Patch holds the fields to change in Update. Nil fields are left unchanged.
type Patch struct {
	Content *string
	Mood    *string
	Tags    *[]string
}

// ListOptions filters List. Zero times are unbounded.
type ListOptions struct {
	Start time.Time
	End   time.Time
	Limit int
	Kind  string
}

// Service implements entry CRUD for a single owner at a time.
type Service struct {
	store Store
	queue Submitter
	clock Clock
}

// NewService creates a Service. queue may be nil, in which case new entries
// wait for the pending sweep.
func NewService(store Store, queue Submitter) *Service {
	return &Service{store: store, queue: queue, clock: realClock{}}
}

// NewServiceWithClock creates a Service with a custom clock (for testing).
func NewServiceWithClock(store Store, queue Submitter, clock Clock) *Service {
	return &Service{store: store, queue: queue, clock: clock}
}

// Create validates and stores a new entry, then queues diary entries for analysis.
func (s *Service) Create(ctx context.Context, ownerID string, in NewEntry) (storage.Entry, error) {
	kind := in.Kind
	if kind == "" {
		kind = storage.KindDiary
	}
	role, err := validateKindRole(kind, in.Role)
	if err != nil {
		return storage.Entry{}, err
	}
	if err := validateContent(kind, in.Content); err != nil {
		return storage.Entry{}, err
	}
	mood, err := normalizeMood(in.Mood)
	if err != nil {
		return storage.Entry{}, err
	}
	tags, err := NormalizeTags(in.Tags)
	if err != nil {
		return storage.Entry{}, err
	}

	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	e := storage.Entry{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Kind:          kind,
		Role:          role,
		Content:       in.Content,
		Mood:          mood,
		Tags:          tags,
		Metadata:      ComputeMetadata(in.Content),
		AnalysisState: storage.StateUnprocessed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.SaveEntry(e); err != nil {
		return storage.Entry{}, fmt.Errorf("saving entry: %w", err)
	}
	e.ContentVersion = 1

	s.enqueue(e)
	return e, nil
}

// Get returns an entry owned by ownerID.
func (s *Service) Get(ctx context.Context, id, ownerID string) (storage.Entry, error) {
	e, err := s.store.GetEntry(id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Entry{}, ErrNotFound
	}
	if err != nil {
		return storage.Entry{}, fmt.Errorf("loading entry %s: %w", id, err)
	}
	if e.OwnerID != ownerID {
		return storage.Entry{}, ErrForbidden
	}
	return e, nil
}

// List returns the owner's entries newest first.
func (s *Service) List(ctx context.Context, ownerID string, opts ListOptions) ([]storage.Entry, error) {
	if !opts.Start.IsZero() && !opts.End.IsZero() && opts.Start.After(opts.End) {
		return nil, invalid("startDate", "must not be after endDate")
	}
	limit := opts.Limit
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	entries, err := s.store.ListEntries(storage.EntryFilter{
		OwnerID: ownerID,
		Kind:    opts.Kind,
		Start:   opts.Start,
		End:     opts.End,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	return entries, nil
}

// Update applies p to an entry. A content change recomputes metadata and
// returns the entry to the unprocessed state.
func (s *Service) Update(ctx context.Context, id, ownerID string, p Patch) (storage.Entry, error) {
	e, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return storage.Entry{}, err
	}

	contentChanged := false
	if p.Content != nil && *p.Content != e.Content {
		if err := validateContent(e.Kind, *p.Content); err != nil {
			return storage.Entry{}, err
		}
		e.Content = *p.Content
		e.Metadata = ComputeMetadata(e.Content)
		contentChanged = true
	}
	if p.Mood != nil {
		if e.Mood, err = normalizeMood(*p.Mood); err != nil {
			return storage.Entry{}, err
		}
	}
	if p.Tags != nil {
		if e.Tags, err = NormalizeTags(*p.Tags); err != nil {
			return storage.Entry{}, err
		}
	}
	e.UpdatedAt = s.clock.Now().UTC().Truncate(time.Microsecond)

	updated, err := s.store.UpdateEntry(e, contentChanged)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Entry{}, ErrNotFound
	}
	if err != nil {
		return storage.Entry{}, fmt.Errorf("updating entry %s: %w", id, err)
	}

	if contentChanged {
		s.enqueue(updated)
	}
	return updated, nil
}

// Delete removes an entry and its insights.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	if _, err := s.Get(ctx, id, ownerID); err != nil {
		return err
	}
	err := s.store.DeleteEntry(id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting entry %s: %w", id, err)
	}
	return nil
}

// Insights returns every insight of an entry owned by ownerID, newest first.
func (s *Service) Insights(ctx context.Context, id, ownerID string) ([]storage.Insight, error) {
	if _, err := s.Get(ctx, id, ownerID); err != nil {
		return nil, err
	}
	insights, err := s.store.ListInsights(id)
	if err != nil {
		return nil, fmt.Errorf("listing insights for %s: %w", id, err)
	}
	if insights == nil {
		insights = []storage.Insight{}
	}
	return insights, nil
}

// LatestInsight returns the newest insight for an entry the caller already
// owns, or false when it has none.
func (s *Service) LatestInsight(ctx context.Context, entryID string) (storage.Insight, bool, error) {
	insights, err := s.store.ListInsights(entryID)
	if err != nil {
		return storage.Insight{}, false, fmt.Errorf("listing insights for %s: %w", entryID, err)
	}
	if len(insights) == 0 {
		return storage.Insight{}, false, nil
	}
	return insights[0], true, nil
}

func (s *Service) enqueue(e storage.Entry) {
	if s.queue == nil || e.Kind != storage.KindDiary {
		return
	}
	if !s.queue.Submit(e.ID) {
		slog.Warn("analysis queue full, entry left for pending sweep", "entry_id", e.ID)
	}
}

// ComputeMetadata derives word and character counts from content.
func ComputeMetadata(content string) storage.EntryMetadata {
	return storage.EntryMetadata{
		WordCount:      len(strings.Fields(content)),
		CharacterCount: utf8.RuneCountInString(content),
	}
}

// NormalizeTags trims, drops empties and deduplicates tags in input order.
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		if utf8.RuneCountInString(t) > MaxTagLength {
			return nil, invalid("tags", "each tag must be at most %d characters", MaxTagLength)
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > MaxTags {
		return nil, invalid("tags", "at most %d tags are allowed", MaxTags)
	}
	return out, nil
}

func validateContent(kind, content string) error {
	if strings.TrimSpace(content) == "" {
		return invalid("content", "must not be empty")
	}
	limit := MaxDiaryContent
	if kind == storage.KindChat {
		limit = MaxChatContent
	}
	if utf8.RuneCountInString(content) > limit {
		return invalid("content", "must be at most %d characters", limit)
	}
	return nil
}

func validateKindRole(kind, role string) (string, error) {
	switch kind {
	case storage.KindDiary:
		return "", nil
	case storage.KindChat:
		switch role {
		case "":
			return RoleUser, nil
		case RoleUser, RoleAssistant:
			return role, nil
		}
		return "", invalid("role", "must be %q or %q", RoleUser, RoleAssistant)
	}
	return "", invalid("kind", "must be %q or %q", storage.KindDiary, storage.KindChat)
}

func normalizeMood(mood string) (string, error) {
	mood = strings.TrimSpace(mood)
	if utf8.RuneCountInString(mood) > MaxMoodLength {
		return "", invalid("mood", "must be at most %d characters", MaxMoodLength)
	}
	return mood, nil
}
