package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Entry kinds.
const (
	KindDiary = "diary"
	KindChat  = "chat"
)

// Analysis states of an entry. An entry is processed only in StateProcessed.
const (
	StateUnprocessed = "unprocessed"
	StateAnalyzing   = "analyzing"
	StateProcessed   = "processed"
)

// Entry is a diary entry or a chat message owned by one user.
type Entry struct {
	ID             string        `json:"id"`
	OwnerID        string        `json:"ownerId"`
	Kind           string        `json:"kind"`
	Role           string        `json:"role,omitempty"`
	Content        string        `json:"content"`
	Mood           string        `json:"mood,omitempty"`
	Tags           []string      `json:"tags"`
	Metadata       EntryMetadata `json:"metadata"`
	Processed      bool          `json:"processed"`
	AnalysisState  string        `json:"analysisState"`
	ContentVersion int           `json:"-"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// EntryMetadata holds stats derived from the entry content.
type EntryMetadata struct {
	WordCount      int `json:"wordCount"`
	CharacterCount int `json:"characterCount"`
}

// EntryFilter selects entries for ListEntries. Zero-valued fields are ignored.
type EntryFilter struct {
	OwnerID string
	Kind    string
	Start   time.Time
	End     time.Time
	Limit   int
}

// Emotion is a named emotion with a confidence in [0,1].
type Emotion struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Sentiment is a bounded score in [-1,1] with a non-negative magnitude.
type Sentiment struct {
	Score     float64 `json:"score"`
	Magnitude float64 `json:"magnitude"`
	Label     string  `json:"label"`
}

// Insight is an AI-derived analysis attached to an entry.
type Insight struct {
	ID               string    `json:"id"`
	EntryID          string    `json:"entryId"`
	OwnerID          string    `json:"ownerId"`
	Sentiment        Sentiment `json:"sentiment"`
	Emotions         []Emotion `json:"emotions"`
	Entities         []string  `json:"entities"`
	Themes           []string  `json:"themes"`
	Triggers         []string  `json:"triggers"`
	CopingStrategies []string  `json:"copingStrategies"`
	Urgency          string    `json:"urgency"`
	Summary          string    `json:"summary,omitempty"`
	Fallback         bool      `json:"fallback"`
	CreatedAt        time.Time `json:"createdAt"`
}

// User is an account that owns entries.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Resource is a piece of static wellness content.
type Resource struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Body      string    `json:"body"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
