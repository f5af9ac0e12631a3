// Package chat runs the companion conversation and diary prompt generation.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/havenapp/haven/internal/diary"
	"github.com/havenapp/haven/internal/provider"
	"github.com/havenapp/haven/internal/storage"
)

// Prompt count bounds.
const (
	DefaultPromptCount = 3
	MaxPromptCount     = 10
)

// Entries stores and lists chat messages. Implemented by diary.Service.
type Entries interface {
	Create(ctx context.Context, ownerID string, in diary.NewEntry) (storage.Entry, error)
	List(ctx context.Context, ownerID string, opts diary.ListOptions) ([]storage.Entry, error)
}

// ProfileSummarizer returns the prompt summary of a user's profile.
type ProfileSummarizer interface {
	GetSummary(userID string) (string, error)
}

// Reply is the outcome of one chat turn.
type Reply struct {
	Reply     string `json:"reply"`
	MessageID string `json:"messageId"`
	ReplyID   string `json:"replyId"`
}

// Service answers chat messages with a Generator and keeps the transcript as
// chat entries.
type Service struct {
	entries  Entries
	gen      provider.Generator
	profiles ProfileSummarizer

	// HistoryMessages is how many recent messages are loaded as context.
	HistoryMessages int
	// MaxHistoryTokens bounds the history passed to the generator.
	MaxHistoryTokens int
	// MaxReplyTokens bounds the generated reply.
	MaxReplyTokens int

	logger *slog.Logger
}

// New creates a Service. profiles may be nil.
func New(entries Entries, gen provider.Generator, profiles ProfileSummarizer) *Service {
	return &Service{
		entries:          entries,
		gen:              gen,
		profiles:         profiles,
		HistoryMessages:  20,
		MaxHistoryTokens: defaultMaxHistoryTokens,
		MaxReplyTokens:   512,
		logger:           slog.Default(),
	}
}

// Send stores the user's message, generates a reply with recent history and
// stores the reply. The user's message is kept even when generation fails.
func (s *Service) Send(ctx context.Context, ownerID, message string) (Reply, error) {
	recent, err := s.entries.List(ctx, ownerID, diary.ListOptions{
		Kind:  storage.KindChat,
		Limit: s.HistoryMessages,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("loading chat history: %w", err)
	}

	msg, err := s.entries.Create(ctx, ownerID, diary.NewEntry{
		Content: message,
		Kind:    storage.KindChat,
		Role:    diary.RoleUser,
	})
	if err != nil {
		return Reply{}, err
	}

	text, err := s.gen.Generate(ctx, message, provider.GenerateOptions{
		MaxTokens: s.MaxReplyTokens,
		System:    systemPrompt(s.summary(ownerID)),
		History:   buildHistory(recent, s.MaxHistoryTokens),
	})
	if err != nil {
		return Reply{}, fmt.Errorf("generating reply: %w", err)
	}

	reply, err := s.entries.Create(ctx, ownerID, diary.NewEntry{
		Content: truncateRunes(strings.TrimSpace(text), diary.MaxChatContent),
		Kind:    storage.KindChat,
		Role:    diary.RoleAssistant,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("saving reply: %w", err)
	}

	return Reply{Reply: reply.Content, MessageID: msg.ID, ReplyID: reply.ID}, nil
}

// History returns the latest limit chat messages, oldest first.
func (s *Service) History(ctx context.Context, ownerID string, limit int) ([]storage.Entry, error) {
	msgs, err := s.entries.List(ctx, ownerID, diary.ListOptions{Kind: storage.KindChat, Limit: limit})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Prompts returns count diary prompts. Generation failures fall back to
// DefaultPrompts and are only logged.
func (s *Service) Prompts(ctx context.Context, ownerID string, count int) []string {
	switch {
	case count <= 0:
		count = DefaultPromptCount
	case count > MaxPromptCount:
		count = MaxPromptCount
	}

	var out struct {
		Prompts []string `json:"prompts"`
	}
	err := provider.GenerateJSON(ctx, s.gen, promptsRequest(count, s.summary(ownerID)),
		provider.GenerateOptions{MaxTokens: 512, Temperature: 0.9}, &out)
	if err != nil {
		s.logger.Warn("generating diary prompts, using defaults", "error", err)
		return defaultPrompts(count)
	}

	var prompts []string
	for _, p := range out.Prompts {
		if p = strings.TrimSpace(p); p != "" {
			prompts = append(prompts, p)
		}
		if len(prompts) == count {
			break
		}
	}
	if len(prompts) == 0 {
		return defaultPrompts(count)
	}
	return prompts
}

func (s *Service) summary(ownerID string) string {
	if s.profiles == nil {
		return ""
	}
	summary, err := s.profiles.GetSummary(ownerID)
	if err != nil {
		s.logger.Warn("loading profile summary", "user_id", ownerID, "error", err)
		return ""
	}
	return summary
}

func defaultPrompts(count int) []string {
	if count > len(DefaultPrompts) {
		count = len(DefaultPrompts)
	}
	out := make([]string, count)
	copy(out, DefaultPrompts)
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
