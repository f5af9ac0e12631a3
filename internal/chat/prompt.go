package chat

import (
	"fmt"
	"strings"

	"github.com/havenapp/haven/internal/provider"
	"github.com/havenapp/haven/internal/storage"
)

const defaultMaxHistoryTokens = 2000

const companionPrompt = `You are Haven, a warm and supportive wellness companion for young people.
Listen first, reflect back what you hear, and ask at most one gentle question per reply.
Keep replies short: two to five sentences, plain language, no lists unless asked.
You are not a therapist and never diagnose. If the user mentions self-harm, abuse or being in danger, respond with care and encourage them to contact a trusted adult or a local crisis line right away.`

// systemPrompt builds the system message from the companion prompt and the
// user's profile summary.
func systemPrompt(profileSummary string) string {
	if profileSummary == "" {
		return companionPrompt
	}
	return companionPrompt + "\n\n[About the user]\n" + profileSummary
}

// buildHistory converts stored chat messages (newest first) into
// chronological turns, dropping the oldest ones once maxTokens is spent.
func buildHistory(recent []storage.Entry, maxTokens int) []provider.Message {
	if maxTokens <= 0 {
		maxTokens = defaultMaxHistoryTokens
	}

	var kept []provider.Message
	remaining := maxTokens
	for _, e := range recent {
		tokens := EstimateTokens(e.Content)
		if tokens > remaining {
			break
		}
		kept = append(kept, provider.Message{Role: e.Role, Content: e.Content})
		remaining -= tokens
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// DefaultPrompts are served when prompt generation fails.
var DefaultPrompts = []string{
	"What is one thing that made you smile today?",
	"Describe a moment this week when you felt proud of yourself.",
	"What is something that has been on your mind lately?",
	"Who is someone you felt connected to recently, and why?",
	"What would make tomorrow a little easier?",
	"Write about a place where you feel calm.",
	"What is a small win you had today?",
	"If your mood today were weather, what would it be?",
	"What is something you are looking forward to?",
	"What is one kind thing you could do for yourself this week?",
}

func promptsRequest(count int, profileSummary string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write %d short, open-ended diary prompts for a young person keeping a wellness journal.\n", count)
	sb.WriteString("Each prompt is one sentence, kind and non-judgmental, and easy to start writing from.\n")
	if profileSummary != "" {
		fmt.Fprintf(&sb, "Personalise them lightly for this writer: %s\n", profileSummary)
	}
	sb.WriteString(`Reply with ONLY a JSON object: {"prompts": ["...", "..."]}`)
	return sb.String()
}
