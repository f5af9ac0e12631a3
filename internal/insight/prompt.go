package insight

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an emotional analysis engine for a youth wellness diary. Read the diary entry and reply with ONLY one JSON object, no prose and no markdown.

The object has these fields:
- "sentiment": {"score": number from -1 to 1, "magnitude": number >= 0, "label": "positive" | "negative" | "neutral" | "mixed"}
- "emotions": [{"name": string, "confidence": number from 0 to 1}], strongest first
- "entities": people, places or things named in the entry
- "themes": short topic labels such as "school", "family", "friendship"
- "triggers": situations that caused stress or negative feelings
- "copingStrategies": things the writer did that helped
- "urgency": "low" | "medium" | "high"; use "high" only for signs of crisis or self-harm
- "summary": one sentence, second person, supportive

Rules:
- Use lowercase for emotions, themes, triggers and coping strategies.
- Use empty arrays when nothing applies.`

// BuildPrompt returns the system prompt and user prompt for analyzing an entry.
func BuildPrompt(content, mood string, profileSummary string) (system, prompt string) {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	if profileSummary != "" {
		fmt.Fprintf(&sb, "\n\n[Writer]\n%s", profileSummary)
	}

	var pb strings.Builder
	if mood != "" {
		fmt.Fprintf(&pb, "Self-reported mood: %s\n\n", mood)
	}
	pb.WriteString("Diary entry:\n")
	pb.WriteString(content)

	return sb.String(), pb.String()
}
