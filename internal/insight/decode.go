// Package insight turns free-form model replies into bounded Analysis values.
package insight

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/havenapp/haven/internal/provider"
	"github.com/havenapp/haven/internal/storage"
)

// Defaults used when a field is absent or unusable.
const (
	DefaultTheme   = "personal_reflection"
	DefaultEmotion = "unknown"
	DefaultUrgency = "low"
)

// stringEmotionConfidence is assigned to emotions given as bare names.
const stringEmotionConfidence = 0.5

// Analysis is the decoded result of one entry analysis.
type Analysis struct {
	Sentiment        storage.Sentiment
	Emotions         []storage.Emotion
	Entities         []string
	Themes           []string
	Triggers         []string
	CopingStrategies []string
	Urgency          string
	Summary          string

	// Fallback is true when the reply held no parseable JSON object and every
	// field carries its default.
	Fallback bool
}

// Default returns the all-defaults Analysis.
func Default() Analysis {
	return Analysis{
		Sentiment:        storage.Sentiment{Label: "neutral"},
		Emotions:         []storage.Emotion{{Name: DefaultEmotion, Confidence: 0}},
		Entities:         []string{},
		Themes:           []string{DefaultTheme},
		Triggers:         []string{},
		CopingStrategies: []string{},
		Urgency:          DefaultUrgency,
	}
}

// Decode extracts the first JSON object from raw and maps it onto an Analysis.
// It never fails: missing or wrongly typed fields take their defaults and
// numbers are clamped to their ranges.
func Decode(raw string) Analysis {
	a := Default()

	obj, ok := provider.ExtractJSON(raw)
	if !ok {
		a.Fallback = true
		return a
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		a.Fallback = true
		return a
	}

	a.Sentiment = decodeSentiment(first(m, "sentiment", "sentimentScore", "sentiment_score"))

	if emotions := decodeEmotions(first(m, "emotions")); len(emotions) > 0 {
		a.Emotions = emotions
	}
	a.Entities = decodeStrings(first(m, "entities"), false)
	if themes := decodeStrings(first(m, "themes"), true); len(themes) > 0 {
		a.Themes = themes
	}
	a.Triggers = decodeStrings(first(m, "triggers"), true)
	a.CopingStrategies = decodeStrings(first(m, "copingStrategies", "coping_strategies"), true)

	if u, ok := first(m, "urgency", "urgencyLevel", "urgency_level").(string); ok {
		switch u = strings.ToLower(strings.TrimSpace(u)); u {
		case "low", "medium", "high":
			a.Urgency = u
		}
	}
	if s, ok := first(m, "summary").(string); ok {
		a.Summary = strings.TrimSpace(s)
	}
	return a
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

var labelScores = map[string]float64{
	"positive": 0.5,
	"negative": -0.5,
	"neutral":  0,
	"mixed":    0,
}

func decodeSentiment(v any) storage.Sentiment {
	s := storage.Sentiment{Label: "neutral"}
	switch t := v.(type) {
	case string:
		label := strings.ToLower(strings.TrimSpace(t))
		if score, ok := labelScores[label]; ok {
			s.Score = score
			s.Label = label
		}
	case float64:
		s.Score = clamp(t, -1, 1)
		s.Label = labelFor(s.Score)
	case map[string]any:
		score, hasScore := number(t["score"])
		if hasScore {
			s.Score = clamp(score, -1, 1)
		}
		if mag, ok := number(t["magnitude"]); ok {
			s.Magnitude = math.Max(0, mag)
		}
		label, _ := t["label"].(string)
		label = strings.ToLower(strings.TrimSpace(label))
		switch ls, known := labelScores[label]; {
		case known:
			s.Label = label
			if !hasScore {
				s.Score = ls
			}
		case hasScore:
			s.Label = labelFor(s.Score)
		}
	}
	return s
}

func labelFor(score float64) string {
	switch {
	case score > 0.25:
		return "positive"
	case score < -0.25:
		return "negative"
	default:
		return "neutral"
	}
}

func decodeEmotions(v any) []storage.Emotion {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []storage.Emotion
	for _, item := range list {
		var e storage.Emotion
		switch t := item.(type) {
		case string:
			e = storage.Emotion{Name: t, Confidence: stringEmotionConfidence}
		case map[string]any:
			name, _ := first(t, "name", "emotion").(string)
			conf, _ := number(first(t, "confidence", "score", "intensity"))
			e = storage.Emotion{Name: name, Confidence: clamp(conf, 0, 1)}
		default:
			continue
		}
		e.Name = strings.ToLower(strings.TrimSpace(e.Name))
		if e.Name == "" || seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		out = append(out, e)
	}
	return out
}

// decodeStrings accepts a list or a single string and returns trimmed,
// deduplicated values in input order.
func decodeStrings(v any, lower bool) []string {
	var raw []any
	switch t := v.(type) {
	case []any:
		raw = t
	case string:
		raw = []any{t}
	}

	out := []string{}
	seen := make(map[string]bool)
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func number(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
