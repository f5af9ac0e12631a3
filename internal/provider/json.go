package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// ExtractJSON returns the first balanced {...} span in text that is valid
// JSON. Braces inside JSON strings are ignored, so surrounding prose and code
// fences are tolerated; spans like "{x}" are skipped.
func ExtractJSON(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end, ok := balancedEnd(text, start)
		if !ok {
			continue
		}
		if candidate := text[start:end]; json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// balancedEnd returns the index just past the brace closing the one at start.
func balancedEnd(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// GenerateJSON calls g and decodes the first JSON object of the reply into dst.
func GenerateJSON(ctx context.Context, g Generator, prompt string, opts GenerateOptions, dst any) error {
	opts.JSON = true
	raw, err := g.Generate(ctx, prompt, opts)
	if err != nil {
		return err
	}
	obj, ok := ExtractJSON(raw)
	if !ok {
		return fmt.Errorf("%w: no JSON object in reply", ErrMalformedJSON)
	}
	if err := json.Unmarshal([]byte(obj), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return nil
}
