package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/havenapp/haven/internal/ollama"
)

// OllamaChatter is the subset of the Ollama client used for generation.
type OllamaChatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, opts ollama.ChatOptions) (string, error)
}

// Ollama implements Generator on a local Ollama server.
type Ollama struct {
	client OllamaChatter
	model  string
}

// NewOllama creates a generator for model.
func NewOllama(client OllamaChatter, model string) *Ollama {
	return &Ollama{client: client, model: model}
}

// Generate sends the system prompt, history and prompt as one chat.
func (o *Ollama) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	opts = opts.WithDefaults()

	msgs := make([]ollama.Message, 0, len(opts.History)+2)
	if opts.System != "" {
		msgs = append(msgs, ollama.Message{Role: "system", Content: opts.System})
	}
	for _, m := range opts.History {
		msgs = append(msgs, ollama.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, ollama.Message{Role: "user", Content: prompt})

	out, err := o.client.Chat(ctx, o.model, msgs, ollama.ChatOptions{
		Temperature: opts.Temperature,
		NumPredict:  opts.MaxTokens,
		JSON:        opts.JSON,
	})
	if err != nil {
		return "", fmt.Errorf("%w: ollama chat: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: empty ollama reply", ErrEmptyResult)
	}
	return out, nil
}
