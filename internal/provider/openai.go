package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	TranscribeModel string
	TTSModel        string
}

// OpenAI implements Generator, Transcriber and Synthesizer on the OpenAI API
// or any endpoint speaking the same protocol.
type OpenAI struct {
	client          *openai.Client
	model           string
	transcribeModel string
	ttsModel        string
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	o := &OpenAI{
		client:          openai.NewClientWithConfig(oc),
		model:           cfg.ChatModel,
		transcribeModel: cfg.TranscribeModel,
		ttsModel:        cfg.TTSModel,
	}
	if o.model == "" {
		o.model = openai.GPT4oMini
	}
	if o.transcribeModel == "" {
		o.transcribeModel = openai.Whisper1
	}
	if o.ttsModel == "" {
		o.ttsModel = string(openai.TTSModel1)
	}
	return o
}

// WithModel returns a copy of o that generates with model.
func (o *OpenAI) WithModel(model string) *OpenAI {
	cp := *o
	if model != "" {
		cp.model = model
	}
	return &cp
}

// Generate runs a chat completion with the optional system prompt and history.
func (o *OpenAI) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	opts = opts.WithDefaults()

	var msgs []openai.ChatCompletionMessage
	if opts.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.System})
	}
	for _, m := range opts.History {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	slog.Debug("generating via openai", "model", o.model)
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: no choices", ErrEmptyResult)
	}
	return resp.Choices[0].Message.Content, nil
}

// Transcribe uploads the audio file and returns the recognized text.
func (o *OpenAI) Transcribe(ctx context.Context, audio AudioInput, opts TranscribeOptions) (string, error) {
	opts = opts.WithDefaults()

	model := opts.Model
	if model == DefaultTranscribeModel {
		model = o.transcribeModel
	}

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: audio.Path,
		Language: isoLanguage(opts.LanguageCode),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("%w: transcription: %v", ErrUnavailable, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%w: no transcript", ErrEmptyResult)
	}
	return text, nil
}

// Synthesize renders speech. SSML input is reduced to plain text first. Pitch
// and volume gain have no equivalent in this API and are ignored.
func (o *OpenAI) Synthesize(ctx context.Context, in SynthesisInput, opts VoiceOptions) ([]byte, error) {
	opts = opts.WithDefaults()

	text := in.Text
	if in.SSML != "" {
		text = StripSSML(in.SSML)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: nothing to synthesize", ErrEmptyResult)
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.ttsModel),
		Input:          text,
		Voice:          speechVoice(opts.VoiceName),
		ResponseFormat: speechFormat(opts.AudioEncoding),
		Speed:          opts.SpeakingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: speech: %v", ErrUnavailable, err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: reading speech: %v", ErrUnavailable, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: zero audio bytes", ErrEmptyResult)
	}
	return audio, nil
}

// isoLanguage converts a BCP-47 code such as "en-US" to its ISO-639-1 prefix.
func isoLanguage(code string) string {
	lang, _, _ := strings.Cut(code, "-")
	return strings.ToLower(lang)
}

var openAIVoices = map[string]openai.SpeechVoice{
	"alloy":   openai.VoiceAlloy,
	"ash":     openai.VoiceAsh,
	"ballad":  openai.VoiceBallad,
	"coral":   openai.VoiceCoral,
	"echo":    openai.VoiceEcho,
	"fable":   openai.VoiceFable,
	"onyx":    openai.VoiceOnyx,
	"nova":    openai.VoiceNova,
	"shimmer": openai.VoiceShimmer,
	"verse":   openai.VoiceVerse,
}

func speechVoice(name string) openai.SpeechVoice {
	if v, ok := openAIVoices[strings.ToLower(name)]; ok {
		return v
	}
	slog.Debug("unknown voice, using default", "voice", name)
	return openai.VoiceAlloy
}

func speechFormat(encoding string) openai.SpeechResponseFormat {
	switch strings.ToUpper(encoding) {
	case EncodingOggOpus:
		return openai.SpeechResponseFormatOpus
	case EncodingLinear16:
		return openai.SpeechResponseFormatWav
	default:
		return openai.SpeechResponseFormatMp3
	}
}
