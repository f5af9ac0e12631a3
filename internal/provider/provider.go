// Package provider adapts managed speech and language APIs behind three small
// interfaces: Transcriber, Synthesizer and Generator.
package provider

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnavailable covers transport, auth, timeout and rate-limit failures.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrEmptyResult means the provider answered but with nothing usable.
	ErrEmptyResult = errors.New("provider returned an empty result")
	// ErrMalformedJSON means a structured response could not be parsed.
	ErrMalformedJSON = errors.New("provider returned malformed JSON")
)

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio AudioInput, opts TranscribeOptions) (string, error)
}

// Synthesizer turns text or SSML into encoded audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, in SynthesisInput, opts VoiceOptions) ([]byte, error)
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// AudioInput points at an uploaded audio file on local disk. The caller owns
// the file and removes it once Transcribe returns.
type AudioInput struct {
	Path     string
	Filename string
}

// TranscribeOptions configures speech recognition.
type TranscribeOptions struct {
	LanguageCode    string
	Encoding        string
	SampleRateHertz int
	Model           string
}

// SynthesisInput holds exactly one of Text or SSML.
type SynthesisInput struct {
	Text string
	SSML string
}

// VoiceOptions configures speech synthesis.
type VoiceOptions struct {
	LanguageCode  string
	VoiceName     string
	AudioEncoding string
	SpeakingRate  float64
	Pitch         float64
	VolumeGainDb  float64
}

// Message is a prior conversation turn passed to Generate.
type Message struct {
	Role    string
	Content string
}

// GenerateOptions configures text generation.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	System      string
	History     []Message
	JSON        bool
}

// Audio encodings accepted by the synthesis and transcription paths.
const (
	EncodingMP3      = "MP3"
	EncodingOggOpus  = "OGG_OPUS"
	EncodingLinear16 = "LINEAR16"
	EncodingWebmOpus = "WEBM_OPUS"
	EncodingFLAC     = "FLAC"
)

const (
	DefaultLanguageCode     = "en-US"
	DefaultSampleRateHertz  = 48000
	DefaultTranscribeModel  = "whisper-1"
	DefaultVoice            = "alloy"
	DefaultMaxTokens        = 1024
	DefaultTemperature      = 0.7
	defaultTranscribeFormat = EncodingWebmOpus
)

// WithDefaults fills zero-valued transcription options.
func (o TranscribeOptions) WithDefaults() TranscribeOptions {
	if o.LanguageCode == "" {
		o.LanguageCode = DefaultLanguageCode
	}
	if o.Encoding == "" {
		o.Encoding = defaultTranscribeFormat
	}
	if o.SampleRateHertz <= 0 {
		o.SampleRateHertz = DefaultSampleRateHertz
	}
	if o.Model == "" {
		o.Model = DefaultTranscribeModel
	}
	return o
}

// WithDefaults fills zero-valued voice options and clamps numeric ranges.
func (o VoiceOptions) WithDefaults() VoiceOptions {
	if o.LanguageCode == "" {
		o.LanguageCode = DefaultLanguageCode
	}
	if o.VoiceName == "" {
		o.VoiceName = DefaultVoice
	}
	if o.AudioEncoding == "" {
		o.AudioEncoding = EncodingMP3
	}
	if o.SpeakingRate == 0 {
		o.SpeakingRate = 1.0
	}
	o.SpeakingRate = clamp(o.SpeakingRate, 0.25, 4.0)
	o.Pitch = clamp(o.Pitch, -20, 20)
	o.VolumeGainDb = clamp(o.VolumeGainDb, -96, 16)
	return o
}

// WithDefaults fills zero-valued generation options.
func (o GenerateOptions) WithDefaults() GenerateOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	o.Temperature = clamp(o.Temperature, 0, 2)
	return o
}

// ContentType returns the MIME type for a synthesis encoding.
func ContentType(encoding string) string {
	switch strings.ToUpper(encoding) {
	case EncodingOggOpus:
		return "audio/ogg"
	case EncodingLinear16:
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}

// Extension returns the file extension, with dot, for a synthesis encoding.
func Extension(encoding string) string {
	switch strings.ToUpper(encoding) {
	case EncodingOggOpus:
		return ".ogg"
	case EncodingLinear16:
		return ".wav"
	default:
		return ".mp3"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
