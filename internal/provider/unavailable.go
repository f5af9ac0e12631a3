package provider

import (
	"context"
	"fmt"
)

// Unavailable is a Transcriber and Synthesizer for deployments whose backend
// has no speech support. Every call fails with ErrUnavailable.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Transcribe(context.Context, AudioInput, TranscribeOptions) (string, error) {
	return "", fmt.Errorf("%w: transcription: %s", ErrUnavailable, u.Reason)
}

func (u Unavailable) Synthesize(context.Context, SynthesisInput, VoiceOptions) ([]byte, error) {
	return nil, fmt.Errorf("%w: synthesis: %s", ErrUnavailable, u.Reason)
}
