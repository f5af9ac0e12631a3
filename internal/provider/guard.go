package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/havenapp/haven/internal/metrics"
)

// Guard bounds every provider call with a timeout and a shared rate limiter
// and records request metrics.
type Guard struct {
	timeout time.Duration
	limiter *rate.Limiter
}

// NewGuard creates a Guard. perSecond <= 0 disables rate limiting.
func NewGuard(timeout time.Duration, perSecond float64) *Guard {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(1, int(perSecond))
	}
	return &Guard{timeout: timeout, limiter: rate.NewLimiter(limit, burst)}
}

func (g *Guard) run(ctx context.Context, capability string, fn func(context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.limiter.Wait(ctx); err != nil {
		metrics.ProviderRequests.WithLabelValues(capability, "rate_limited").Inc()
		return fmt.Errorf("%w: waiting for rate limiter: %v", ErrUnavailable, err)
	}

	start := time.Now()
	err := fn(ctx)
	metrics.ProviderLatency.WithLabelValues(capability).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ProviderRequests.WithLabelValues(capability, "ok").Inc()
	case errors.Is(err, ErrEmptyResult):
		metrics.ProviderRequests.WithLabelValues(capability, "empty").Inc()
	case errors.Is(err, ErrMalformedJSON):
		metrics.ProviderRequests.WithLabelValues(capability, "malformed").Inc()
	default:
		metrics.ProviderRequests.WithLabelValues(capability, "unavailable").Inc()
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

// Generator wraps g so each call passes through the guard.
func (g *Guard) Generator(next Generator) Generator {
	return guardedGenerator{guard: g, next: next}
}

// Transcriber wraps t so each call passes through the guard.
func (g *Guard) Transcriber(next Transcriber) Transcriber {
	return guardedTranscriber{guard: g, next: next}
}

// Synthesizer wraps s so each call passes through the guard.
func (g *Guard) Synthesizer(next Synthesizer) Synthesizer {
	return guardedSynthesizer{guard: g, next: next}
}

type guardedGenerator struct {
	guard *Guard
	next  Generator
}

func (gg guardedGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var out string
	err := gg.guard.run(ctx, "generate", func(ctx context.Context) error {
		var err error
		out, err = gg.next.Generate(ctx, prompt, opts.WithDefaults())
		return err
	})
	return out, err
}

type guardedTranscriber struct {
	guard *Guard
	next  Transcriber
}

func (gt guardedTranscriber) Transcribe(ctx context.Context, audio AudioInput, opts TranscribeOptions) (string, error) {
	var out string
	err := gt.guard.run(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		out, err = gt.next.Transcribe(ctx, audio, opts.WithDefaults())
		return err
	})
	return out, err
}

type guardedSynthesizer struct {
	guard *Guard
	next  Synthesizer
}

func (gs guardedSynthesizer) Synthesize(ctx context.Context, in SynthesisInput, opts VoiceOptions) ([]byte, error) {
	var out []byte
	err := gs.guard.run(ctx, "synthesize", func(ctx context.Context) error {
		var err error
		out, err = gs.next.Synthesize(ctx, in, opts.WithDefaults())
		return err
	})
	return out, err
}
