// Package speech validates audio uploads and synthesis requests, keeps
// uploaded audio in short-lived temp files and publishes synthesized audio.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/havenapp/haven/internal/provider"
)

// MaxSynthesisText is the largest accepted text or SSML input, in runes.
const MaxSynthesisText = 5000

// DefaultMaxUploadBytes is the upload cap used when Config leaves it zero.
const DefaultMaxUploadBytes = 25 << 20

var (
	// ErrInvalidAudio means the upload is missing, empty or of an unsupported type.
	ErrInvalidAudio = errors.New("invalid audio upload")
	// ErrTooLarge means the upload exceeds the configured size.
	ErrTooLarge = errors.New("audio upload too large")
	// ErrInvalidInput means the synthesis input is empty, ambiguous or too long.
	ErrInvalidInput = errors.New("invalid synthesis input")
)

// encodingByExt maps accepted upload extensions to a recognition encoding.
var encodingByExt = map[string]string{
	".webm": provider.EncodingWebmOpus,
	".ogg":  provider.EncodingOggOpus,
	".oga":  provider.EncodingOggOpus,
	".opus": provider.EncodingOggOpus,
	".wav":  provider.EncodingLinear16,
	".flac": provider.EncodingFLAC,
	".mp3":  provider.EncodingMP3,
	".mpga": provider.EncodingMP3,
	".mpeg": provider.EncodingMP3,
	".m4a":  "MP4",
	".mp4":  "MP4",
}

// Config holds the file-system settings of the Service.
type Config struct {
	TempDir        string
	MaxUploadBytes int64
}

// Download describes published synthesized audio.
type Download struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AudioStore publishes synthesized audio and returns where to fetch it.
type AudioStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (Download, error)
}

// Service wraps the transcription and synthesis providers.
type Service struct {
	transcriber provider.Transcriber
	synthesizer provider.Synthesizer
	store       AudioStore
	cfg         Config
}

// NewService creates a Service. store may be nil, which disables downloads.
func NewService(tr provider.Transcriber, syn provider.Synthesizer, store AudioStore, cfg Config) *Service {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Service{transcriber: tr, synthesizer: syn, store: store, cfg: cfg}
}

// MaxUploadBytes returns the upload cap.
func (s *Service) MaxUploadBytes() int64 {
	return s.cfg.MaxUploadBytes
}

// Transcribe copies the upload into a temp file, hands it to the transcriber
// and removes the file before returning, on every path.
func (s *Service) Transcribe(ctx context.Context, r io.Reader, filename string, opts provider.TranscribeOptions) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	encoding, ok := encodingByExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: unsupported file type %q", ErrInvalidAudio, ext)
	}
	if opts.Encoding == "" {
		opts.Encoding = encoding
	}

	if err := os.MkdirAll(s.cfg.TempDir, 0o700); err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	f, err := os.CreateTemp(s.cfg.TempDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	n, err := io.Copy(f, io.LimitReader(r, s.cfg.MaxUploadBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty file", ErrInvalidAudio)
	}
	if n > s.cfg.MaxUploadBytes {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.cfg.MaxUploadBytes)
	}

	text, err := s.transcriber.Transcribe(ctx, provider.AudioInput{Path: path, Filename: filepath.Base(filename)}, opts)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Synthesize validates in and returns encoded audio.
func (s *Service) Synthesize(ctx context.Context, in provider.SynthesisInput, opts provider.VoiceOptions) ([]byte, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return s.synthesizer.Synthesize(ctx, in, opts.WithDefaults())
}

// SynthesizeDownload synthesizes audio and publishes it to the audio store.
func (s *Service) SynthesizeDownload(ctx context.Context, in provider.SynthesisInput, opts provider.VoiceOptions) (Download, error) {
	if s.store == nil {
		return Download{}, errors.New("audio downloads are not configured")
	}
	opts = opts.WithDefaults()
	audio, err := s.Synthesize(ctx, in, opts)
	if err != nil {
		return Download{}, err
	}

	name := uuid.New().String() + provider.Extension(opts.AudioEncoding)
	d, err := s.store.Put(ctx, name, audio, provider.ContentType(opts.AudioEncoding))
	if err != nil {
		return Download{}, fmt.Errorf("storing audio: %w", err)
	}
	return d, nil
}

func validateInput(in provider.SynthesisInput) error {
	text, ssml := strings.TrimSpace(in.Text), strings.TrimSpace(in.SSML)
	switch {
	case text == "" && ssml == "":
		return fmt.Errorf("%w: text or ssml is required", ErrInvalidInput)
	case text != "" && ssml != "":
		return fmt.Errorf("%w: provide text or ssml, not both", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Text+in.SSML) > MaxSynthesisText {
		return fmt.Errorf("%w: input exceeds %d characters", ErrInvalidInput, MaxSynthesisText)
	}
	return nil
}
