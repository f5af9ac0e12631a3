package speech

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/havenapp/haven/internal/provider"
)

type mockTranscriber struct {
	text  string
	err   error
	audio provider.AudioInput
	opts  provider.TranscribeOptions
	seen  bool // file existed during the call
}

func (m *mockTranscriber) Transcribe(_ context.Context, audio provider.AudioInput, opts provider.TranscribeOptions) (string, error) {
	m.audio = audio
	m.opts = opts
	_, err := os.Stat(audio.Path)
	m.seen = err == nil
	return m.text, m.err
}

type mockSynthesizer struct {
	audio []byte
	err   error
	in    provider.SynthesisInput
	opts  provider.VoiceOptions
}

func (m *mockSynthesizer) Synthesize(_ context.Context, in provider.SynthesisInput, opts provider.VoiceOptions) ([]byte, error) {
	m.in = in
	m.opts = opts
	return m.audio, m.err
}

func tempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir not cleaned up: %d files left", len(entries))
	}
}

func TestTranscribe_RemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	tr := &mockTranscriber{text: "hello there"}
	svc := NewService(tr, nil, nil, Config{TempDir: dir})

	got, err := svc.Transcribe(context.Background(), strings.NewReader("RIFF...."), "note.WAV", provider.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "hello there" {
		t.Errorf("transcript = %q", got)
	}
	if !tr.seen {
		t.Error("temp file missing during transcription")
	}
	if tr.opts.Encoding != provider.EncodingLinear16 {
		t.Errorf("encoding = %q, want LINEAR16", tr.opts.Encoding)
	}
	if tr.audio.Filename != "note.WAV" {
		t.Errorf("filename = %q", tr.audio.Filename)
	}
	tempDirEmpty(t, dir)
}

func TestTranscribe_ProviderErrorStillCleansUp(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(&mockTranscriber{err: provider.ErrUnavailable}, nil, nil, Config{TempDir: dir})

	_, err := svc.Transcribe(context.Background(), strings.NewReader("data"), "a.webm", provider.TranscribeOptions{})
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	tempDirEmpty(t, dir)
}

func TestTranscribe_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		filename string
		want     error
	}{
		{"unsupported type", "data", "notes.txt", ErrInvalidAudio},
		{"no extension", "data", "audio", ErrInvalidAudio},
		{"empty", "", "a.mp3", ErrInvalidAudio},
		{"too large", strings.Repeat("x", 11), "a.mp3", ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tr := &mockTranscriber{text: "x"}
			svc := NewService(tr, nil, nil, Config{TempDir: dir, MaxUploadBytes: 10})

			_, err := svc.Transcribe(context.Background(), strings.NewReader(tt.body), tt.filename, provider.TranscribeOptions{})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tr.seen {
				t.Error("transcriber called for rejected upload")
			}
			tempDirEmpty(t, dir)
		})
	}
}

func TestSynthesize_Validation(t *testing.T) {
	syn := &mockSynthesizer{audio: []byte("ID3")}
	svc := NewService(nil, syn, nil, Config{})
	ctx := context.Background()

	cases := []provider.SynthesisInput{
		{},
		{Text: "  "},
		{Text: "hi", SSML: "<speak>hi</speak>"},
		{Text: strings.Repeat("a", MaxSynthesisText+1)},
	}
	for _, in := range cases {
		if _, err := svc.Synthesize(ctx, in, provider.VoiceOptions{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Synthesize(%.20q) err = %v, want ErrInvalidInput", in.Text+in.SSML, err)
		}
	}

	audio, err := svc.Synthesize(ctx, provider.SynthesisInput{Text: "hello"}, provider.VoiceOptions{SpeakingRate: 9})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(audio, []byte("ID3")) {
		t.Errorf("audio = %q", audio)
	}
	if syn.opts.SpeakingRate != 4.0 || syn.opts.VoiceName != provider.DefaultVoice {
		t.Errorf("options not defaulted: %+v", syn.opts)
	}
}

func TestSynthesizeDownload_Local(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "/audio/", 0)
	svc := NewService(nil, &mockSynthesizer{audio: []byte("OggS")}, store, Config{})

	d, err := svc.SynthesizeDownload(context.Background(), provider.SynthesisInput{Text: "hi"},
		provider.VoiceOptions{AudioEncoding: provider.EncodingOggOpus})
	if err != nil {
		t.Fatalf("SynthesizeDownload: %v", err)
	}
	if !strings.HasPrefix(d.URL, "/audio/") || !strings.HasSuffix(d.Name, ".ogg") {
		t.Errorf("download = %+v", d)
	}

	f, err := store.Open(d.Name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	buf := make([]byte, 4)
	f.Read(buf)
	if string(buf) != "OggS" {
		t.Errorf("file content = %q", buf)
	}
}

func TestSynthesizeDownload_NoStore(t *testing.T) {
	svc := NewService(nil, &mockSynthesizer{audio: []byte("x")}, nil, Config{})
	if _, err := svc.SynthesizeDownload(context.Background(), provider.SynthesisInput{Text: "hi"}, provider.VoiceOptions{}); err == nil {
		t.Error("expected error without an audio store")
	}
}

func TestLocalStore_OpenRejectsTraversal(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "/audio/", 0)
	for _, name := range []string{"../haven.db", "x.mp3", "", "12345678-1234-1234-1234-123456789abc.exe"} {
		if _, err := store.Open(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Open(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
}
