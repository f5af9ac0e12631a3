package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestOpenAI(t *testing.T, h http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1", ChatModel: "gpt-test"})
}

func TestOpenAI_Generate(t *testing.T) {
	var got map[string]any
	o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"hello there"}}]}`)
	})

	out, err := o.Generate(context.Background(), "hi", GenerateOptions{
		System:  "be kind",
		History: []Message{{Role: "assistant", Content: "earlier"}},
		JSON:    true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "hello there" {
		t.Errorf("out = %q", out)
	}
	if got["model"] != "gpt-test" {
		t.Errorf("model = %v", got["model"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("messages = %v, want system+history+prompt", msgs)
	}
	if first := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first role = %v, want system", first["role"])
	}
	if _, ok := got["response_format"]; !ok {
		t.Error("response_format not set for JSON request")
	}
}

func TestOpenAI_GenerateErrors(t *testing.T) {
	o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})
	if _, err := o.Generate(context.Background(), "hi", GenerateOptions{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("401 err = %v, want ErrUnavailable", err)
	}

	empty := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	})
	if _, err := empty.Generate(context.Background(), "hi", GenerateOptions{}); !errors.Is(err, ErrEmptyResult) {
		t.Errorf("no choices err = %v, want ErrEmptyResult", err)
	}
}

func TestOpenAI_Transcribe(t *testing.T) {
	var lang, model string
	o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing multipart: %v", err)
		}
		lang = r.FormValue("language")
		model = r.FormValue("model")
		io.WriteString(w, `{"text":"  I feel better today  "}`)
	})

	path := filepath.Join(t.TempDir(), "clip.webm")
	os.WriteFile(path, []byte("fake audio"), 0o600)

	text, err := o.Transcribe(context.Background(), AudioInput{Path: path}, TranscribeOptions{LanguageCode: "en-GB"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "I feel better today" {
		t.Errorf("text = %q", text)
	}
	if lang != "en" || model != "whisper-1" {
		t.Errorf("language = %q model = %q", lang, model)
	}
}

func TestOpenAI_TranscribeEmpty(t *testing.T) {
	o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":""}`)
	})
	path := filepath.Join(t.TempDir(), "clip.webm")
	os.WriteFile(path, []byte("fake audio"), 0o600)

	if _, err := o.Transcribe(context.Background(), AudioInput{Path: path}, TranscribeOptions{}); !errors.Is(err, ErrEmptyResult) {
		t.Errorf("err = %v, want ErrEmptyResult", err)
	}
}

func TestOpenAI_Synthesize(t *testing.T) {
	var got map[string]any
	o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/ogg")
		w.Write([]byte("OggS-audio"))
	})

	audio, err := o.Synthesize(context.Background(),
		SynthesisInput{SSML: "<speak>Breathe <break/>in</speak>"},
		VoiceOptions{VoiceName: "nova", AudioEncoding: EncodingOggOpus, SpeakingRate: 1.5})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "OggS-audio" {
		t.Errorf("audio = %q", audio)
	}
	if got["input"] != "Breathe in" || got["voice"] != "nova" || got["response_format"] != "opus" || got["speed"] != 1.5 {
		t.Errorf("request = %v", got)
	}
}

func TestOpenAI_SynthesizeZeroBytes(t *testing.T) {
	o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
	})
	if _, err := o.Synthesize(context.Background(), SynthesisInput{Text: "hi"}, VoiceOptions{}); !errors.Is(err, ErrEmptyResult) {
		t.Errorf("err = %v, want ErrEmptyResult", err)
	}
}

func TestSpeechVoiceFallsBack(t *testing.T) {
	if v := speechVoice("en-US-Neural2-F"); v != "alloy" {
		t.Errorf("speechVoice = %q, want alloy", v)
	}
}
