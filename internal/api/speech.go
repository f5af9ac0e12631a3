package api

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/havenapp/haven/internal/provider"
	"github.com/havenapp/haven/internal/speech"
)

// multipartOverhead allows for form fields and boundaries around the file.
const multipartOverhead = 1 << 20

type synthesizeRequest struct {
	Text          string  `json:"text"`
	SSML          string  `json:"ssml"`
	LanguageCode  string  `json:"languageCode" validate:"max=35"`
	VoiceName     string  `json:"voiceName" validate:"max=64"`
	AudioEncoding string  `json:"audioEncoding" validate:"omitempty,oneof=MP3 OGG_OPUS LINEAR16"`
	SpeakingRate  float64 `json:"speakingRate"`
	Pitch         float64 `json:"pitch"`
	VolumeGainDb  float64 `json:"volumeGainDb"`
	Download      bool    `json:"download"`
}

func handleTranscribe(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := deps.Speech.MaxUploadBytes()
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

		if err := r.ParseMultipartForm(8 << 20); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "audio file exceeds %d bytes", limit)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("audio")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "audio file is required")
			return
		}
		defer file.Close()

		if header.Size > limit {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "audio file exceeds %d bytes", limit)
			return
		}

		sampleRate, _ := strconv.Atoi(r.FormValue("sampleRateHertz"))
		text, err := deps.Speech.Transcribe(r.Context(), file, header.Filename, provider.TranscribeOptions{
			LanguageCode:    r.FormValue("languageCode"),
			Encoding:        r.FormValue("encoding"),
			SampleRateHertz: sampleRate,
			Model:           r.FormValue("model"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"transcript": text})
	}
}

func handleSynthesize(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req synthesizeRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		in := provider.SynthesisInput{Text: req.Text, SSML: req.SSML}
		opts := provider.VoiceOptions{
			LanguageCode:  req.LanguageCode,
			VoiceName:     req.VoiceName,
			AudioEncoding: req.AudioEncoding,
			SpeakingRate:  req.SpeakingRate,
			Pitch:         req.Pitch,
			VolumeGainDb:  req.VolumeGainDb,
		}.WithDefaults()

		if req.Download {
			d, err := deps.Speech.SynthesizeDownload(r.Context(), in, opts)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, d)
			return
		}

		audio, err := deps.Speech.Synthesize(r.Context(), in, opts)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", provider.ContentType(opts.AudioEncoding))
		w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
		w.Write(audio)
	}
}

func handleAudio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Audio == nil {
			httpError(w, http.StatusNotFound, "not_found", "audio not found")
			return
		}
		name := chi.URLParam(r, "name")
		f, err := deps.Audio.Open(name)
		if errors.Is(err, speech.ErrInvalidName) || errors.Is(err, fs.ErrNotExist) {
			httpError(w, http.StatusNotFound, "not_found", "audio not found")
			return
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", contentTypeForFile(name))
		w.Header().Set("Cache-Control", "private, no-store")
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

func contentTypeForFile(name string) string {
	switch filepath.Ext(name) {
	case ".ogg":
		return provider.ContentType(provider.EncodingOggOpus)
	case ".wav":
		return provider.ContentType(provider.EncodingLinear16)
	default:
		return provider.ContentType(provider.EncodingMP3)
	}
}
