package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/havenapp/haven/internal/diary"
	"github.com/havenapp/haven/internal/profile"
	"github.com/havenapp/haven/internal/provider"
	"github.com/havenapp/haven/internal/speech"
)

const maxRequestBodySize = 1 << 20 // 1MB

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps domain errors onto the JSON error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *diary.ValidationError
	switch {
	case errors.As(err, &ve):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", ve.Error())
	case errors.Is(err, diary.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "entry not found")
	case errors.Is(err, diary.ErrForbidden):
		httpError(w, http.StatusForbidden, "permission_error", "entry belongs to another user")
	case errors.Is(err, speech.ErrInvalidAudio),
		errors.Is(err, speech.ErrTooLarge),
		errors.Is(err, speech.ErrInvalidInput),
		errors.Is(err, profile.ErrUnknownKey),
		errors.Is(err, profile.ErrInvalidValue):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", err.Error())
	case errors.Is(err, provider.ErrUnavailable),
		errors.Is(err, provider.ErrEmptyResult),
		errors.Is(err, provider.ErrMalformedJSON):
		slog.Warn("provider call failed", "path", r.URL.Path, "error", err)
		httpError(w, http.StatusBadGateway, "api_error", "upstream provider failed")
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
