package api

import (
	"net/http"
	"strconv"

	"github.com/havenapp/haven/internal/analytics"
)

// windowDays reads ?days=, rejecting values that are not positive integers.
func windowDays(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("days")
	if s == "" {
		return analytics.DefaultWindowDays, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "days must be a positive integer")
		return 0, false
	}
	return analytics.NormalizeWindow(n), true
}

func handleEmotionalInsights(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, ok := windowDays(w, r)
		if !ok {
			return
		}
		summary, err := deps.Analytics.AggregateInsights(r.Context(), currentUser(r), days)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, ok := windowDays(w, r)
		if !ok {
			return
		}
		stats, err := deps.Analytics.ComputeStats(r.Context(), currentUser(r), days)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleMoodTimeline(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, ok := windowDays(w, r)
		if !ok {
			return
		}
		timeline, err := deps.Analytics.MoodTimeline(r.Context(), currentUser(r), days)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, timeline)
	}
}
