package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/havenapp/haven/internal/diary"
	"github.com/havenapp/haven/internal/storage"
)

const maxPendingBatch = 500

type createEntryRequest struct {
	Content string   `json:"content" validate:"notblank,max=10000"`
	Mood    string   `json:"mood" validate:"max=50"`
	Tags    []string `json:"tags" validate:"max=20,dive,max=50"`
}

type updateEntryRequest struct {
	Content *string   `json:"content" validate:"omitempty,max=10000"`
	Mood    *string   `json:"mood" validate:"omitempty,max=50"`
	Tags    *[]string `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

// entryResponse is an entry with its latest insight when requested.
type entryResponse struct {
	storage.Entry
	Insight *storage.Insight `json:"insight,omitempty"`
}

func handleCreateEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createEntryRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		e, err := deps.Entries.Create(r.Context(), currentUser(r), diary.NewEntry{
			Content: req.Content,
			Mood:    req.Mood,
			Tags:    req.Tags,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func handleListEntries(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start, err := parseDateParam(q.Get("startDate"), false)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "startDate: %v", err)
			return
		}
		end, err := parseDateParam(q.Get("endDate"), true)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "endDate: %v", err)
			return
		}
		includeInsights, _ := strconv.ParseBool(q.Get("includeInsights"))

		entries, err := deps.Entries.List(r.Context(), currentUser(r), diary.ListOptions{
			Start: start,
			End:   end,
			Limit: parseIntParam(r, "limit", diary.DefaultListLimit, diary.MaxListLimit),
			Kind:  storage.KindDiary,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		out := make([]entryResponse, len(entries))
		for i, e := range entries {
			out[i].Entry = e
			if !includeInsights || !e.Processed {
				continue
			}
			ins, ok, err := deps.Entries.LatestInsight(r.Context(), e.ID)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			if ok {
				out[i].Insight = &ins
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := deps.Entries.Get(r.Context(), chi.URLParam(r, "id"), currentUser(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func handleUpdateEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateEntryRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		e, err := deps.Entries.Update(r.Context(), chi.URLParam(r, "id"), currentUser(r), diary.Patch{
			Content: req.Content,
			Mood:    req.Mood,
			Tags:    req.Tags,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func handleDeleteEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Entries.Delete(r.Context(), chi.URLParam(r, "id"), currentUser(r)); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleEntryInsights(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		insights, err := deps.Entries.Insights(r.Context(), chi.URLParam(r, "id"), currentUser(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, insights)
	}
}

func handleProcessPending(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Pipeline == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "analysis pipeline is not running")
			return
		}
		limit := parseIntParam(r, "limit", 0, maxPendingBatch)

		n, err := deps.Pipeline.ProcessPendingFor(r.Context(), currentUser(r), limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]int{"submitted": n})
	}
}

// parseDateParam accepts RFC 3339 timestamps or YYYY-MM-DD dates (UTC). A date
// used as an upper bound covers the whole day.
func parseDateParam(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return t, nil
}
