package api

import (
	"net/http"

	"github.com/havenapp/haven/internal/chat"
)

type chatRequest struct {
	Message string `json:"message" validate:"notblank,max=4000"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		reply, err := deps.Chat.Send(r.Context(), currentUser(r), req.Message)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func handleChatHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := deps.Chat.History(r.Context(), currentUser(r), parseIntParam(r, "limit", 50, 100))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handlePrompts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := parseIntParam(r, "count", chat.DefaultPromptCount, chat.MaxPromptCount)
		prompts := deps.Chat.Prompts(r.Context(), currentUser(r), count)
		writeJSON(w, http.StatusOK, map[string][]string{"prompts": prompts})
	}
}
