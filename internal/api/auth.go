package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/havenapp/haven/internal/auth"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// BearerAuth rejects requests without a valid bearer token and stores the
// token's user id in the request context.
func BearerAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			userID, err := v.Verify(r.Context(), header[len(prefix):])
			if err != nil {
				if !errors.Is(err, auth.ErrUnauthenticated) {
					slog.Error("verifying bearer token", "error", err)
					httpError(w, http.StatusInternalServerError, "api_error", "could not verify credentials")
					return
				}
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		})
	}
}

// currentUser returns the authenticated user id. Routes behind BearerAuth
// always have one.
func currentUser(r *http.Request) string {
	id, _ := auth.UserID(r.Context())
	return id
}
