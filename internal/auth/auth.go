// Package auth issues and verifies opaque bearer tokens bound to a user id.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/havenapp/haven/internal/storage"
)

// TokenPrefix marks haven bearer tokens.
const TokenPrefix = "hvn_"

// ErrUnauthenticated is returned for a missing, malformed or unknown token.
var ErrUnauthenticated = errors.New("invalid or missing bearer token")

// TokenStore persists token hashes. Implemented by storage.Store.
type TokenStore interface {
	SaveAPIToken(tokenHash, userID string, createdAt time.Time) error
	LookupAPIToken(tokenHash string) (string, error)
	TouchAPIToken(tokenHash string, at time.Time) error
}

// Verifier maps bearer tokens to user ids. Only token hashes are stored.
type Verifier struct {
	store TokenStore
	now   func() time.Time
}

// NewVerifier creates a Verifier backed by store.
func NewVerifier(store TokenStore) *Verifier {
	return &Verifier{store: store, now: time.Now}
}

// Issue creates a new token for userID and returns it. The plain token is
// not recoverable afterwards.
func (v *Verifier) Issue(userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	token := TokenPrefix + base64.RawURLEncoding.EncodeToString(buf)

	if err := v.store.SaveAPIToken(HashToken(token), userID, v.now().UTC()); err != nil {
		return "", fmt.Errorf("saving token: %w", err)
	}
	return token, nil
}

// Verify returns the user id owning token.
func (v *Verifier) Verify(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, TokenPrefix) || len(token) <= len(TokenPrefix) {
		return "", ErrUnauthenticated
	}

	hash := HashToken(token)
	userID, err := v.store.LookupAPIToken(hash)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("looking up token: %w", err)
	}

	if err := v.store.TouchAPIToken(hash, v.now().UTC()); err != nil {
		slog.Debug("updating token last use", "error", err)
	}
	return userID, nil
}

// HashToken returns the hex sha256 of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type ctxKey struct{}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id stored in ctx.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
