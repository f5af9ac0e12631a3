package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/havenapp/haven/internal/storage"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIssueAndVerify(t *testing.T) {
	s := openStore(t)
	v := NewVerifier(s)

	token, err := v.Issue("u1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("token %q lacks prefix", token)
	}

	userID, err := v.Verify(context.Background(), token)
	if err != nil || userID != "u1" {
		t.Errorf("Verify = %q, %v", userID, err)
	}

	if _, err := s.LookupAPIToken(token); !errors.Is(err, storage.ErrNotFound) {
		t.Error("plain token stored instead of its hash")
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier(openStore(t))
	for _, tok := range []string{"", "hvn_", "Bearer abc", "hvn_unknown"} {
		if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("Verify(%q) err = %v, want ErrUnauthenticated", tok, err)
		}
	}
}

func TestTokensAreUnique(t *testing.T) {
	v := NewVerifier(openStore(t))
	a, _ := v.Issue("u1")
	b, _ := v.Issue("u1")
	if a == b {
		t.Error("two issued tokens are equal")
	}
}

func TestContextUserID(t *testing.T) {
	if _, ok := UserID(context.Background()); ok {
		t.Error("UserID found in empty context")
	}
	ctx := WithUserID(context.Background(), "u9")
	if id, ok := UserID(ctx); !ok || id != "u9" {
		t.Errorf("UserID = %q, %v", id, ok)
	}
}
