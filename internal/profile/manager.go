package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

var (
	// ErrUnknownKey is returned when setting a key that is not part of the profile.
	ErrUnknownKey = errors.New("unknown profile key")
	// ErrInvalidValue is returned when a value has the wrong type for its key.
	ErrInvalidValue = errors.New("invalid profile value")
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SetProfileKey(userID, key, value string) error
	DeleteProfileKey(userID, key string) error
	GetAllProfileKeys(userID string) (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	profile  Profile
	cachedAt time.Time
}

// Manager provides cached, structured access to user profiles stored in SQLite.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// GetProfile returns the user's profile. A user with no stored keys gets a
// zero-value Profile.
func (m *Manager) GetProfile(userID string) (Profile, error) {
	m.mu.RLock()
	if c, ok := m.cache[userID]; ok && m.clock.Now().Before(c.cachedAt.Add(m.ttl)) {
		p := deepCopyProfile(c.profile)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if c, ok := m.cache[userID]; ok && m.clock.Now().Before(c.cachedAt.Add(m.ttl)) {
		return deepCopyProfile(c.profile), nil
	}

	keys, err := m.store.GetAllProfileKeys(userID)
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile keys: %w", err)
	}

	p := buildProfile(keys)
	m.cache[userID] = cacheEntry{profile: p, cachedAt: m.clock.Now()}
	return deepCopyProfile(p), nil
}

// SetField persists one profile key and invalidates the user's cache entry.
// String keys take a string; list keys take a []string (or a single string).
// An empty value removes the key.
func (m *Manager) SetField(userID, key string, value any) error {
	return m.Update(userID, map[string]any{key: value})
}

// Update applies several fields. Every key and value is validated before
// anything is written.
func (m *Manager) Update(userID string, fields map[string]any) error {
	encoded := make(map[string]string, len(fields))
	for k, v := range fields {
		if !KnownKey(k) {
			return fmt.Errorf("%w: %q", ErrUnknownKey, k)
		}
		str, err := encodeValue(k, v)
		if err != nil {
			return err
		}
		encoded[k] = str
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	defer delete(m.cache, userID)

	for k, str := range encoded {
		var err error
		if str == "" {
			err = m.store.DeleteProfileKey(userID, k)
		} else {
			err = m.store.SetProfileKey(userID, k, str)
		}
		if err != nil {
			return fmt.Errorf("setting profile key %q: %w", k, err)
		}
	}
	return nil
}

func encodeValue(key string, value any) (string, error) {
	if !listKeys[key] {
		switch v := value.(type) {
		case nil:
			return "", nil
		case string:
			return strings.TrimSpace(v), nil
		default:
			return "", fmt.Errorf("%w: %q expects a string, got %T", ErrInvalidValue, key, value)
		}
	}

	var items []string
	switch v := value.(type) {
	case nil:
	case string:
		if s := strings.TrimSpace(v); s != "" {
			items = []string{s}
		}
	case []string:
		items = v
	case []any:
		for _, it := range v {
			s, ok := it.(string)
			if !ok {
				return "", fmt.Errorf("%w: %q expects a list of strings", ErrInvalidValue, key)
			}
			items = append(items, s)
		}
	default:
		return "", fmt.Errorf("%w: %q expects a list of strings, got %T", ErrInvalidValue, key, value)
	}

	var clean []string
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return "", nil
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("marshalling value for key %q: %w", key, err)
	}
	return string(b), nil
}

// GetSummary returns a compact description of the user for a system prompt.
// It is empty when the user has not configured a profile.
func (m *Manager) GetSummary(userID string) (string, error) {
	p, err := m.GetProfile(userID)
	if err != nil {
		return "", fmt.Errorf("getting profile for summary: %w", err)
	}
	return summarize(p), nil
}

// maxSummaryChars caps the summary to stay under ~500 tokens (4 chars/token).
const maxSummaryChars = 2000

func summarize(p Profile) string {
	var parts []string

	if p.Identity.Name != "" {
		parts = append(parts, fmt.Sprintf("Name: %s.", p.Identity.Name))
	}
	if p.Identity.AgeGroup != "" {
		parts = append(parts, fmt.Sprintf("Age group: %s.", p.Identity.AgeGroup))
	}
	if p.Identity.Pronouns != "" {
		parts = append(parts, fmt.Sprintf("Pronouns: %s.", p.Identity.Pronouns))
	}
	if p.Communication.Tone != "" {
		parts = append(parts, fmt.Sprintf("Prefers a %s tone.", p.Communication.Tone))
	}
	if p.Preferences.Language != "" {
		parts = append(parts, fmt.Sprintf("Language: %s.", p.Preferences.Language))
	}
	if len(p.Interests) > 0 {
		parts = append(parts, fmt.Sprintf("Interests: %s.", strings.Join(p.Interests, ", ")))
	}
	if len(p.Goals) > 0 {
		parts = append(parts, fmt.Sprintf("Goals: %s.", strings.Join(p.Goals, ", ")))
	}
	if len(p.Coping) > 0 {
		parts = append(parts, fmt.Sprintf("Finds these helpful: %s.", strings.Join(p.Coping, ", ")))
	}

	if len(parts) == 0 {
		return ""
	}

	summary := strings.Join(parts, " ")
	if len(summary) > maxSummaryChars {
		// Ensure we don't split a multi-byte UTF-8 character.
		end := maxSummaryChars
		for end > 0 && !utf8.RuneStart(summary[end]) {
			end--
		}
		if idx := strings.LastIndex(summary[:end], " "); idx > 0 {
			summary = summary[:idx]
		} else {
			summary = summary[:end]
		}
	}
	return summary
}

func deepCopyProfile(p Profile) Profile {
	cp := p
	cp.Interests = copyStrings(p.Interests)
	cp.Goals = copyStrings(p.Goals)
	cp.Coping = copyStrings(p.Coping)
	return cp
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// buildProfile assembles a Profile from flat key-value pairs.
func buildProfile(keys map[string]string) Profile {
	var p Profile

	p.Identity.Name = keys[KeyName]
	p.Identity.AgeGroup = keys[KeyAgeGroup]
	p.Identity.Pronouns = keys[KeyPronouns]
	p.Communication.Tone = keys[KeyTone]
	p.Preferences.Language = keys[KeyLanguage]
	p.Preferences.Voice = keys[KeyVoice]

	unmarshalProfileKey(keys, KeyInterests, &p.Interests)
	unmarshalProfileKey(keys, KeyGoals, &p.Goals)
	unmarshalProfileKey(keys, KeyCoping, &p.Coping)

	return p
}

// unmarshalProfileKey unmarshals a JSON value from keys into target, logging
// a warning if the value is present but malformed.
func unmarshalProfileKey(keys map[string]string, key string, target any) {
	v, ok := keys[key]
	if !ok {
		return
	}
	if err := json.Unmarshal([]byte(v), target); err != nil {
		slog.Warn("malformed profile key, skipping", "key", key, "error", err)
	}
}
