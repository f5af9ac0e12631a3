package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// ErrInvalidName is returned for download names that were not issued by LocalStore.
var ErrInvalidName = errors.New("invalid audio file name")

var namePattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.(mp3|ogg|wav)$`)

// LocalStore writes audio into a directory served under URLPrefix.
type LocalStore struct {
	Dir       string
	URLPrefix string
	TTL       time.Duration

	now func() time.Time
}

// NewLocalStore creates a LocalStore. Files are expected to be removed by an
// OutputSweeper with the same ttl.
func NewLocalStore(dir, urlPrefix string, ttl time.Duration) *LocalStore {
	return &LocalStore{Dir: dir, URLPrefix: urlPrefix, TTL: ttl, now: time.Now}
}

// Put writes data to Dir/name.
func (l *LocalStore) Put(_ context.Context, name string, data []byte, _ string) (Download, error) {
	if !namePattern.MatchString(name) {
		return Download{}, ErrInvalidName
	}
	if err := os.MkdirAll(l.Dir, 0o700); err != nil {
		return Download{}, fmt.Errorf("creating output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.Dir, name), data, 0o600); err != nil {
		return Download{}, fmt.Errorf("writing audio file: %w", err)
	}
	return Download{
		Name:      name,
		URL:       l.URLPrefix + name,
		ExpiresAt: l.now().UTC().Add(l.TTL),
	}, nil
}

// Open returns the named audio file. Names are validated so that only files
// written by Put can be read.
func (l *LocalStore) Open(name string) (*os.File, error) {
	if !namePattern.MatchString(name) {
		return nil, ErrInvalidName
	}
	return os.Open(filepath.Join(l.Dir, name))
}
