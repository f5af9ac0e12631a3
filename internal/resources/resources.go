// Package resources manages static wellness content: built-in help pages and
// documents imported from PDF or text files.
package resources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/havenapp/haven/internal/storage"
)

// DefaultCategory is used when no category is given.
const DefaultCategory = "general"

// ErrEmptyDocument is returned when an imported file holds no text.
var ErrEmptyDocument = errors.New("document contains no text")

// Store persists resources. Implemented by storage.Store.
type Store interface {
	SaveResource(r storage.Resource) error
	ListResources(category string) ([]storage.Resource, error)
}

// Service lists and imports resources.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// List returns resources in category, or every resource when category is empty.
func (s *Service) List(ctx context.Context, category string) ([]storage.Resource, error) {
	res, err := s.store.ListResources(strings.ToLower(strings.TrimSpace(category)))
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	if res == nil {
		res = []storage.Resource{}
	}
	return res, nil
}

// Add stores a resource built from already extracted text.
func (s *Service) Add(ctx context.Context, title, category, body, source string) (storage.Resource, error) {
	body = normalizeText(body)
	if body == "" {
		return storage.Resource{}, ErrEmptyDocument
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return storage.Resource{}, errors.New("title is required")
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = DefaultCategory
	}

	r := storage.Resource{
		ID:        uuid.New().String(),
		Title:     title,
		Category:  category,
		Body:      body,
		Source:    source,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.store.SaveResource(r); err != nil {
		return storage.Resource{}, fmt.Errorf("saving resource: %w", err)
	}
	return r, nil
}

// ImportFile extracts text from a .pdf, .txt or .md file and stores it. An
// empty title defaults to the file name without extension.
func (s *Service) ImportFile(ctx context.Context, path, title, category string) (storage.Resource, error) {
	var body string
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		body, err = ExtractPDFText(path)
	case ".txt", ".md", "":
		var data []byte
		data, err = os.ReadFile(path)
		body = string(data)
	default:
		return storage.Resource{}, fmt.Errorf("unsupported file type %q", ext)
	}
	if err != nil {
		return storage.Resource{}, err
	}

	base := filepath.Base(path)
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return s.Add(ctx, title, category, body, base)
}

// Seed stores the built-in resources when no resources exist yet. It returns
// the number added.
func (s *Service) Seed(ctx context.Context) (int, error) {
	existing, err := s.store.ListResources("")
	if err != nil {
		return 0, fmt.Errorf("listing resources: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for _, b := range builtin {
		if _, err := s.Add(ctx, b.Title, b.Category, b.Body, "builtin"); err != nil {
			return 0, err
		}
	}
	return len(builtin), nil
}

// ExtractPDFText returns the plain text of every page of a PDF file.
func ExtractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(text)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return string(b), nil
}

// normalizeText trims each line and collapses runs of blank lines.
func normalizeText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	var out []string
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
