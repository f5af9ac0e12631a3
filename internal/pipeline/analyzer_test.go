package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/havenapp/haven/internal/provider"
	"github.com/havenapp/haven/internal/storage"
)

type mockGenerator struct {
	mu     sync.Mutex
	reply  string
	err    error
	calls  int
	before func()
}

func (m *mockGenerator) Generate(_ context.Context, _ string, _ provider.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.calls++
	before := m.before
	m.mu.Unlock()
	if before != nil {
		before()
	}
	return m.reply, m.err
}

type stubProfiles struct{ summary string }

func (s stubProfiles) GetSummary(string) (string, error) { return s.summary, nil }

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func seedEntries(t *testing.T, s *storage.Store, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("entry-%d", i)
		at := t0.Add(time.Duration(i) * time.Minute)
		err := s.SaveEntry(storage.Entry{
			ID: ids[i], OwnerID: "u1", Kind: storage.KindDiary, Content: "I felt anxious before the exam",
			CreatedAt: at, UpdatedAt: at,
		})
		if err != nil {
			t.Fatalf("SaveEntry: %v", err)
		}
	}
	return ids
}

const goodReply = `{"sentiment":{"score":-0.4,"magnitude":0.6,"label":"negative"},"emotions":[{"name":"anxiety","confidence":0.9}],"themes":["school"],"triggers":["exam"],"urgency":"low"}`

func TestAnalyze_StoresInsight(t *testing.T) {
	s := openStore(t)
	ids := seedEntries(t, s, 1)
	a := NewAnalyzer(s, &mockGenerator{reply: "Here it is: " + goodReply}, stubProfiles{summary: "Age group: teen"})

	ins, err := a.Analyze(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ins.Sentiment.Label != "negative" || ins.Emotions[0].Name != "anxiety" || ins.Fallback {
		t.Errorf("insight = %+v", ins)
	}

	e, _ := s.GetEntry(ids[0])
	if !e.Processed {
		t.Error("entry not processed after analysis")
	}
	stored, _ := s.ListInsights(ids[0])
	if len(stored) != 1 || stored[0].OwnerID != "u1" {
		t.Errorf("stored insights = %+v", stored)
	}
}

func TestAnalyze_ProviderFailureReleasesClaim(t *testing.T) {
	s := openStore(t)
	ids := seedEntries(t, s, 1)
	a := NewAnalyzer(s, &mockGenerator{err: provider.ErrUnavailable}, nil)

	if _, err := a.Analyze(context.Background(), ids[0]); !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	e, _ := s.GetEntry(ids[0])
	if e.AnalysisState != storage.StateUnprocessed {
		t.Errorf("state = %s, want unprocessed", e.AnalysisState)
	}
	if n, _ := s.CountInsights(); n != 0 {
		t.Errorf("insights = %d, want 0", n)
	}
}

func TestAnalyze_MalformedReplyStoresFallback(t *testing.T) {
	s := openStore(t)
	ids := seedEntries(t, s, 1)
	a := NewAnalyzer(s, &mockGenerator{reply: "I'm not able to produce JSON today."}, nil)

	ins, err := a.Analyze(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !ins.Fallback || ins.Themes[0] != "personal_reflection" {
		t.Errorf("insight = %+v, want fallback defaults", ins)
	}
	e, _ := s.GetEntry(ids[0])
	if !e.Processed {
		t.Error("entry not processed after fallback analysis")
	}
}

func TestAnalyze_NotClaimable(t *testing.T) {
	s := openStore(t)
	ids := seedEntries(t, s, 1)
	gen := &mockGenerator{reply: goodReply}
	a := NewAnalyzer(s, gen, nil)

	if _, err := a.Analyze(context.Background(), ids[0]); err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	if _, err := a.Analyze(context.Background(), ids[0]); !errors.Is(err, ErrNotClaimed) {
		t.Errorf("second Analyze err = %v, want ErrNotClaimed", err)
	}
	if _, err := a.Analyze(context.Background(), "missing"); !errors.Is(err, ErrNotClaimed) {
		t.Errorf("missing entry err = %v, want ErrNotClaimed", err)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
}

func TestAnalyze_ContentChangedMidFlight(t *testing.T) {
	s := openStore(t)
	ids := seedEntries(t, s, 1)
	gen := &mockGenerator{reply: goodReply}
	gen.before = func() {
		e, _ := s.GetEntry(ids[0])
		e.Content = "actually the exam went fine"
		if _, err := s.UpdateEntry(e, true); err != nil {
			t.Errorf("UpdateEntry: %v", err)
		}
	}
	a := NewAnalyzer(s, gen, nil)

	if _, err := a.Analyze(context.Background(), ids[0]); !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	e, _ := s.GetEntry(ids[0])
	if e.Processed || e.AnalysisState != storage.StateUnprocessed {
		t.Errorf("state = %s, want unprocessed", e.AnalysisState)
	}
	if n, _ := s.CountInsights(); n != 0 {
		t.Errorf("insights = %d, want 0", n)
	}

	gen.before = nil
	if _, err := a.Analyze(context.Background(), ids[0]); err != nil {
		t.Errorf("retry after stale: %v", err)
	}
}

func TestAnalyze_FailureKeepsNewerClaim(t *testing.T) {
	s := openStore(t)
	ids := seedEntries(t, s, 1)
	var newer storage.Entry
	gen := &mockGenerator{err: provider.ErrUnavailable}
	gen.before = func() {
		e, _ := s.GetEntry(ids[0])
		e.Content = "rewritten while the first analysis ran"
		if _, err := s.UpdateEntry(e, true); err != nil {
			t.Errorf("UpdateEntry: %v", err)
		}
		var ok bool
		newer, ok, _ = s.ClaimEntryForAnalysis(ids[0])
		if !ok {
			t.Error("second worker could not claim the edited entry")
		}
	}
	a := NewAnalyzer(s, gen, nil)

	if _, err := a.Analyze(context.Background(), ids[0]); !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	e, _ := s.GetEntry(ids[0])
	if e.AnalysisState != storage.StateAnalyzing {
		t.Fatalf("state = %s, want analyzing (second worker's claim)", e.AnalysisState)
	}

	ok, err := s.CompleteAnalysis(storage.Insight{ID: "i2", EntryID: ids[0], OwnerID: "u1", CreatedAt: t0}, newer.ContentVersion)
	if err != nil || !ok {
		t.Errorf("second worker CompleteAnalysis = %v, %v; want true, nil", ok, err)
	}
}
