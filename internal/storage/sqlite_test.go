package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newEntry(id, owner string, at time.Time) Entry {
	return Entry{
		ID:        id,
		OwnerID:   owner,
		Kind:      KindDiary,
		Content:   "today was a good day",
		Tags:      []string{"school"},
		Metadata:  EntryMetadata{WordCount: 5, CharacterCount: 20},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func newInsight(id, entryID, owner string, score float64) Insight {
	return Insight{
		ID:        id,
		EntryID:   entryID,
		OwnerID:   owner,
		Sentiment: Sentiment{Score: score, Magnitude: 0.4, Label: "positive"},
		Emotions:  []Emotion{{Name: "joy", Confidence: 0.8}},
		Themes:    []string{"school"},
		Urgency:   "low",
		CreatedAt: baseTime,
	}
}

func mustSaveEntry(t *testing.T, s *Store, e Entry) {
	t.Helper()
	if err := s.SaveEntry(e); err != nil {
		t.Fatalf("SaveEntry(%s): %v", e.ID, err)
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_entries_owner_created", "idx_entries_analysis_state", "idx_insights_entry", "idx_insights_owner_created", "idx_api_tokens_user"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestSaveAndGetEntry(t *testing.T) {
	s := openTestStore(t)
	e := newEntry("e1", "u1", baseTime)
	e.Mood = "calm"
	mustSaveEntry(t, s, e)

	got, err := s.GetEntry("e1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Content != e.Content || got.Mood != "calm" || got.OwnerID != "u1" {
		t.Errorf("got %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "school" {
		t.Errorf("tags = %v", got.Tags)
	}
	if got.Metadata.WordCount != 5 || got.Metadata.CharacterCount != 20 {
		t.Errorf("metadata = %+v", got.Metadata)
	}
	if got.AnalysisState != StateUnprocessed || got.Processed {
		t.Errorf("state = %s processed = %v", got.AnalysisState, got.Processed)
	}
	if got.ContentVersion != 1 {
		t.Errorf("content version = %d, want 1", got.ContentVersion)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("createdAt = %v, want %v", got.CreatedAt, baseTime)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetEntry("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListEntriesNewestFirstWithFilters(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		mustSaveEntry(t, s, newEntry(fmt.Sprintf("e%d", i), "u1", baseTime.Add(time.Duration(i)*time.Hour)))
	}
	mustSaveEntry(t, s, newEntry("other", "u2", baseTime))

	all, err := s.ListEntries(EntryFilter{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("got %d entries, want 5", len(all))
	}
	if all[0].ID != "e4" || all[4].ID != "e0" {
		t.Errorf("order = %s..%s, want e4..e0", all[0].ID, all[4].ID)
	}

	windowed, err := s.ListEntries(EntryFilter{
		OwnerID: "u1",
		Start:   baseTime.Add(time.Hour),
		End:     baseTime.Add(3 * time.Hour),
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(windowed) != 2 || windowed[0].ID != "e3" || windowed[1].ID != "e2" {
		t.Errorf("windowed = %v", ids(windowed))
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestUpdateEntryContentChangeResetsState(t *testing.T) {
	s := openTestStore(t)
	mustSaveEntry(t, s, newEntry("e1", "u1", baseTime))

	claimed, ok, err := s.ClaimEntryForAnalysis("e1")
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if _, err := s.CompleteAnalysis(newInsight("i1", "e1", "u1", 0.5), claimed.ContentVersion); err != nil {
		t.Fatalf("CompleteAnalysis: %v", err)
	}

	e, _ := s.GetEntry("e1")
	if !e.Processed {
		t.Fatal("expected processed after CompleteAnalysis")
	}

	e.Content = "new content"
	e.UpdatedAt = baseTime.Add(time.Hour)
	updated, err := s.UpdateEntry(e, true)
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if updated.Processed || updated.AnalysisState != StateUnprocessed {
		t.Errorf("state after content change = %s", updated.AnalysisState)
	}
	if updated.ContentVersion != 2 {
		t.Errorf("content version = %d, want 2", updated.ContentVersion)
	}

	updated.Mood = "tired"
	same, err := s.UpdateEntry(updated, false)
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if same.ContentVersion != 2 || same.Mood != "tired" {
		t.Errorf("metadata-only update changed version: %+v", same)
	}
}

func TestUpdateEntryNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.UpdateEntry(newEntry("missing", "u1", baseTime), true); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteEntryCascadesInsights(t *testing.T) {
	s := openTestStore(t)
	mustSaveEntry(t, s, newEntry("e1", "u1", baseTime))
	claimed, _, _ := s.ClaimEntryForAnalysis("e1")
	if _, err := s.CompleteAnalysis(newInsight("i1", "e1", "u1", 0.5), claimed.ContentVersion); err != nil {
		t.Fatalf("CompleteAnalysis: %v", err)
	}

	if err := s.DeleteEntry("e1"); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, err := s.GetEntry("e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntry after delete: %v", err)
	}
	insights, err := s.ListInsights("e1")
	if err != nil {
		t.Fatalf("ListInsights: %v", err)
	}
	if len(insights) != 0 {
		t.Errorf("%d insights remain after delete", len(insights))
	}
	if err := s.DeleteEntry("e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestClaimOnlyOnce(t *testing.T) {
	s := openTestStore(t)
	mustSaveEntry(t, s, newEntry("e1", "u1", baseTime))

	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.ClaimEntryForAnalysis("e1")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Errorf("claims = %d, want 1", claims)
	}
}

func TestCompleteAnalysisStaleVersion(t *testing.T) {
	s := openTestStore(t)
	mustSaveEntry(t, s, newEntry("e1", "u1", baseTime))

	claimed, _, _ := s.ClaimEntryForAnalysis("e1")

	e, _ := s.GetEntry("e1")
	e.Content = "rewritten while analyzing"
	if _, err := s.UpdateEntry(e, true); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}

	ok, err := s.CompleteAnalysis(newInsight("i1", "e1", "u1", 0.5), claimed.ContentVersion)
	if err != nil {
		t.Fatalf("CompleteAnalysis: %v", err)
	}
	if ok {
		t.Error("CompleteAnalysis accepted a stale content version")
	}

	got, _ := s.GetEntry("e1")
	if got.AnalysisState != StateUnprocessed {
		t.Errorf("state = %s, want unprocessed", got.AnalysisState)
	}
	n, _ := s.CountInsights()
	if n != 0 {
		t.Errorf("insights = %d, want 0", n)
	}
}

func TestOldClaimDoesNotReleaseNewerClaim(t *testing.T) {
	s := openTestStore(t)
	mustSaveEntry(t, s, newEntry("e1", "u1", baseTime))

	first, _, _ := s.ClaimEntryForAnalysis("e1")

	e, _ := s.GetEntry("e1")
	e.Content = "edited while the first analysis ran"
	if _, err := s.UpdateEntry(e, true); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	second, ok, err := s.ClaimEntryForAnalysis("e1")
	if err != nil || !ok {
		t.Fatalf("second claim: ok=%v err=%v", ok, err)
	}
	if second.ContentVersion == first.ContentVersion {
		t.Fatalf("second claim version = %d, want a newer version", second.ContentVersion)
	}

	ok, err = s.CompleteAnalysis(newInsight("old", "e1", "u1", 0.1), first.ContentVersion)
	if err != nil || ok {
		t.Fatalf("stale CompleteAnalysis = %v, %v; want false, nil", ok, err)
	}
	if err := s.ReleaseAnalysis("e1", first.ContentVersion); err != nil {
		t.Fatalf("ReleaseAnalysis: %v", err)
	}

	got, _ := s.GetEntry("e1")
	if got.AnalysisState != StateAnalyzing {
		t.Fatalf("state = %s, want analyzing (newer claim kept)", got.AnalysisState)
	}
	if _, ok, _ := s.ClaimEntryForAnalysis("e1"); ok {
		t.Error("entry claimed twice while the newer claim was held")
	}

	ok, err = s.CompleteAnalysis(newInsight("new", "e1", "u1", 0.5), second.ContentVersion)
	if err != nil || !ok {
		t.Fatalf("current CompleteAnalysis = %v, %v; want true, nil", ok, err)
	}
	got, _ = s.GetEntry("e1")
	if !got.Processed {
		t.Error("entry not processed after the current analysis completed")
	}
}

func TestReleaseAndResetStaleAnalyses(t *testing.T) {
	s := openTestStore(t)
	mustSaveEntry(t, s, newEntry("e1", "u1", baseTime))
	mustSaveEntry(t, s, newEntry("e2", "u1", baseTime.Add(time.Minute)))

	claimed, _, _ := s.ClaimEntryForAnalysis("e1")
	s.ClaimEntryForAnalysis("e2")

	if err := s.ReleaseAnalysis("e1", claimed.ContentVersion); err != nil {
		t.Fatalf("ReleaseAnalysis: %v", err)
	}
	n, err := s.ResetStaleAnalyses()
	if err != nil {
		t.Fatalf("ResetStaleAnalyses: %v", err)
	}
	if n != 1 {
		t.Errorf("reset %d entries, want 1", n)
	}

	pending, err := s.PendingEntryIDs("", 10)
	if err != nil {
		t.Fatalf("PendingEntryIDs: %v", err)
	}
	if len(pending) != 2 || pending[0] != "e1" || pending[1] != "e2" {
		t.Errorf("pending = %v, want [e1 e2]", pending)
	}
}

func TestPendingEntryIDsByOwner(t *testing.T) {
	s := openTestStore(t)
	mustSaveEntry(t, s, newEntry("e1", "u1", baseTime))
	mustSaveEntry(t, s, newEntry("e2", "u2", baseTime.Add(time.Minute)))
	mustSaveEntry(t, s, newEntry("e3", "u1", baseTime.Add(2*time.Minute)))

	got, err := s.PendingEntryIDs("u1", 10)
	if err != nil {
		t.Fatalf("PendingEntryIDs: %v", err)
	}
	if len(got) != 2 || got[0] != "e1" || got[1] != "e3" {
		t.Errorf("u1 pending = %v, want [e1 e3]", got)
	}

	all, _ := s.PendingEntryIDs("", 10)
	if len(all) != 3 {
		t.Errorf("all pending = %v, want 3 ids", all)
	}
}

func TestInsightsRoundTripAndOwnerWindow(t *testing.T) {
	s := openTestStore(t)
	mustSaveEntry(t, s, newEntry("e1", "u1", baseTime))
	claimed, _, _ := s.ClaimEntryForAnalysis("e1")

	ins := newInsight("i1", "e1", "u1", -0.25)
	ins.Triggers = []string{"exams"}
	ins.CopingStrategies = []string{"walking"}
	ins.Entities = []string{"Sam"}
	ins.Summary = "a mixed day"
	ins.Fallback = true
	if _, err := s.CompleteAnalysis(ins, claimed.ContentVersion); err != nil {
		t.Fatalf("CompleteAnalysis: %v", err)
	}

	got, err := s.ListInsights("e1")
	if err != nil || len(got) != 1 {
		t.Fatalf("ListInsights: %v (len %d)", err, len(got))
	}
	g := got[0]
	if g.Sentiment.Score != -0.25 || g.Emotions[0].Name != "joy" || g.Triggers[0] != "exams" ||
		g.CopingStrategies[0] != "walking" || g.Entities[0] != "Sam" || !g.Fallback || g.Summary != "a mixed day" {
		t.Errorf("insight = %+v", g)
	}

	windowed, err := s.InsightsForOwner("u1", baseTime.Add(-time.Hour))
	if err != nil || len(windowed) != 1 {
		t.Errorf("InsightsForOwner in window: %v (len %d)", err, len(windowed))
	}
	later, _ := s.InsightsForOwner("u1", baseTime.Add(time.Hour))
	if len(later) != 0 {
		t.Errorf("InsightsForOwner after window = %d, want 0", len(later))
	}
	other, _ := s.InsightsForOwner("u2", time.Time{})
	if len(other) != 0 {
		t.Errorf("InsightsForOwner(u2) = %d, want 0", len(other))
	}
}

func TestUsersAndTokens(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateUser(User{ID: "u1", DisplayName: "Ada", CreatedAt: baseTime}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u, err := s.GetUser("u1")
	if err != nil || u.DisplayName != "Ada" {
		t.Fatalf("GetUser = %+v, %v", u, err)
	}

	if err := s.SaveAPIToken("hash1", "u1", baseTime); err != nil {
		t.Fatalf("SaveAPIToken: %v", err)
	}
	owner, err := s.LookupAPIToken("hash1")
	if err != nil || owner != "u1" {
		t.Errorf("LookupAPIToken = %q, %v", owner, err)
	}
	if _, err := s.LookupAPIToken("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown token err = %v", err)
	}
	if err := s.TouchAPIToken("hash1", baseTime.Add(time.Minute)); err != nil {
		t.Errorf("TouchAPIToken: %v", err)
	}

	users, err := s.ListUsers()
	if err != nil || len(users) != 1 {
		t.Errorf("ListUsers = %v, %v", users, err)
	}
}

func TestProfileKeysArePerUser(t *testing.T) {
	s := openTestStore(t)
	s.SetProfileKey("u1", "identity.name", "Ada")
	s.SetProfileKey("u1", "identity.name", "Ada L.")
	s.SetProfileKey("u2", "identity.name", "Bo")

	p1, err := s.GetAllProfileKeys("u1")
	if err != nil {
		t.Fatalf("GetAllProfileKeys: %v", err)
	}
	if p1["identity.name"] != "Ada L." || len(p1) != 1 {
		t.Errorf("u1 profile = %v", p1)
	}

	if err := s.DeleteProfileKey("u1", "identity.name"); err != nil {
		t.Fatalf("DeleteProfileKey: %v", err)
	}
	p1, _ = s.GetAllProfileKeys("u1")
	p2, _ := s.GetAllProfileKeys("u2")
	if len(p1) != 0 || p2["identity.name"] != "Bo" {
		t.Errorf("after delete u1=%v u2=%v", p1, p2)
	}
}

func TestResourcesByCategory(t *testing.T) {
	s := openTestStore(t)
	s.SaveResource(Resource{ID: "r1", Title: "Breathing", Category: "anxiety", Body: "4-7-8", CreatedAt: baseTime})
	s.SaveResource(Resource{ID: "r2", Title: "Sleep", Category: "sleep", Body: "routine", CreatedAt: baseTime})

	all, err := s.ListResources("")
	if err != nil || len(all) != 2 || all[0].Title != "Breathing" {
		t.Errorf("ListResources(all) = %v, %v", all, err)
	}
	anxiety, _ := s.ListResources("anxiety")
	if len(anxiety) != 1 || anxiety[0].ID != "r1" {
		t.Errorf("ListResources(anxiety) = %v", anxiety)
	}
}
