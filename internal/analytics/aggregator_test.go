package analytics

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/havenapp/haven/internal/storage"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type memStore struct {
	entries  []storage.Entry
	insights []storage.Insight
}

func (m *memStore) EntriesForOwner(ownerID, kind string, since time.Time) ([]storage.Entry, error) {
	var out []storage.Entry
	for _, e := range m.entries {
		if e.OwnerID == ownerID && e.Kind == kind && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) InsightsForOwner(ownerID string, since time.Time) ([]storage.Insight, error) {
	var out []storage.Insight
	for _, ins := range m.insights {
		if ins.OwnerID == ownerID && !ins.CreatedAt.Before(since) {
			out = append(out, ins)
		}
	}
	return out, nil
}

func entry(owner string, at time.Time, words int, mood string) storage.Entry {
	return storage.Entry{OwnerID: owner, Kind: storage.KindDiary, CreatedAt: at, Mood: mood,
		Metadata: storage.EntryMetadata{WordCount: words}}
}

func insightAt(at time.Time, score float64, emotions []string, themes, triggers, coping []string) storage.Insight {
	ins := storage.Insight{OwnerID: "u1", CreatedAt: at, Sentiment: storage.Sentiment{Score: score},
		Themes: themes, Triggers: triggers, CopingStrategies: coping}
	for _, e := range emotions {
		ins.Emotions = append(ins.Emotions, storage.Emotion{Name: e, Confidence: 0.5})
	}
	return ins
}

func TestComputeStats(t *testing.T) {
	store := &memStore{entries: []storage.Entry{
		entry("u1", daysAgo(0), 10, ""),
		entry("u1", daysAgo(0).Add(-time.Hour), 20, ""),
		entry("u1", daysAgo(1), 30, ""),
		entry("u1", daysAgo(4), 40, ""),
		entry("u1", daysAgo(60), 1000, ""),
		entry("u2", daysAgo(0), 999, ""),
		{OwnerID: "u1", Kind: storage.KindChat, CreatedAt: daysAgo(0), Metadata: storage.EntryMetadata{WordCount: 500}},
	}}
	agg := NewAggregatorWithClock(store, time.UTC, fixedClock{today})

	st, err := agg.ComputeStats(context.Background(), "u1", 30)
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	want := Stats{WindowDays: 30, TotalEntries: 4, TotalWords: 100, AverageWordsPerEntry: 25, DaysActive: 3, WritingStreak: 2}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}

	empty, _ := agg.ComputeStats(context.Background(), "nobody", 0)
	if empty.WindowDays != DefaultWindowDays || empty.TotalEntries != 0 || empty.AverageWordsPerEntry != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestComputeStats_TimeZoneBucketing(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 20:00 UTC on the 14th is 05:00 on the 15th in Tokyo.
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &memStore{entries: []storage.Entry{
		entry("u1", time.Date(2025, 6, 14, 20, 0, 0, 0, time.UTC), 5, ""),
		entry("u1", time.Date(2025, 6, 13, 20, 0, 0, 0, time.UTC), 5, ""),
	}}

	utc, _ := NewAggregatorWithClock(store, time.UTC, fixedClock{now}).ComputeStats(context.Background(), "u1", 7)
	jst, _ := NewAggregatorWithClock(store, tokyo, fixedClock{now}).ComputeStats(context.Background(), "u1", 7)
	if utc.WritingStreak != 2 {
		t.Errorf("UTC streak = %d, want 2 (yesterday and the day before)", utc.WritingStreak)
	}
	if jst.WritingStreak != 2 {
		t.Errorf("JST streak = %d, want 2 (today and yesterday)", jst.WritingStreak)
	}
}

func TestAggregateInsights(t *testing.T) {
	store := &memStore{insights: []storage.Insight{
		insightAt(daysAgo(4), 0.5, []string{"joy", "calm"}, []string{"school"}, []string{"exams"}, []string{"walking"}),
		insightAt(daysAgo(3), 0.5, []string{"joy"}, []string{"family"}, []string{"exams", "sleep"}, []string{"music"}),
		insightAt(daysAgo(2), -0.5, []string{"sad", "anxiety"}, []string{"school"}, []string{"exams"}, []string{"walking"}),
		insightAt(daysAgo(1), -0.5, []string{"sad"}, []string{"school"}, []string{"friends"}, nil),
		insightAt(daysAgo(90), 1, []string{"ecstatic"}, []string{"old"}, nil, nil),
	}}
	agg := NewAggregatorWithClock(store, time.UTC, fixedClock{today})

	sum, err := agg.AggregateInsights(context.Background(), "u1", 30)
	if err != nil {
		t.Fatalf("AggregateInsights: %v", err)
	}
	if sum.TotalInsights != 4 || sum.AverageSentiment != 0 {
		t.Errorf("total = %d avg = %v", sum.TotalInsights, sum.AverageSentiment)
	}
	if sum.SentimentTrend != TrendDeclining {
		t.Errorf("trend = %q, want declining", sum.SentimentTrend)
	}
	if !reflect.DeepEqual(sum.TopEmotions, []string{"joy", "sad", "calm", "anxiety"}) {
		t.Errorf("emotions = %v", sum.TopEmotions)
	}
	if !reflect.DeepEqual(sum.TopThemes, []string{"school", "family"}) {
		t.Errorf("themes = %v", sum.TopThemes)
	}
	if !reflect.DeepEqual(sum.CommonTriggers, []string{"exams", "sleep", "friends"}) {
		t.Errorf("triggers = %v", sum.CommonTriggers)
	}
	if !reflect.DeepEqual(sum.EffectiveCopingStrategies, []string{"walking", "music"}) {
		t.Errorf("coping = %v", sum.EffectiveCopingStrategies)
	}
}

func TestAggregateInsights_Empty(t *testing.T) {
	agg := NewAggregatorWithClock(&memStore{}, time.UTC, fixedClock{today})
	sum, err := agg.AggregateInsights(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("AggregateInsights: %v", err)
	}
	if sum.SentimentTrend != TrendNeutral || sum.TopEmotions == nil || len(sum.TopEmotions) != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestMoodTimeline(t *testing.T) {
	store := &memStore{
		insights: []storage.Insight{
			insightAt(daysAgo(2), 0.4, nil, nil, nil, nil),
			insightAt(daysAgo(2).Add(time.Hour), -0.2, nil, nil, nil, nil),
			insightAt(daysAgo(0), 0.8, nil, nil, nil, nil),
		},
		entries: []storage.Entry{
			entry("u1", daysAgo(2), 3, "tired"),
			entry("u1", daysAgo(1), 3, "ok"),
		},
	}
	agg := NewAggregatorWithClock(store, time.UTC, fixedClock{today})

	tl, err := agg.MoodTimeline(context.Background(), "u1", 7)
	if err != nil {
		t.Fatalf("MoodTimeline: %v", err)
	}
	if len(tl) != 3 {
		t.Fatalf("timeline = %+v, want 3 days", tl)
	}
	if tl[0].Date != "2025-06-13" || math.Abs(tl[0].AverageSentiment-0.1) > 1e-9 || tl[0].Insights != 2 {
		t.Errorf("day 0 = %+v", tl[0])
	}
	if !reflect.DeepEqual(tl[0].Moods, []string{"tired"}) {
		t.Errorf("day 0 moods = %v", tl[0].Moods)
	}
	if tl[1].Date != "2025-06-14" || tl[1].Insights != 0 || tl[1].Moods[0] != "ok" {
		t.Errorf("day 1 = %+v", tl[1])
	}
	if tl[2].AverageSentiment != 0.8 {
		t.Errorf("day 2 = %+v", tl[2])
	}
}

func TestNormalizeWindow(t *testing.T) {
	if NormalizeWindow(0) != 30 || NormalizeWindow(-5) != 30 || NormalizeWindow(7) != 7 || NormalizeWindow(9999) != 365 {
		t.Error("NormalizeWindow bounds wrong")
	}
}
