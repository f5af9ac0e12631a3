// Package analytics computes writing statistics and emotional rollups over a
// user's entries and insights.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/havenapp/haven/internal/storage"
)

// Window bounds in days.
const (
	DefaultWindowDays = 30
	MaxWindowDays     = 365
	topLimit          = 5
)

// Store is the read access the Aggregator needs. Implemented by storage.Store.
type Store interface {
	EntriesForOwner(ownerID, kind string, since time.Time) ([]storage.Entry, error)
	InsightsForOwner(ownerID string, since time.Time) ([]storage.Insight, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Stats summarizes a user's diary writing over a window.
type Stats struct {
	WindowDays           int     `json:"windowDays"`
	TotalEntries         int     `json:"totalEntries"`
	TotalWords           int     `json:"totalWords"`
	AverageWordsPerEntry float64 `json:"averageWordsPerEntry"`
	DaysActive           int     `json:"daysActive"`
	WritingStreak        int     `json:"writingStreak"`
}

// InsightSummary rolls up the insights of a window.
type InsightSummary struct {
	WindowDays                int      `json:"windowDays"`
	TotalInsights             int      `json:"totalInsights"`
	AverageSentiment          float64  `json:"averageSentiment"`
	SentimentTrend            string   `json:"sentimentTrend"`
	TopEmotions               []string `json:"topEmotions"`
	TopThemes                 []string `json:"topThemes"`
	CommonTriggers            []string `json:"commonTriggers"`
	EffectiveCopingStrategies []string `json:"effectiveCopingStrategies"`
}

// DayMood is the average sentiment of one calendar day.
type DayMood struct {
	Date             string   `json:"date"`
	AverageSentiment float64  `json:"averageSentiment"`
	Insights         int      `json:"insights"`
	Moods            []string `json:"moods"`
}

// Aggregator computes rollups on demand from the store.
type Aggregator struct {
	store Store
	clock Clock
	loc   *time.Location
}

// NewAggregator creates an Aggregator that buckets days in loc (UTC when nil).
func NewAggregator(store Store, loc *time.Location) *Aggregator {
	return NewAggregatorWithClock(store, loc, realClock{})
}

// NewAggregatorWithClock creates an Aggregator with a custom clock (for testing).
func NewAggregatorWithClock(store Store, loc *time.Location, clock Clock) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{store: store, clock: clock, loc: loc}
}

// NormalizeWindow applies the default and maximum to a window in days.
func NormalizeWindow(days int) int {
	switch {
	case days <= 0:
		return DefaultWindowDays
	case days > MaxWindowDays:
		return MaxWindowDays
	}
	return days
}

func (a *Aggregator) window(days int) (now, since time.Time, n int) {
	n = NormalizeWindow(days)
	now = a.clock.Now().In(a.loc)
	return now, now.AddDate(0, 0, -n), n
}

// ComputeStats summarizes the owner's diary entries in the last windowDays days.
func (a *Aggregator) ComputeStats(ctx context.Context, ownerID string, windowDays int) (Stats, error) {
	now, since, n := a.window(windowDays)

	entries, err := a.store.EntriesForOwner(ownerID, storage.KindDiary, since)
	if err != nil {
		return Stats{}, fmt.Errorf("loading entries: %w", err)
	}

	st := Stats{WindowDays: n, TotalEntries: len(entries)}
	days := make([]time.Time, 0, len(entries))
	active := make(map[string]bool)
	for _, e := range entries {
		st.TotalWords += e.Metadata.WordCount
		local := e.CreatedAt.In(a.loc)
		days = append(days, local)
		active[local.Format(time.DateOnly)] = true
	}
	if st.TotalEntries > 0 {
		st.AverageWordsPerEntry = float64(st.TotalWords) / float64(st.TotalEntries)
	}
	st.DaysActive = len(active)
	st.WritingStreak = WritingStreak(days, now)
	return st, nil
}

// AggregateInsights rolls up every insight the owner received in the window.
func (a *Aggregator) AggregateInsights(ctx context.Context, ownerID string, windowDays int) (InsightSummary, error) {
	_, since, n := a.window(windowDays)

	insights, err := a.store.InsightsForOwner(ownerID, since)
	if err != nil {
		return InsightSummary{}, fmt.Errorf("loading insights: %w", err)
	}

	sort.SliceStable(insights, func(i, j int) bool { return insights[i].CreatedAt.Before(insights[j].CreatedAt) })

	scores := make([]float64, 0, len(insights))
	var emotions, themes, triggers, coping []string
	for _, ins := range insights {
		scores = append(scores, ins.Sentiment.Score)
		for _, e := range ins.Emotions {
			emotions = append(emotions, e.Name)
		}
		themes = append(themes, ins.Themes...)
		triggers = append(triggers, ins.Triggers...)
		coping = append(coping, ins.CopingStrategies...)
	}

	return InsightSummary{
		WindowDays:                n,
		TotalInsights:             len(insights),
		AverageSentiment:          mean(scores),
		SentimentTrend:            SentimentTrend(scores),
		TopEmotions:               TopN(emotions, topLimit),
		TopThemes:                 TopN(themes, topLimit),
		CommonTriggers:            TopN(Distinct(triggers), topLimit),
		EffectiveCopingStrategies: TopN(Distinct(coping), topLimit),
	}, nil
}

// MoodTimeline returns the average sentiment per calendar day, oldest first,
// for days with at least one insight or entry.
func (a *Aggregator) MoodTimeline(ctx context.Context, ownerID string, windowDays int) ([]DayMood, error) {
	_, since, _ := a.window(windowDays)

	insights, err := a.store.InsightsForOwner(ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("loading insights: %w", err)
	}
	entries, err := a.store.EntriesForOwner(ownerID, storage.KindDiary, since)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}

	type bucket struct {
		sum   float64
		count int
		moods []string
	}
	buckets := make(map[string]*bucket)
	get := func(t time.Time) *bucket {
		key := t.In(a.loc).Format(time.DateOnly)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		return b
	}

	for _, ins := range insights {
		b := get(ins.CreatedAt)
		b.sum += ins.Sentiment.Score
		b.count++
	}
	for _, e := range entries {
		b := get(e.CreatedAt)
		if e.Mood != "" {
			b.moods = append(b.moods, e.Mood)
		}
	}

	out := make([]DayMood, 0, len(buckets))
	for day, b := range buckets {
		dm := DayMood{Date: day, Insights: b.count, Moods: Distinct(b.moods)}
		if b.count > 0 {
			dm.AverageSentiment = b.sum / float64(b.count)
		}
		out = append(out, dm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
