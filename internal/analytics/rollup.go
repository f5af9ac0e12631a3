package analytics

import (
	"sort"
	"time"
)

// Sentiment trends.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
	TrendNeutral   = "neutral"
)

const trendThreshold = 0.1

// WritingStreak counts consecutive calendar days with at least one entry,
// walking back from today. days may be unsorted and contain duplicates; only
// the year, month and day of each value are used. Days after today are ignored.
func WritingStreak(days []time.Time, today time.Time) int {
	anchor := civilDay(today)

	seen := make(map[time.Time]bool, len(days))
	var distinct []time.Time
	for _, d := range days {
		c := civilDay(d)
		if c.After(anchor) || seen[c] {
			continue
		}
		seen[c] = true
		distinct = append(distinct, c)
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i].After(distinct[j]) })

	streak := 0
	for _, d := range distinct {
		switch gap := daysBetween(d, anchor); {
		case gap == 0:
			streak++
		case gap == 1:
			streak++
			anchor = d
		default:
			return streak
		}
	}
	return streak
}

// SentimentTrend compares the mean of the first half of chronologically
// ordered scores with the mean of the second half. With an odd count the
// middle score belongs to the second half.
func SentimentTrend(scores []float64) string {
	if len(scores) < 2 {
		return TrendNeutral
	}
	mid := len(scores) / 2
	diff := mean(scores[mid:]) - mean(scores[:mid])
	switch {
	case diff > trendThreshold:
		return TrendImproving
	case diff < -trendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// TopN returns up to n distinct items ranked by frequency, ties broken by the
// order in which items first appear.
func TopN(items []string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, it := range items {
		if _, ok := counts[it]; !ok {
			order = append(order, it)
		}
		counts[it]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	if len(order) > n {
		order = order[:n]
	}
	if order == nil {
		order = []string{}
	}
	return order
}

// Distinct returns items with duplicates removed, keeping first-seen order.
func Distinct(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// civilDay maps t to midnight UTC of its calendar date in t's own location.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(earlier, later time.Time) int {
	return int(later.Sub(earlier).Hours() / 24)
}
