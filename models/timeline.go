package models

import (
	"sort"
	"time"
)

// TimelineEntry is one dated record in an effective-value timeline.
type TimelineEntry[T any] struct {
	Year  int       `json:"year"`
	Week  int       `json:"week"`
	Added time.Time `json:"added"`
	Id    int       `json:"id"`
	Value T         `json:"value"`
}

// Timeline answers "what was the effective value as of week X" lookups:
// the most recent entry with week <= X wins. Rows sharing a week are
// tie-broken by Added, then Id, so the most recently inserted row wins.
// Entries are kept sorted, so a reporting sweep can reuse one Timeline
// across many weeks without requerying.
type Timeline[T any] struct {
	Entries []TimelineEntry[T] `json:"entries"`
}

func NewTimeline[T any](entries []TimelineEntry[T]) *Timeline[T] {
	t := &Timeline[T]{Entries: entries}
	sort.SliceStable(t.Entries, func(i, j int) bool {
		a, b := t.Entries[i], t.Entries[j]
		if WeekKey(a.Year, a.Week) != WeekKey(b.Year, b.Week) {
			return WeekKey(a.Year, a.Week) < WeekKey(b.Year, b.Week)
		}
		if !a.Added.Equal(b.Added) {
			return a.Added.Before(b.Added)
		}
		return a.Id < b.Id
	})
	return t
}

func (t *Timeline[T]) Len() int {
	return len(t.Entries)
}

// AsOf returns the value effective for (year, week): the last entry at or
// before that week. ok is false when every entry lies after the target
// week (callers substitute their own default, usually zero).
func (t *Timeline[T]) AsOf(year, week int) (value T, ok bool) {
	target := WeekKey(year, week)
	// first index whose week key is beyond the target
	idx := sort.Search(len(t.Entries), func(i int) bool {
		return WeekKey(t.Entries[i].Year, t.Entries[i].Week) > target
	})
	if idx == 0 {
		var zero T
		return zero, false
	}
	return t.Entries[idx-1].Value, true
}
