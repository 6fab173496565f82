package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func entry(year, week, id int, added time.Time, value int64) TimelineEntry[decimal.Decimal] {
	return TimelineEntry[decimal.Decimal]{
		Year:  year,
		Week:  week,
		Added: added,
		Id:    id,
		Value: decimal.NewFromInt(value),
	}
}

func TestTimelineAsOfPicksLatestAtOrBefore(t *testing.T) {
	added := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	timeline := NewTimeline([]TimelineEntry[decimal.Decimal]{
		entry(2024, 10, 2, added, 40),
		entry(2024, 1, 1, added, 32),
	})

	got, ok := timeline.AsOf(2024, 5)
	if !ok || !got.Equal(decimal.NewFromInt(32)) {
		t.Fatalf("AsOf(2024, 5) = %v ok=%v, want 32", got, ok)
	}
	got, ok = timeline.AsOf(2024, 15)
	if !ok || !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("AsOf(2024, 15) = %v ok=%v, want 40", got, ok)
	}
	// exact hit on the change week
	got, ok = timeline.AsOf(2024, 10)
	if !ok || !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("AsOf(2024, 10) = %v ok=%v, want 40", got, ok)
	}
}

func TestTimelineAsOfBeforeFirstEntry(t *testing.T) {
	added := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	timeline := NewTimeline([]TimelineEntry[decimal.Decimal]{
		entry(2024, 10, 1, added, 40),
	})

	if _, ok := timeline.AsOf(2024, 9); ok {
		t.Fatal("AsOf before the first entry must report no value")
	}
	if _, ok := timeline.AsOf(2023, 52); ok {
		t.Fatal("AsOf in the previous year must report no value")
	}
}

func TestTimelineTieBreakOnSameWeek(t *testing.T) {
	early := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	late := time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)

	// two records on the same week: the most recently added wins
	timeline := NewTimeline([]TimelineEntry[decimal.Decimal]{
		entry(2024, 8, 5, late, 36),
		entry(2024, 8, 4, early, 32),
	})
	got, ok := timeline.AsOf(2024, 8)
	if !ok || !got.Equal(decimal.NewFromInt(36)) {
		t.Fatalf("AsOf(2024, 8) = %v ok=%v, want 36 (latest added)", got, ok)
	}

	// identical timestamps fall back to insertion order via id
	timeline = NewTimeline([]TimelineEntry[decimal.Decimal]{
		entry(2024, 8, 7, early, 38),
		entry(2024, 8, 6, early, 34),
	})
	got, ok = timeline.AsOf(2024, 8)
	if !ok || !got.Equal(decimal.NewFromInt(38)) {
		t.Fatalf("AsOf(2024, 8) = %v ok=%v, want 38 (highest id)", got, ok)
	}
}

func TestTimelineSortsUnorderedInput(t *testing.T) {
	added := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	timeline := NewTimeline([]TimelineEntry[decimal.Decimal]{
		entry(2024, 30, 3, added, 3),
		entry(2023, 50, 1, added, 1),
		entry(2024, 2, 2, added, 2),
	})

	for i := 1; i < timeline.Len(); i++ {
		prev, cur := timeline.Entries[i-1], timeline.Entries[i]
		if WeekKey(prev.Year, prev.Week) > WeekKey(cur.Year, cur.Week) {
			t.Fatalf("entries out of order at %d: %v before %v", i, prev, cur)
		}
	}
	got, ok := timeline.AsOf(2024, 10)
	if !ok || !got.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("AsOf(2024, 10) = %v ok=%v, want 2", got, ok)
	}
}

func TestTimelineEmpty(t *testing.T) {
	timeline := NewTimeline[decimal.Decimal](nil)
	if _, ok := timeline.AsOf(2024, 1); ok {
		t.Fatal("empty timeline must report no value")
	}
}
