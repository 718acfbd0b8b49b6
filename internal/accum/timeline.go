package accum

import (
	"sort"
	"time"

	"github.com/lox/snowtraffic/internal/models"
)

// Timeline is a station's readings with at most one reading per MeasuredAt,
// sorted ascending.
type Timeline []models.RawReading

// NewTimeline deduplicates readings by MeasuredAt and sorts them. When several
// readings share a MeasuredAt the one with the latest RecordedAt is kept, and
// among equal RecordedAt the highest ID (the last inserted) wins. Input order
// does not matter and the input slice is not modified.
func NewTimeline(readings []models.RawReading) Timeline {
	latest := make(map[int64]models.RawReading, len(readings))
	for _, r := range readings {
		key := r.MeasuredAt.UnixNano()
		if cur, ok := latest[key]; !ok || supersedes(r, cur) {
			latest[key] = r
		}
	}

	tl := make(Timeline, 0, len(latest))
	for _, r := range latest {
		tl = append(tl, r)
	}
	sort.Slice(tl, func(i, j int) bool {
		return tl[i].MeasuredAt.Before(tl[j].MeasuredAt)
	})
	return tl
}

func supersedes(a, b models.RawReading) bool {
	if !a.RecordedAt.Equal(b.RecordedAt) {
		return a.RecordedAt.After(b.RecordedAt)
	}
	return a.ID > b.ID
}

// search returns the index of the first reading at or after t.
func (tl Timeline) search(t time.Time) int {
	return sort.Search(len(tl), func(i int) bool {
		return !tl[i].MeasuredAt.Before(t)
	})
}

// Nearest returns the reading closest to w.Cutoff within [w.Start, w.End],
// preferring the earlier reading on a tie. It returns nil when the window
// holds no reading.
func (tl Timeline) Nearest(w Window) *models.RawReading {
	i := tl.search(w.Cutoff)

	var best *models.RawReading
	// Only the neighbours either side of the cutoff can be closest.
	if i > 0 && w.Contains(tl[i-1].MeasuredAt) {
		best = &tl[i-1]
	}
	if i < len(tl) && w.Contains(tl[i].MeasuredAt) {
		if best == nil || distance(tl[i].MeasuredAt, w.Cutoff) < distance(best.MeasuredAt, w.Cutoff) {
			best = &tl[i]
		}
	}
	if best == nil {
		return nil
	}
	r := *best
	return &r
}

// Between returns the readings with MeasuredAt in [from, to].
func (tl Timeline) Between(from, to time.Time) Timeline {
	lo := tl.search(from)
	hi := lo + sort.Search(len(tl)-lo, func(i int) bool {
		return tl[lo+i].MeasuredAt.After(to)
	})
	return tl[lo:hi]
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
