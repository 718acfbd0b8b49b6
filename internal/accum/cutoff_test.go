package accum

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/lox/snowtraffic/internal/config"
)

func pacific(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	return loc
}

func TestCutoff(t *testing.T) {
	loc := pacific(t)
	at := func(mon time.Month, day, hour, min int) time.Time {
		return time.Date(2026, mon, day, hour, min, 0, 0, loc)
	}

	tests := []struct {
		name  string
		query time.Time
		want  time.Time
	}{
		{"one minute before cutoff", at(time.January, 8, 15, 59), at(time.January, 7, 16, 0)},
		{"exactly at cutoff", at(time.January, 8, 16, 0), at(time.January, 8, 16, 0)},
		{"one minute after cutoff", at(time.January, 8, 16, 1), at(time.January, 8, 16, 0)},
		{"midnight", at(time.January, 8, 0, 0), at(time.January, 7, 16, 0)},
		{"last minute of day", at(time.January, 8, 23, 59), at(time.January, 8, 16, 0)},
		{"month boundary", at(time.March, 1, 10, 0), at(time.February, 28, 16, 0)},
		{"year boundary", at(time.January, 1, 9, 0), time.Date(2025, time.December, 31, 16, 0, 0, 0, loc)},
		{"morning after spring forward", at(time.March, 8, 10, 0), at(time.March, 7, 16, 0)},
		{"morning after fall back", at(time.November, 1, 10, 0), at(time.October, 31, 16, 0)},
		{"utc input", time.Date(2026, 1, 9, 0, 30, 0, 0, time.UTC), at(time.January, 8, 16, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cutoff(tt.query, loc, 16)
			if !got.Equal(tt.want) {
				t.Errorf("Cutoff(%v) = %v, want %v", tt.query, got, tt.want)
			}
			if h := got.In(loc).Hour(); h != 16 {
				t.Errorf("cutoff local hour = %d, want 16", h)
			}
		})
	}
}

func TestCutoff_NeverAfterQuery(t *testing.T) {
	loc := pacific(t)
	start := time.Date(2026, 3, 6, 0, 0, 0, 0, loc)
	for m := 0; m < 4*24*60; m += 7 {
		q := start.Add(time.Duration(m) * time.Minute)
		c := Cutoff(q, loc, 16)
		if c.After(q) {
			t.Fatalf("Cutoff(%v) = %v is after the query", q, c)
		}
		if q.Sub(c) >= 25*time.Hour {
			t.Fatalf("Cutoff(%v) = %v is more than a day earlier", q, c)
		}
	}
}

func TestBaselineWindow(t *testing.T) {
	loc := pacific(t)
	cfg := config.Default(loc)

	w := BaselineWindow(time.Date(2026, 1, 8, 10, 0, 0, 0, loc), cfg)
	wantCutoff := time.Date(2026, 1, 7, 16, 0, 0, 0, loc)
	if !w.Cutoff.Equal(wantCutoff) {
		t.Errorf("Cutoff = %v, want %v", w.Cutoff, wantCutoff)
	}
	if !w.Start.Equal(wantCutoff.Add(-time.Hour)) || !w.End.Equal(wantCutoff.Add(time.Hour)) {
		t.Errorf("window = [%v, %v]", w.Start, w.End)
	}
	if !w.Contains(w.Start) || !w.Contains(w.End) {
		t.Error("window bounds should be inclusive")
	}
	if w.Contains(w.End.Add(time.Second)) || w.Contains(w.Start.Add(-time.Second)) {
		t.Error("window should exclude instants outside the bounds")
	}
}
