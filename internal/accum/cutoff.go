// Package accum derives snow and rain accumulation from raw station readings,
// measured against the reading nearest the daily 4pm baseline.
package accum

import (
	"errors"
	"time"

	"github.com/lox/snowtraffic/internal/config"
)

// ErrUnknownStation is returned for station ids missing from the config.
var ErrUnknownStation = errors.New("unknown station")

// Window is the baseline search window for one query time.
type Window struct {
	Cutoff time.Time
	Start  time.Time
	End    time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Cutoff returns the baseline instant for t: cutoffHour on t's local date when
// t is at or after that hour, otherwise cutoffHour on the previous local date.
func Cutoff(t time.Time, loc *time.Location, cutoffHour int) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	if local.Hour() < cutoffHour {
		d--
	}
	return time.Date(y, m, d, cutoffHour, 0, 0, 0, loc)
}

// BaselineWindow returns the cutoff for t widened by tolerance on each side.
func BaselineWindow(t time.Time, cfg config.Config) Window {
	c := Cutoff(t, cfg.Location, cfg.CutoffHour)
	return Window{
		Cutoff: c,
		Start:  c.Add(-cfg.BaselineWindow),
		End:    c.Add(cfg.BaselineWindow),
	}
}
