package accum

import (
	"context"
	"fmt"
	"time"

	"github.com/lox/snowtraffic/internal/config"
	"github.com/lox/snowtraffic/internal/models"
)

// ReadingSource is the read side of the reading store.
type ReadingSource interface {
	QueryReadings(ctx context.Context, stationID string, from, to time.Time) ([]models.RawReading, error)
	LatestMeasuredAt(ctx context.Context, stationID string) (time.Time, bool, error)
}

// Resolver finds the baseline reading for a station at a query time.
type Resolver struct {
	source ReadingSource
	cfg    config.Config
}

func NewResolver(source ReadingSource, cfg config.Config) *Resolver {
	return &Resolver{source: source, cfg: cfg}
}

// Window returns the baseline search window for t.
func (r *Resolver) Window(t time.Time) Window {
	return BaselineWindow(t, r.cfg)
}

// Resolve returns the reading nearest the cutoff for queryTime, or nil when no
// reading falls within the baseline window. A nil baseline means accumulation
// is unknown, not zero.
func (r *Resolver) Resolve(ctx context.Context, stationID string, queryTime time.Time) (*models.RawReading, error) {
	if err := checkStation(r.cfg, stationID); err != nil {
		return nil, err
	}
	w := r.Window(queryTime)
	readings, err := r.source.QueryReadings(ctx, stationID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("resolve baseline for %s: %w", stationID, err)
	}
	return NewTimeline(readings).Nearest(w), nil
}

func checkStation(cfg config.Config, stationID string) error {
	if _, ok := cfg.Station(stationID); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStation, stationID)
	}
	return nil
}
