package accum

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/lox/snowtraffic/internal/config"
	"github.com/lox/snowtraffic/internal/models"
)

// Projector turns a station's stored readings into an accumulation series.
type Projector struct {
	source ReadingSource
	cfg    config.Config
	engine Engine
}

func NewProjector(source ReadingSource, cfg config.Config) *Projector {
	return &Projector{source: source, cfg: cfg, engine: NewEngine(cfg)}
}

// Project returns the deduplicated readings measured in [from, to], each with
// its own baseline and derived values. The store is scanned once from the
// earliest baseline window onwards; readings after to can never be nearer a
// cutoff than the reading being projected, so they are not needed.
func (p *Projector) Project(ctx context.Context, stationID string, from, to time.Time) (Series, error) {
	if err := checkStation(p.cfg, stationID); err != nil {
		return Series{}, err
	}
	if to.Before(from) {
		return Series{}, nil
	}

	scanFrom := BaselineWindow(from, p.cfg).Start
	readings, err := p.source.QueryReadings(ctx, stationID, scanFrom, to)
	if err != nil {
		return Series{}, fmt.Errorf("project %s: %w", stationID, err)
	}

	tl := NewTimeline(readings)
	return Series{
		timeline: tl,
		points:   tl.Between(from, to),
		cfg:      p.cfg,
		engine:   p.engine,
	}, nil
}

// Latest returns the station's newest reading with its derived values, or nil
// when the station has no readings.
func (p *Projector) Latest(ctx context.Context, stationID string) (*models.Point, error) {
	if err := checkStation(p.cfg, stationID); err != nil {
		return nil, err
	}
	at, ok, err := p.source.LatestMeasuredAt(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("latest %s: %w", stationID, err)
	}
	if !ok {
		return nil, nil
	}

	series, err := p.Project(ctx, stationID, at, at)
	if err != nil {
		return nil, err
	}
	points := series.Points()
	if len(points) == 0 {
		return nil, nil
	}
	return &points[len(points)-1], nil
}

// Series is a finite, ordered accumulation series. Iterating it is pure
// computation and may be repeated.
type Series struct {
	timeline Timeline
	points   Timeline
	cfg      config.Config
	engine   Engine
}

func (s Series) Len() int {
	return len(s.points)
}

// All yields points in ascending MeasuredAt order.
func (s Series) All() iter.Seq[models.Point] {
	return func(yield func(models.Point) bool) {
		for _, r := range s.points {
			base := s.timeline.Nearest(BaselineWindow(r.MeasuredAt, s.cfg))
			pt := models.Point{
				Reading:  r,
				Baseline: base,
				Derived:  s.engine.Compute(r, base),
			}
			if !yield(pt) {
				return
			}
		}
	}
}

func (s Series) Points() []models.Point {
	return slices.Collect(s.All())
}
