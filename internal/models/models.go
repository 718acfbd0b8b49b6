package models

import (
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// RawReading is one weather station measurement as ingested. Rows are never
// updated; several rows may share a MeasuredAt when the upstream republishes.
type RawReading struct {
	ID                int64
	StationID         string `validate:"required"`
	StationName       string
	StationElevation  sql.NullInt64
	StationType       string
	TemperatureF      sql.NullFloat64
	SnowDepthInches   sql.NullFloat64
	TotalPrecipInches sql.NullFloat64
	MeasuredAt        time.Time
	RecordedAt        time.Time
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var errMissingMeasuredAt = errors.New("measured_at is required")

// Validate reports whether the fields the store requires are present.
func (r RawReading) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.MeasuredAt.IsZero() {
		return errMissingMeasuredAt
	}
	return nil
}

// DerivedPoint holds accumulation values computed against the 4pm baseline.
// Invalid fields mean the value could not be computed, which is distinct
// from a computed zero.
type DerivedPoint struct {
	SnowAccumInches sql.NullFloat64
	RainAccumInches sql.NullFloat64
	SnowDensity     sql.NullFloat64
}

// Point pairs a reading with its derived values and the baseline used.
type Point struct {
	Reading  RawReading
	Baseline *RawReading
	Derived  DerivedPoint
}

type TravelTime struct {
	ID         int64
	PollID     string
	RouteID    string
	RouteName  string
	CurrentMin sql.NullInt64
	AverageMin sql.NullInt64
	RecordedAt time.Time
	UpdatedAt  sql.NullTime
}

type RouteSegment struct {
	ID           int64
	PollID       string
	RouteID      string
	SegmentOrder int
	SegmentFrom  string
	SegmentTo    string
	DurationMin  sql.NullInt64
	RecordedAt   time.Time
}

type RouteStats struct {
	RouteID       string
	RouteName     string
	RecordCount   int
	FirstRecorded time.Time
	LastRecorded  time.Time
}

// SegmentSnapshot is every segment recorded by a single route poll.
type SegmentSnapshot struct {
	PollID     string
	RecordedAt time.Time
	Segments   []RouteSegment
}
