package api

import (
	"database/sql"
	"time"

	"github.com/lox/snowtraffic/internal/models"
	"github.com/lox/snowtraffic/internal/store"
	"github.com/lox/snowtraffic/internal/traffic"
)

// Nullable database values are pointers here so unknown values encode as
// JSON null rather than zero.

type RouteInfo struct {
	RouteID       string    `json:"route_id"`
	RouteName     string    `json:"route_name"`
	RecordCount   int       `json:"record_count"`
	FirstRecorded time.Time `json:"first_recorded"`
	LastRecorded  time.Time `json:"last_recorded"`
}

type CurrentStatus struct {
	RouteID      string    `json:"route_id"`
	RouteName    string    `json:"route_name"`
	CurrentMin   *int64    `json:"current_min"`
	AverageMin   *int64    `json:"average_min"`
	DeltaMin     *int64    `json:"delta_min"`
	DeltaPercent *float64  `json:"delta_percent"`
	LastUpdated  time.Time `json:"last_updated"`
	Status       string    `json:"status"`
}

type TravelTimeRecord struct {
	ID                int64      `json:"id"`
	PollID            string     `json:"poll_id"`
	RouteID           string     `json:"route_id"`
	RouteName         string     `json:"route_name"`
	CurrentMin        *int64     `json:"current_min"`
	AverageMin        *int64     `json:"average_min"`
	RecordedAt        time.Time  `json:"recorded_at"`
	UpstreamUpdatedAt *time.Time `json:"upstream_updated_at"`
}

type SegmentRecord struct {
	From        string `json:"from"`
	To          string `json:"to"`
	DurationMin *int64 `json:"duration_min"`
}

type SegmentSnapshot struct {
	PollID     string          `json:"poll_id"`
	RecordedAt time.Time       `json:"recorded_at"`
	Segments   []SegmentRecord `json:"segments"`
}

// WeatherPoint is a station reading with accumulation since the most recent
// 4pm baseline.
type WeatherPoint struct {
	StationID          string     `json:"station_id"`
	StationName        string     `json:"station_name"`
	StationElevation   *int64     `json:"station_elevation"`
	StationType        string     `json:"station_type"`
	TemperatureF       *float64   `json:"temperature_f"`
	SnowDepthInches    *float64   `json:"snow_depth_inches"`
	TotalPrecipInches  *float64   `json:"total_precip_inches"`
	SnowAccumInches    *float64   `json:"snow_accum_inches"`
	RainAccumInches    *float64   `json:"rain_accum_inches"`
	SnowDensity        *float64   `json:"snow_density"`
	MeasuredAt         time.Time  `json:"measured_at"`
	RecordedAt         time.Time  `json:"recorded_at"`
	BaselineMeasuredAt *time.Time `json:"baseline_measured_at"`
}

type HealthStatus struct {
	Status       string          `json:"status"`
	Stations     []StationHealth `json:"stations"`
	RecentErrors []IngestError   `json:"recent_errors,omitempty"`
	Errors       []string        `json:"errors,omitempty"`
}

type StationHealth struct {
	StationID    string    `json:"station_id"`
	LastMeasured time.Time `json:"last_measured,omitzero"`
	AgeMinutes   int       `json:"age_minutes"`
	Stale        bool      `json:"stale"`
}

type IngestError struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error"`
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func float64Ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func timePtr(v sql.NullTime, loc *time.Location) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.In(loc)
	return &t
}

func newRouteInfo(rs models.RouteStats, loc *time.Location) RouteInfo {
	return RouteInfo{
		RouteID:       rs.RouteID,
		RouteName:     rs.RouteName,
		RecordCount:   rs.RecordCount,
		FirstRecorded: rs.FirstRecorded.In(loc),
		LastRecorded:  rs.LastRecorded.In(loc),
	}
}

func newCurrentStatus(tt models.TravelTime, loc *time.Location) CurrentStatus {
	st := traffic.Evaluate(tt)
	return CurrentStatus{
		RouteID:      tt.RouteID,
		RouteName:    tt.RouteName,
		CurrentMin:   int64Ptr(tt.CurrentMin),
		AverageMin:   int64Ptr(tt.AverageMin),
		DeltaMin:     st.DeltaMin,
		DeltaPercent: st.DeltaPercent,
		LastUpdated:  tt.RecordedAt.In(loc),
		Status:       st.State,
	}
}

func newTravelTimeRecord(tt models.TravelTime, loc *time.Location) TravelTimeRecord {
	return TravelTimeRecord{
		ID:                tt.ID,
		PollID:            tt.PollID,
		RouteID:           tt.RouteID,
		RouteName:         tt.RouteName,
		CurrentMin:        int64Ptr(tt.CurrentMin),
		AverageMin:        int64Ptr(tt.AverageMin),
		RecordedAt:        tt.RecordedAt.In(loc),
		UpstreamUpdatedAt: timePtr(tt.UpdatedAt, loc),
	}
}

func newSegmentSnapshot(snap models.SegmentSnapshot, loc *time.Location) SegmentSnapshot {
	out := SegmentSnapshot{
		PollID:     snap.PollID,
		RecordedAt: snap.RecordedAt.In(loc),
		Segments:   make([]SegmentRecord, 0, len(snap.Segments)),
	}
	for _, seg := range snap.Segments {
		out.Segments = append(out.Segments, SegmentRecord{
			From:        seg.SegmentFrom,
			To:          seg.SegmentTo,
			DurationMin: int64Ptr(seg.DurationMin),
		})
	}
	return out
}

func newWeatherPoint(pt models.Point, loc *time.Location) WeatherPoint {
	r := pt.Reading
	wp := WeatherPoint{
		StationID:         r.StationID,
		StationName:       r.StationName,
		StationElevation:  int64Ptr(r.StationElevation),
		StationType:       r.StationType,
		TemperatureF:      float64Ptr(r.TemperatureF),
		SnowDepthInches:   float64Ptr(r.SnowDepthInches),
		TotalPrecipInches: float64Ptr(r.TotalPrecipInches),
		SnowAccumInches:   float64Ptr(pt.Derived.SnowAccumInches),
		RainAccumInches:   float64Ptr(pt.Derived.RainAccumInches),
		SnowDensity:       float64Ptr(pt.Derived.SnowDensity),
		MeasuredAt:        r.MeasuredAt.In(loc),
		RecordedAt:        r.RecordedAt.In(loc),
	}
	if pt.Baseline != nil {
		t := pt.Baseline.MeasuredAt.In(loc)
		wp.BaselineMeasuredAt = &t
	}
	return wp
}

func newIngestError(run store.IngestRun, loc *time.Location) IngestError {
	return IngestError{
		Source:    run.Source,
		Target:    run.Target,
		StartedAt: run.StartedAt.In(loc),
		Error:     run.ErrorMessage.String,
	}
}
