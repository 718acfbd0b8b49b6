package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lox/snowtraffic/internal/models"
)

// InsertReading appends a raw station reading. Duplicate (station, measured_at)
// pairs are accepted; deduplication happens when readings are projected.
func (s *Store) InsertReading(ctx context.Context, r models.RawReading) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO weather_readings (station_id, station_name, station_elevation, station_type, temperature_f, snow_depth_inches, total_precip_inches, measured_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.StationID, r.StationName, r.StationElevation, r.StationType, r.TemperatureF, r.SnowDepthInches, r.TotalPrecipInches, formatTime(r.MeasuredAt), formatTime(r.RecordedAt))
	if err != nil {
		return 0, unavailable("insert reading", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, unavailable("insert reading", err)
	}
	return id, nil
}

const readingColumns = `id, station_id, station_name, station_elevation, station_type, temperature_f, snow_depth_inches, total_precip_inches, measured_at, recorded_at`

// QueryReadings returns every stored reading for the station with measured_at
// in [from, to], duplicates included.
func (s *Store) QueryReadings(ctx context.Context, stationID string, from, to time.Time) ([]models.RawReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+`
		FROM weather_readings
		WHERE station_id = ? AND measured_at >= ? AND measured_at <= ?
		ORDER BY measured_at ASC, id ASC
	`, stationID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, unavailable("query readings", err)
	}
	defer rows.Close()

	var readings []models.RawReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, unavailable("scan reading", err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query readings", err)
	}
	return readings, nil
}

// LatestMeasuredAt returns the newest measured_at stored for the station.
// ok is false when the station has no readings.
func (s *Store) LatestMeasuredAt(ctx context.Context, stationID string) (t time.Time, ok bool, err error) {
	var latest sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT measured_at FROM weather_readings
		WHERE station_id = ?
		ORDER BY measured_at DESC
		LIMIT 1
	`, stationID).Scan(scanNullTime(&latest))
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, unavailable("latest reading", err)
	}
	return latest.Time, latest.Valid, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (models.RawReading, error) {
	var (
		r          models.RawReading
		name, kind sql.NullString
	)
	err := row.Scan(&r.ID, &r.StationID, &name, &r.StationElevation, &kind, &r.TemperatureF, &r.SnowDepthInches, &r.TotalPrecipInches, scanTime(&r.MeasuredAt), scanTime(&r.RecordedAt))
	r.StationName = name.String
	r.StationType = kind.String
	return r, err
}
