package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lox/snowtraffic/internal/models"
)

// InsertRoutePoll stores one route poll: the travel time row and its segments
// share tt.PollID and are written in a single transaction.
func (s *Store) InsertRoutePoll(ctx context.Context, tt models.TravelTime, segments []models.RouteSegment) error {
	if tt.RouteID == "" || tt.PollID == "" {
		return errors.New("insert route poll: route_id and poll_id are required")
	}
	if tt.RecordedAt.IsZero() {
		tt.RecordedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin route poll", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO travel_times (poll_id, route_id, route_name, current_min, average_min, recorded_at, upstream_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tt.PollID, tt.RouteID, tt.RouteName, tt.CurrentMin, tt.AverageMin, formatTime(tt.RecordedAt), nullTimeArg(tt.UpdatedAt)); err != nil {
		return unavailable("insert travel time", err)
	}

	for i, seg := range segments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO route_segments (poll_id, route_id, segment_order, segment_from, segment_to, duration_min, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, tt.PollID, tt.RouteID, i, seg.SegmentFrom, seg.SegmentTo, seg.DurationMin, formatTime(tt.RecordedAt)); err != nil {
			return unavailable(fmt.Sprintf("insert segment %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit route poll", err)
	}
	return nil
}

// ListRoutes returns per-route record counts and the recorded range.
func (s *Store) ListRoutes(ctx context.Context) ([]models.RouteStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT route_id, COALESCE(MAX(route_name), ''), COUNT(*), MIN(recorded_at), MAX(recorded_at)
		FROM travel_times
		GROUP BY route_id
		ORDER BY 2
	`)
	if err != nil {
		return nil, unavailable("list routes", err)
	}
	defer rows.Close()

	var routes []models.RouteStats
	for rows.Next() {
		var rs models.RouteStats
		if err := rows.Scan(&rs.RouteID, &rs.RouteName, &rs.RecordCount, scanTime(&rs.FirstRecorded), scanTime(&rs.LastRecorded)); err != nil {
			return nil, unavailable("scan route", err)
		}
		routes = append(routes, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list routes", err)
	}
	return routes, nil
}

const travelTimeColumns = `id, poll_id, route_id, route_name, current_min, average_min, recorded_at, upstream_updated_at`

// LatestTravelTimes returns the most recent travel time for every route.
func (s *Store) LatestTravelTimes(ctx context.Context) ([]models.TravelTime, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+travelTimeColumns+`
		FROM travel_times t
		WHERE id = (
			SELECT id FROM travel_times
			WHERE route_id = t.route_id
			ORDER BY recorded_at DESC, id DESC
			LIMIT 1
		)
		ORDER BY route_name
	`)
	if err != nil {
		return nil, unavailable("latest travel times", err)
	}
	defer rows.Close()
	return collectTravelTimes(rows)
}

// LatestTravelTime returns the most recent travel time for a route, or nil
// when the route has never been recorded.
func (s *Store) LatestTravelTime(ctx context.Context, routeID string) (*models.TravelTime, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+travelTimeColumns+`
		FROM travel_times
		WHERE route_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`, routeID)

	tt, err := scanTravelTime(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("latest travel time", err)
	}
	return &tt, nil
}

// TravelTimeHistory returns travel times recorded since the given time,
// newest first.
func (s *Store) TravelTimeHistory(ctx context.Context, routeID string, since time.Time, limit int) ([]models.TravelTime, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+travelTimeColumns+`
		FROM travel_times
		WHERE route_id = ? AND recorded_at >= ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, routeID, formatTime(since), limit)
	if err != nil {
		return nil, unavailable("travel time history", err)
	}
	defer rows.Close()
	return collectTravelTimes(rows)
}

// SegmentHistory returns up to limit route polls since the given time, newest
// first, each with its segments in route order.
func (s *Store) SegmentHistory(ctx context.Context, routeID string, since time.Time, limit int) ([]models.SegmentSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, poll_id, route_id, segment_order, segment_from, segment_to, duration_min, recorded_at
		FROM route_segments
		WHERE route_id = ? AND poll_id IN (
			SELECT poll_id FROM route_segments
			WHERE route_id = ? AND recorded_at >= ?
			GROUP BY poll_id
			ORDER BY MAX(recorded_at) DESC
			LIMIT ?
		)
		ORDER BY recorded_at DESC, poll_id, segment_order
	`, routeID, routeID, formatTime(since), limit)
	if err != nil {
		return nil, unavailable("segment history", err)
	}
	defer rows.Close()

	var snapshots []models.SegmentSnapshot
	for rows.Next() {
		var seg models.RouteSegment
		if err := rows.Scan(&seg.ID, &seg.PollID, &seg.RouteID, &seg.SegmentOrder, &seg.SegmentFrom, &seg.SegmentTo, &seg.DurationMin, scanTime(&seg.RecordedAt)); err != nil {
			return nil, unavailable("scan segment", err)
		}
		if n := len(snapshots); n == 0 || snapshots[n-1].PollID != seg.PollID {
			snapshots = append(snapshots, models.SegmentSnapshot{PollID: seg.PollID, RecordedAt: seg.RecordedAt})
		}
		last := &snapshots[len(snapshots)-1]
		last.Segments = append(last.Segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("segment history", err)
	}
	return snapshots, nil
}

func collectTravelTimes(rows *sql.Rows) ([]models.TravelTime, error) {
	var result []models.TravelTime
	for rows.Next() {
		tt, err := scanTravelTime(rows)
		if err != nil {
			return nil, unavailable("scan travel time", err)
		}
		result = append(result, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("travel times", err)
	}
	return result, nil
}

func scanTravelTime(row rowScanner) (models.TravelTime, error) {
	var (
		tt   models.TravelTime
		name sql.NullString
	)
	err := row.Scan(&tt.ID, &tt.PollID, &tt.RouteID, &name, &tt.CurrentMin, &tt.AverageMin, scanTime(&tt.RecordedAt), scanNullTime(&tt.UpdatedAt))
	tt.RouteName = name.String
	return tt, err
}
