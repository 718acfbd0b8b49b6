package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/snowtraffic/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db, nil)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func reading(station string, measured, recorded time.Time, depth float64) models.RawReading {
	return models.RawReading{
		StationID:       station,
		StationName:     "Test Station",
		MeasuredAt:      measured,
		RecordedAt:      recorded,
		SnowDepthInches: sql.NullFloat64{Float64: depth, Valid: true},
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}

func TestInsertReading_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	measured := time.Date(2026, 1, 8, 18, 0, 0, 0, time.UTC)
	recorded := measured.Add(15*time.Minute + 250*time.Millisecond)
	r := reading("snotel-791", measured, recorded, 60)
	r.StationElevation = sql.NullInt64{Int64: 3940, Valid: true}
	r.StationType = "base"
	r.TotalPrecipInches = sql.NullFloat64{Float64: 60.4, Valid: true}

	id, err := store.InsertReading(ctx, r)
	if err != nil {
		t.Fatalf("InsertReading: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero id")
	}

	got, err := store.QueryReadings(ctx, "snotel-791", measured, measured)
	if err != nil {
		t.Fatalf("QueryReadings: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	g := got[0]
	if !g.MeasuredAt.Equal(measured) {
		t.Errorf("MeasuredAt = %v, want %v", g.MeasuredAt, measured)
	}
	if !g.RecordedAt.Equal(recorded.Truncate(time.Microsecond)) {
		t.Errorf("RecordedAt = %v, want %v", g.RecordedAt, recorded)
	}
	if g.SnowDepthInches.Float64 != 60 || !g.TotalPrecipInches.Valid || g.TotalPrecipInches.Float64 != 60.4 {
		t.Errorf("measurements = %v / %v", g.SnowDepthInches, g.TotalPrecipInches)
	}
	if g.TemperatureF.Valid {
		t.Errorf("TemperatureF = %v, want NULL", g.TemperatureF)
	}
	if g.StationElevation.Int64 != 3940 || g.StationType != "base" || g.StationName != "Test Station" {
		t.Errorf("station fields = %v %q %q", g.StationElevation, g.StationType, g.StationName)
	}
}

func TestInsertReading_Malformed(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name string
		r    models.RawReading
	}{
		{"missing station", models.RawReading{MeasuredAt: now}},
		{"missing measured_at", models.RawReading{StationID: "snotel-791"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.InsertReading(ctx, tt.r)
			if !errors.Is(err, ErrMalformedReading) {
				t.Fatalf("err = %v, want ErrMalformedReading", err)
			}
		})
	}

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM weather_readings").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 (malformed readings must not be stored)", count)
	}
}

func TestInsertReading_KeepsDuplicates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	measured := time.Date(2026, 1, 8, 18, 0, 0, 0, time.UTC)
	for i, depth := range []float64{60, 61} {
		r := reading("snotel-791", measured, measured.Add(time.Duration(i+1)*time.Minute), depth)
		if _, err := store.InsertReading(ctx, r); err != nil {
			t.Fatalf("InsertReading %d: %v", i, err)
		}
	}

	got, err := store.QueryReadings(ctx, "snotel-791", measured, measured)
	if err != nil {
		t.Fatalf("QueryReadings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2 (duplicates are kept at write time)", len(got))
	}
}

func TestQueryReadings_RangeAndStation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 6; h++ {
		at := base.Add(time.Duration(h) * time.Hour)
		if _, err := store.InsertReading(ctx, reading("snotel-791", at, at, float64(h))); err != nil {
			t.Fatal(err)
		}
		if _, err := store.InsertReading(ctx, reading("other", at, at, float64(h))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.QueryReadings(ctx, "snotel-791", base.Add(time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("QueryReadings: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3 (range is inclusive)", len(got))
	}
	for _, r := range got {
		if r.StationID != "snotel-791" {
			t.Errorf("StationID = %q, want snotel-791", r.StationID)
		}
	}

	// Non-UTC bounds select the same instants.
	pacific := time.FixedZone("PST", -8*3600)
	got, err = store.QueryReadings(ctx, "snotel-791", base.Add(time.Hour).In(pacific), base.Add(3*time.Hour).In(pacific))
	if err != nil {
		t.Fatalf("QueryReadings: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len(got) with PST bounds = %d, want 3", len(got))
	}
}

func TestLatestMeasuredAt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.LatestMeasuredAt(ctx, "snotel-791"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v, want false nil", ok, err)
	}

	base := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	for _, h := range []int{3, 1, 2} {
		at := base.Add(time.Duration(h) * time.Hour)
		if _, err := store.InsertReading(ctx, reading("snotel-791", at, at, 1)); err != nil {
			t.Fatal(err)
		}
	}

	latest, ok, err := store.LatestMeasuredAt(ctx, "snotel-791")
	if err != nil || !ok {
		t.Fatalf("LatestMeasuredAt: ok=%v err=%v", ok, err)
	}
	if want := base.Add(3 * time.Hour); !latest.Equal(want) {
		t.Errorf("latest = %v, want %v", latest, want)
	}
}

func TestStoreUnavailable(t *testing.T) {
	store := setupTestStore(t)
	store.db.Close()

	_, err := store.QueryReadings(context.Background(), "snotel-791", time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("QueryReadings err = %v, want ErrStoreUnavailable", err)
	}
	_, err = store.InsertReading(context.Background(), reading("snotel-791", time.Now(), time.Now(), 1))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("InsertReading err = %v, want ErrStoreUnavailable", err)
	}
}

func TestCanceledContext(t *testing.T) {
	store := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.InsertReading(ctx, reading("snotel-791", time.Now(), time.Now(), 1))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrStoreUnavailable) {
		t.Error("cancellation should not be reported as ErrStoreUnavailable")
	}

	got, err := store.QueryReadings(context.Background(), "snotel-791", time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("len(got) = %d, want 0 after cancelled insert", len(got))
	}
}

func TestConcurrentInsertAndQuery(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			at := base.Add(time.Duration(i) * time.Minute)
			_, err := store.InsertReading(ctx, reading("snotel-791", at, at, float64(i)))
			errs <- err
		}(i)
		go func() {
			defer wg.Done()
			readings, err := store.QueryReadings(ctx, "snotel-791", base, base.Add(time.Hour))
			if err == nil {
				for _, r := range readings {
					if r.StationID == "" || r.MeasuredAt.IsZero() {
						t.Errorf("partially written row observed: %+v", r)
					}
				}
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent op: %v", err)
		}
	}

	got, err := store.QueryReadings(ctx, "snotel-791", base, base.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Errorf("len(got) = %d, want 20", len(got))
	}
}

func TestRoutePolls(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 8, 8, 0, 0, 0, time.UTC)

	polls := []struct {
		pollID  string
		route   string
		name    string
		current int64
		at      time.Time
	}{
		{"p1", "redmond-stevens-eb", "Redmond to Stevens Pass", 95, base},
		{"p2", "redmond-stevens-eb", "Redmond to Stevens Pass", 92, base.Add(15 * time.Minute)},
		{"p3", "redmond-stevens-eb", "Redmond to Stevens Pass", 90, base.Add(30 * time.Minute)},
		{"p4", "stevens-redmond-wb", "Stevens Pass to Redmond", 86, base.Add(30 * time.Minute)},
	}
	for _, p := range polls {
		tt := models.TravelTime{
			PollID:     p.pollID,
			RouteID:    p.route,
			RouteName:  p.name,
			CurrentMin: sql.NullInt64{Int64: p.current, Valid: true},
			AverageMin: sql.NullInt64{Int64: 85, Valid: true},
			RecordedAt: p.at,
		}
		segs := []models.RouteSegment{
			{SegmentFrom: "Redmond", SegmentTo: "Monroe", DurationMin: sql.NullInt64{Int64: 30, Valid: true}},
			{SegmentFrom: "Monroe", SegmentTo: "Stevens Pass", DurationMin: sql.NullInt64{Int64: p.current - 30, Valid: true}},
		}
		if err := store.InsertRoutePoll(ctx, tt, segs); err != nil {
			t.Fatalf("InsertRoutePoll %s: %v", p.pollID, err)
		}
	}

	routes, err := store.ListRoutes(ctx)
	if err != nil {
		t.Fatalf("ListRoutes: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("len(routes) = %d, want 2", len(routes))
	}
	if routes[0].RouteID != "redmond-stevens-eb" || routes[0].RecordCount != 3 {
		t.Errorf("routes[0] = %+v", routes[0])
	}
	if !routes[0].FirstRecorded.Equal(base) || !routes[0].LastRecorded.Equal(base.Add(30*time.Minute)) {
		t.Errorf("recorded range = %v..%v", routes[0].FirstRecorded, routes[0].LastRecorded)
	}

	latest, err := store.LatestTravelTimes(ctx)
	if err != nil {
		t.Fatalf("LatestTravelTimes: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("len(latest) = %d, want 2", len(latest))
	}
	if latest[0].CurrentMin.Int64 != 90 {
		t.Errorf("latest eb current = %d, want 90", latest[0].CurrentMin.Int64)
	}

	one, err := store.LatestTravelTime(ctx, "stevens-redmond-wb")
	if err != nil || one == nil {
		t.Fatalf("LatestTravelTime: %v %v", one, err)
	}
	if one.PollID != "p4" {
		t.Errorf("PollID = %q, want p4", one.PollID)
	}
	if missing, err := store.LatestTravelTime(ctx, "nope"); err != nil || missing != nil {
		t.Errorf("unknown route: %v %v, want nil nil", missing, err)
	}

	history, err := store.TravelTimeHistory(ctx, "redmond-stevens-eb", base.Add(10*time.Minute), 10)
	if err != nil {
		t.Fatalf("TravelTimeHistory: %v", err)
	}
	if len(history) != 2 || history[0].PollID != "p3" || history[1].PollID != "p2" {
		t.Errorf("history = %+v, want p3, p2", history)
	}

	snapshots, err := store.SegmentHistory(ctx, "redmond-stevens-eb", base, 2)
	if err != nil {
		t.Fatalf("SegmentHistory: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("len(snapshots) = %d, want 2 (limit)", len(snapshots))
	}
	if snapshots[0].PollID != "p3" || len(snapshots[0].Segments) != 2 {
		t.Errorf("snapshots[0] = %+v", snapshots[0])
	}
	if snapshots[0].Segments[0].SegmentFrom != "Redmond" || snapshots[0].Segments[1].SegmentOrder != 1 {
		t.Errorf("segments out of order: %+v", snapshots[0].Segments)
	}
}

func TestInsertRoutePoll_ClosedRoute(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tt := models.TravelTime{PollID: "p1", RouteID: "redmond-stevens-eb", RouteName: "Redmond to Stevens Pass"}
	if err := store.InsertRoutePoll(ctx, tt, nil); err != nil {
		t.Fatalf("InsertRoutePoll: %v", err)
	}
	got, err := store.LatestTravelTime(ctx, "redmond-stevens-eb")
	if err != nil || got == nil {
		t.Fatalf("LatestTravelTime: %v %v", got, err)
	}
	if got.CurrentMin.Valid || got.AverageMin.Valid {
		t.Errorf("closed route should have NULL minutes, got %v %v", got.CurrentMin, got.AverageMin)
	}
}

func TestIngestRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ok, err := store.StartIngestRun(ctx, "snotel", "snotel-791")
	if err != nil {
		t.Fatalf("StartIngestRun: %v", err)
	}
	ok.Success = true
	ok.RecordsStored = sql.NullInt64{Int64: 1, Valid: true}
	if err := store.CompleteIngestRun(ctx, ok); err != nil {
		t.Fatalf("CompleteIngestRun: %v", err)
	}

	failed, err := store.StartIngestRun(ctx, "routes", "redmond-stevens-eb")
	if err != nil {
		t.Fatal(err)
	}
	failed.ErrorMessage = sql.NullString{String: "status 500", Valid: true}
	if err := store.CompleteIngestRun(ctx, failed); err != nil {
		t.Fatal(err)
	}

	// In-flight runs are not failures yet.
	if _, err := store.StartIngestRun(ctx, "routes", "stevens-redmond-wb"); err != nil {
		t.Fatal(err)
	}

	errs, err := store.RecentIngestErrors(ctx, 10)
	if err != nil {
		t.Fatalf("RecentIngestErrors: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("len(errs) = %d, want 1", len(errs))
	}
	if errs[0].Target != "redmond-stevens-eb" || errs[0].ErrorMessage.String != "status 500" || !errs[0].FinishedAt.Valid {
		t.Errorf("errs[0] = %+v", errs[0])
	}
}

func TestRawPayloads(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run, err := store.StartIngestRun(ctx, "snotel", "snotel-791")
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte(`[{"stationTriplet":"791:WA:SNTL","data":[]}]`)

	id, err := store.StoreRawPayload(ctx, run.ID, "snotel", "snotel-791", payload)
	if err != nil {
		t.Fatalf("StoreRawPayload: %v", err)
	}
	if id == 0 {
		t.Fatal("expected payload id")
	}

	dup, err := store.StoreRawPayload(ctx, 0, "snotel", "snotel-791", payload)
	if err != nil {
		t.Fatalf("StoreRawPayload duplicate: %v", err)
	}
	if dup != 0 {
		t.Errorf("duplicate id = %d, want 0", dup)
	}

	got, err := store.GetRawPayload(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRawPayload: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}

	none, err := store.GetRawPayload(ctx, 999)
	if err != nil || none != nil {
		t.Errorf("missing payload: %q %v", none, err)
	}
}
