package api

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lox/snowtraffic/internal/config"
	"github.com/lox/snowtraffic/internal/httputil"
	"github.com/lox/snowtraffic/internal/metrics"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":      "snowtraffic",
		"endpoints": map[string]string{
			"/routes":               "List tracked routes",
			"/current":              "Get current status for all routes",
			"/current/{route_id}":   "Get current status for specific route",
			"/history/{route_id}":   "Get historical travel times for a route",
			"/segments/{route_id}":  "Get segment travel times for a route",
			"/weather/current":      "Get latest readings with accumulation since 4pm",
			"/weather/history":      "Get reading history with accumulation",
			"/weather/{station_id}": "Get latest reading for a station",
			"/health":               "Station freshness",
			"/metrics":              "Prometheus metrics",
		},
	})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.ListRoutes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]RouteInfo, 0, len(stats))
	for _, rs := range stats {
		if s.cfg.IsArchived(rs.RouteID) {
			continue
		}
		out = append(out, newRouteInfo(rs, s.cfg.Location))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.LatestTravelTimes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]CurrentStatus, 0, len(latest))
	for _, tt := range latest {
		if s.cfg.IsArchived(tt.RouteID) {
			continue
		}
		out = append(out, newCurrentStatus(tt, s.cfg.Location))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCurrentRoute(w http.ResponseWriter, r *http.Request) {
	tt, err := s.store.LatestTravelTime(r.Context(), r.PathValue("route_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tt == nil {
		httputil.WriteError(w, http.StatusNotFound, "Route not found")
		return
	}
	s.writeJSON(w, http.StatusOK, newCurrentStatus(*tt, s.cfg.Location))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hours, limit, err := rangeParams(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	since := s.now().Add(-time.Duration(hours) * time.Hour)
	history, err := s.store.TravelTimeHistory(r.Context(), r.PathValue("route_id"), since, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]TravelTimeRecord, 0, len(history))
	for _, tt := range history {
		out = append(out, newTravelTimeRecord(tt, s.cfg.Location))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	hours, limit, err := rangeParams(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	since := s.now().Add(-time.Duration(hours) * time.Hour)
	snaps, err := s.store.SegmentHistory(r.Context(), r.PathValue("route_id"), since, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]SegmentSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, newSegmentSnapshot(snap, s.cfg.Location))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWeatherCurrent(w http.ResponseWriter, r *http.Request) {
	stations := slices.Clone(s.cfg.Stations)
	slices.SortStableFunc(stations, func(a, b config.Station) int {
		if a.Type != b.Type {
			return strings.Compare(a.Type, b.Type)
		}
		return a.Elevation - b.Elevation
	})

	out := make([]WeatherPoint, 0, len(stations))
	for _, st := range stations {
		pt, err := s.projector.Latest(r.Context(), st.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		metrics.ProjectionsTotal.WithLabelValues(st.ID, "latest").Inc()
		if pt == nil {
			continue
		}
		out = append(out, newWeatherPoint(*pt, s.cfg.Location))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWeatherHistory(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		stationID = s.cfg.Stations[0].ID
	}
	hours, err := intParam(r, "hours", defaultHours, maxHours)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	to := s.now()
	from := to.Add(-time.Duration(hours) * time.Hour)
	series, err := s.projector.Project(r.Context(), stationID, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.ProjectionsTotal.WithLabelValues(stationID, "history").Inc()

	out := make([]WeatherPoint, 0, series.Len())
	for pt := range series.All() {
		out = append(out, newWeatherPoint(pt, s.cfg.Location))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWeatherStation(w http.ResponseWriter, r *http.Request) {
	stationID := r.PathValue("station_id")
	pt, err := s.projector.Latest(r.Context(), stationID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.ProjectionsTotal.WithLabelValues(stationID, "latest").Inc()
	if pt == nil {
		httputil.WriteError(w, http.StatusNotFound, "Station not found")
		return
	}
	s.writeJSON(w, http.StatusOK, newWeatherPoint(*pt, s.cfg.Location))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	health := HealthStatus{
		Status:   "ok",
		Stations: make([]StationHealth, 0, len(s.cfg.Stations)),
	}
	now := s.now()

	for _, st := range s.cfg.Stations {
		last, ok, err := s.store.LatestMeasuredAt(ctx, st.ID)
		if err != nil {
			health.Errors = append(health.Errors, st.ID+": "+err.Error())
			continue
		}

		sh := StationHealth{StationID: st.ID}
		if ok {
			sh.LastMeasured = last.In(s.cfg.Location)
			sh.AgeMinutes = int(now.Sub(last).Minutes())
			sh.Stale = now.Sub(last) > staleThreshold
		} else {
			sh.Stale = true
			sh.AgeMinutes = -1
		}

		if sh.Stale {
			health.Status = "degraded"
		}
		health.Stations = append(health.Stations, sh)
	}

	if runs, err := s.store.RecentIngestErrors(ctx, 5); err != nil {
		health.Errors = append(health.Errors, "ingest runs: "+err.Error())
	} else {
		for _, run := range runs {
			health.RecentErrors = append(health.RecentErrors, newIngestError(run, s.cfg.Location))
		}
	}

	if len(health.Errors) > 0 {
		health.Status = "error"
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

// rangeParams reads the hours and limit query parameters used by the route
// history endpoints.
func rangeParams(r *http.Request) (hours, limit int, err error) {
	if hours, err = intParam(r, "hours", defaultHours, maxHours); err != nil {
		return 0, 0, err
	}
	if limit, err = intParam(r, "limit", defaultLimit, maxLimit); err != nil {
		return 0, 0, err
	}
	return hours, limit, nil
}

// intParam parses a positive integer query parameter, clamping it to ceiling.
func intParam(r *http.Request, name string, def, ceiling int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return min(v, ceiling), nil
}
