// Package api serves route travel times and station accumulation as JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lox/snowtraffic/internal/accum"
	"github.com/lox/snowtraffic/internal/config"
	"github.com/lox/snowtraffic/internal/httputil"
	"github.com/lox/snowtraffic/internal/store"
)

const (
	defaultHours = 24
	maxHours     = 720
	defaultLimit = 1000
	maxLimit     = 5000

	// SNOTEL publishes hourly and often lags by an hour or two.
	staleThreshold = 3 * time.Hour
)

type Server struct {
	store     *store.Store
	projector *accum.Projector
	cfg       config.Config
	port      string
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewServer(st *store.Store, cfg config.Config, port string, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		store:     st,
		projector: accum.NewProjector(st, cfg),
		cfg:       cfg,
		port:      port,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /routes", s.handleRoutes)
	mux.HandleFunc("GET /current", s.handleCurrent)
	mux.HandleFunc("GET /current/{route_id}", s.handleCurrentRoute)
	mux.HandleFunc("GET /history/{route_id}", s.handleHistory)
	mux.HandleFunc("GET /segments/{route_id}", s.handleSegments)
	mux.HandleFunc("GET /weather/current", s.handleWeatherCurrent)
	mux.HandleFunc("GET /weather/history", s.handleWeatherHistory)
	mux.HandleFunc("GET /weather/{station_id}", s.handleWeatherStation)
	return s.logRequests(mux)
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Infof("api: listening on :%s", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debugw("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	if err := httputil.WriteJSON(w, status, v); err != nil {
		s.logger.Warnf("api: write response: %v", err)
	}
}

// writeError maps domain errors to HTTP statuses. An unavailable store is a
// 503 so clients can tell "unknown" from "empty".
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, accum.ErrUnknownStation):
		status, msg = http.StatusNotFound, "Station not found"
	case errors.Is(err, store.ErrStoreUnavailable):
		status, msg = http.StatusServiceUnavailable, "store unavailable"
	case errors.Is(err, context.Canceled):
		return
	}
	s.logger.Errorf("api: %s %s: %v", r.Method, r.URL.Path, err)
	httputil.WriteError(w, status, msg)
}
