package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lox/snowtraffic/internal/config"
	"github.com/lox/snowtraffic/internal/metrics"
	"github.com/lox/snowtraffic/internal/models"
	"github.com/lox/snowtraffic/internal/store"
)

const (
	SourceSNOTEL = "snotel"
	SourceRoutes = "routes"
)

// pollConcurrency bounds simultaneous upstream requests per poll.
const pollConcurrency = 4

type ReadingFetcher interface {
	FetchReading(ctx context.Context, st config.Station) (*models.RawReading, []byte, error)
}

type TravelTimeFetcher interface {
	FetchTravelTime(ctx context.Context, route config.Route) (*models.TravelTime, []models.RouteSegment, []byte, error)
}

type Scheduler struct {
	store     *store.Store
	snotel    ReadingFetcher
	routes    TravelTimeFetcher
	cfg       config.Config
	logger    *zap.SugaredLogger
	now       func() time.Time
	newPollID func() string
}

// NewScheduler wires the upstream clients to the store. routes may be nil,
// in which case traffic polling is skipped.
func NewScheduler(st *store.Store, snotel ReadingFetcher, routes TravelTimeFetcher, cfg config.Config, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{
		store:     st,
		snotel:    snotel,
		routes:    routes,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		newPollID: uuid.NewString,
	}
}

// Run polls immediately and then on the weather and traffic intervals until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.PollOnce(ctx); err != nil {
		s.logger.Errorf("scheduler: initial poll: %v", err)
	}

	weatherTicker := time.NewTicker(s.cfg.WeatherInterval)
	trafficTicker := time.NewTicker(s.cfg.TrafficInterval)
	defer weatherTicker.Stop()
	defer trafficTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: shutting down")
			return
		case <-weatherTicker.C:
			if _, err := s.PollWeather(ctx); err != nil {
				s.logger.Errorf("scheduler: poll weather: %v", err)
			}
		case <-trafficTicker.C:
			if _, err := s.PollTraffic(ctx); err != nil {
				s.logger.Errorf("scheduler: poll traffic: %v", err)
			}
		}
	}
}

// PollOnce polls every station and active route concurrently.
func (s *Scheduler) PollOnce(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.PollWeather(gctx)
		return err
	})
	g.Go(func() error {
		_, err := s.PollTraffic(gctx)
		return err
	})
	return g.Wait()
}

// PollWeather fetches and stores one reading per configured station and
// returns how many were stored. Upstream failures are logged and audited
// without stopping other stations; only store failures are returned.
func (s *Scheduler) PollWeather(ctx context.Context) (int, error) {
	s.logger.Infof("scheduler: polling %d weather stations", len(s.cfg.Stations))

	var stored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for _, st := range s.cfg.Stations {
		g.Go(func() error {
			ok, err := s.pollStation(gctx, st)
			if ok {
				stored.Add(1)
			}
			return err
		})
	}
	err := g.Wait()

	n := int(stored.Load())
	s.logger.Infof("scheduler: inserted %d readings", n)
	return n, err
}

func (s *Scheduler) pollStation(ctx context.Context, st config.Station) (bool, error) {
	run := s.startRun(ctx, SourceSNOTEL, st.ID)

	reading, body, err := s.snotel.FetchReading(ctx, st)
	s.storePayload(ctx, run, SourceSNOTEL, st.ID, body)
	if err != nil {
		s.logger.Warnf("scheduler: fetch %s: %v", st.ID, err)
		s.completeRun(ctx, run, 0, err)
		return false, nil
	}

	now := s.now()
	reading.RecordedAt = now
	if flags := ValidateReading(reading, now); len(flags) > 0 {
		s.logger.Warnf("scheduler: %s: quality flags %v", st.ID, flags)
		for _, f := range flags {
			metrics.ReadingsFlagged.WithLabelValues(st.ID, f).Inc()
		}
	}

	if _, err := s.store.InsertReading(ctx, *reading); err != nil {
		s.logger.Errorf("scheduler: insert %s: %v", st.ID, err)
		s.completeRun(ctx, run, 0, fmt.Errorf("insert: %w", err))
		if errors.Is(err, store.ErrStoreUnavailable) {
			return false, err
		}
		return false, nil
	}

	metrics.ReadingsIngested.WithLabelValues(st.ID).Inc()
	s.completeRun(ctx, run, 1, nil)
	s.logger.Infow("scheduler: stored reading",
		"station", st.ID,
		"measured_at", reading.MeasuredAt,
		"snow_depth_in", reading.SnowDepthInches.Float64,
		"precip_in", reading.TotalPrecipInches.Float64,
	)
	return true, nil
}

// PollTraffic fetches and stores travel times for every active route under a
// fresh poll id per route, and returns how many routes were stored.
func (s *Scheduler) PollTraffic(ctx context.Context) (int, error) {
	if s.routes == nil {
		s.logger.Debug("scheduler: no routes client, skipping traffic poll")
		return 0, nil
	}
	routes := s.cfg.ActiveRoutes()
	s.logger.Infof("scheduler: polling %d routes", len(routes))

	var stored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for _, route := range routes {
		g.Go(func() error {
			ok, err := s.pollRoute(gctx, route)
			if ok {
				stored.Add(1)
			}
			return err
		})
	}
	err := g.Wait()

	n := int(stored.Load())
	s.logger.Infof("scheduler: inserted %d travel times", n)
	return n, err
}

func (s *Scheduler) pollRoute(ctx context.Context, route config.Route) (bool, error) {
	run := s.startRun(ctx, SourceRoutes, route.ID)

	tt, segments, body, err := s.routes.FetchTravelTime(ctx, route)
	s.storePayload(ctx, run, SourceRoutes, route.ID, body)
	if err != nil {
		s.logger.Warnf("scheduler: fetch route %s: %v", route.ID, err)
		s.completeRun(ctx, run, 0, err)
		return false, nil
	}

	now := s.now()
	tt.PollID = s.newPollID()
	tt.RecordedAt = now
	tt.UpdatedAt = sql.NullTime{Time: now, Valid: true}

	if err := s.store.InsertRoutePoll(ctx, *tt, segments); err != nil {
		s.logger.Errorf("scheduler: insert route %s: %v", route.ID, err)
		s.completeRun(ctx, run, 0, fmt.Errorf("insert: %w", err))
		if errors.Is(err, store.ErrStoreUnavailable) {
			return false, err
		}
		return false, nil
	}

	metrics.TravelTimesIngested.WithLabelValues(route.ID).Inc()
	s.completeRun(ctx, run, 1+len(segments), nil)
	if tt.CurrentMin.Valid {
		s.logger.Infof("scheduler: %s: %d min (average %d)", route.ID, tt.CurrentMin.Int64, tt.AverageMin.Int64)
	} else {
		s.logger.Infof("scheduler: %s: closed", route.ID)
	}
	return true, nil
}

func (s *Scheduler) startRun(ctx context.Context, source, target string) *store.IngestRun {
	run, err := s.store.StartIngestRun(ctx, source, target)
	if err != nil {
		s.logger.Warnf("scheduler: start ingest run %s/%s: %v", source, target, err)
		return nil
	}
	return run
}

func (s *Scheduler) completeRun(ctx context.Context, run *store.IngestRun, records int, err error) {
	if run == nil {
		return
	}
	run.Success = err == nil
	run.RecordsStored = sql.NullInt64{Int64: int64(records), Valid: err == nil}
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}
	// Audit rows are closed even when the poll was cancelled.
	if cerr := s.store.CompleteIngestRun(context.WithoutCancel(ctx), run); cerr != nil {
		s.logger.Warnf("scheduler: complete ingest run %d: %v", run.ID, cerr)
	}
}

func (s *Scheduler) storePayload(ctx context.Context, run *store.IngestRun, source, target string, body []byte) {
	if run == nil || len(body) == 0 {
		return
	}
	if _, err := s.store.StoreRawPayload(ctx, run.ID, source, target, body); err != nil {
		s.logger.Warnf("scheduler: store %s raw payload %s: %v", source, target, err)
	}
}
