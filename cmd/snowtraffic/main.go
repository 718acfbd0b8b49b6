package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/snowtraffic/internal/accum"
	"github.com/lox/snowtraffic/internal/api"
	"github.com/lox/snowtraffic/internal/config"
	"github.com/lox/snowtraffic/internal/ingest"
	"github.com/lox/snowtraffic/internal/store"
)

type Globals struct {
	DB       string `help:"Path to SQLite database." default:"data/snowtraffic.db" env:"SNOWTRAFFIC_DB"`
	Timezone string `help:"Timezone for the daily cutoff and API times." default:"America/Los_Angeles" env:"SNOWTRAFFIC_TZ"`
	Debug    bool   `help:"Enable development logging." env:"SNOWTRAFFIC_DEBUG"`
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the HTTP API and pollers."`
	Poll    PollCmd    `cmd:"" help:"Poll every station and route once and exit."`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations and exit."`
	History HistoryCmd `cmd:"" help:"Print accumulation history for a station."`
}

// Upstream holds the settings shared by commands that talk to the data sources.
type Upstream struct {
	AWDBURL      string `name:"awdb-url" help:"AWDB base URL." default:"${awdb_url}" env:"AWDB_URL"`
	RoutesURL    string `name:"routes-url" help:"Routes API base URL." default:"${routes_url}" env:"ROUTES_API_URL"`
	RoutesAPIKey string `name:"routes-api-key" help:"Routes API key. Traffic polling is skipped when empty." env:"GOOGLE_MAPS_API_KEY"`
}

type ServeCmd struct {
	Upstream
	Port   string `help:"HTTP server port." default:"8080" env:"PORT"`
	NoPoll bool   `help:"Disable polling (server only, for local dev)."`
}

type PollCmd struct {
	Upstream
}

type MigrateCmd struct{}

type HistoryCmd struct {
	Station string `help:"Station ID (defaults to the first configured station)."`
	Hours   int    `help:"Hours of history to show." default:"24"`
}

// app is the wiring shared by every command.
type app struct {
	db     *sql.DB
	store  *store.Store
	cfg    config.Config
	logger *zap.SugaredLogger
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("snowtraffic"),
		kong.Description("Stevens Pass snow accumulation and pass traffic tracker."),
		kong.UsageOnError(),
		kong.Vars{
			"awdb_url":   ingest.DefaultAWDBURL,
			"routes_url": ingest.DefaultRoutesURL,
		},
	)

	logger, err := newLogger(cli.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	a, err := open(cli.Globals, logger)
	if err != nil {
		logger.Fatalw("startup failed", "error", err)
	}
	defer a.db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(a); err != nil {
		logger.Fatalw("command failed", "command", kctx.Command(), "error", err)
	}
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

func open(g Globals, logger *zap.SugaredLogger) (*app, error) {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", g.Timezone, err)
	}
	cfg := config.Default(loc)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", g.DB)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	st := store.New(db, logger)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &app{db: db, store: st, cfg: cfg, logger: logger}, nil
}

func (u Upstream) scheduler(a *app) *ingest.Scheduler {
	snotel := ingest.NewSNOTELClient(u.AWDBURL, a.cfg.Location, a.logger)

	var routes ingest.TravelTimeFetcher
	if u.RoutesAPIKey != "" {
		routes = ingest.NewRoutesClient(u.RoutesURL, u.RoutesAPIKey, a.logger)
	} else {
		a.logger.Warn("no routes API key, traffic polling disabled")
	}
	return ingest.NewScheduler(a.store, snotel, routes, a.cfg, a.logger)
}

func (c *ServeCmd) Run(ctx context.Context, a *app) error {
	if !c.NoPoll {
		go c.scheduler(a).Run(ctx)
	} else {
		a.logger.Info("polling disabled (--no-poll)")
	}
	return api.NewServer(a.store, a.cfg, c.Port, a.logger).Run(ctx)
}

func (c *PollCmd) Run(ctx context.Context, a *app) error {
	return c.scheduler(a).PollOnce(ctx)
}

func (c *MigrateCmd) Run(a *app) error {
	v, err := a.store.MigrationVersion()
	if err != nil {
		return err
	}
	a.logger.Infow("database migrated", "version", v)
	return nil
}

func (c *HistoryCmd) Run(ctx context.Context, a *app) error {
	stationID := c.Station
	if stationID == "" {
		stationID = a.cfg.Stations[0].ID
	}

	to := time.Now()
	from := to.Add(-time.Duration(c.Hours) * time.Hour)
	series, err := accum.NewProjector(a.store, a.cfg).Project(ctx, stationID, from, to)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MEASURED\tDEPTH\tPRECIP\tSNOW\tRAIN\tDENSITY\tBASELINE")
	for pt := range series.All() {
		baseline := "-"
		if pt.Baseline != nil {
			baseline = pt.Baseline.MeasuredAt.In(a.cfg.Location).Format("01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			pt.Reading.MeasuredAt.In(a.cfg.Location).Format("2006-01-02 15:04"),
			formatNull(pt.Reading.SnowDepthInches, "%.0f"),
			formatNull(pt.Reading.TotalPrecipInches, "%.1f"),
			formatNull(pt.Derived.SnowAccumInches, "%.0f"),
			formatNull(pt.Derived.RainAccumInches, "%.2f"),
			formatNull(pt.Derived.SnowDensity, "%.3f"),
			baseline,
		)
	}
	return w.Flush()
}

func formatNull(v sql.NullFloat64, format string) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf(format, v.Float64)
}
