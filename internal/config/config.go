// Package config holds the station and route configuration passed to the
// ingest, accumulation and API layers.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultTimezone         = "America/Los_Angeles"
	DefaultCutoffHour       = 16
	DefaultBaselineWindow   = time.Hour
	DefaultSnowToWaterRatio = 10.0
	DefaultPollInterval     = 15 * time.Minute
)

type Station struct {
	ID        string `validate:"required"`
	Name      string `validate:"required"`
	Triplet   string `validate:"required"` // AWDB station triplet, e.g. "791:WA:SNTL"
	Elevation int    `validate:"gte=0"`
	Type      string `validate:"oneof=base summit"`
}

type Waypoint struct {
	Location string `validate:"required"`
	Name     string `validate:"required"`
}

type Route struct {
	ID          string     `validate:"required"`
	Name        string     `validate:"required"`
	Origin      string     `validate:"required"`
	Destination string     `validate:"required"`
	Waypoints   []Waypoint `validate:"dive"`
}

// Config is built once at startup and handed to every component that needs
// station, route or baseline settings.
type Config struct {
	Stations       []Station `validate:"required,min=1,dive"`
	Routes         []Route   `validate:"dive"`
	ArchivedRoutes []string

	Location *time.Location `validate:"required"`

	// CutoffHour is the local hour of the daily accumulation baseline.
	CutoffHour int `validate:"gte=0,lte=23"`

	// BaselineWindow is the tolerance either side of the cutoff within which
	// a reading may stand in for the baseline.
	BaselineWindow time.Duration `validate:"gt=0"`

	SnowToWaterRatio float64 `validate:"gt=0"`

	WeatherInterval time.Duration `validate:"gt=0"`
	TrafficInterval time.Duration `validate:"gt=0"`
}

// Default returns the Stevens Pass configuration in the given location.
func Default(loc *time.Location) Config {
	routes := make([]Route, len(defaultRoutes))
	for i, r := range defaultRoutes {
		r.Waypoints = append([]Waypoint(nil), r.Waypoints...)
		routes[i] = r
	}
	return Config{
		Stations:         append([]Station(nil), defaultStations...),
		Routes:           routes,
		ArchivedRoutes:   append([]string(nil), archivedRoutes...),
		Location:         loc,
		CutoffHour:       DefaultCutoffHour,
		BaselineWindow:   DefaultBaselineWindow,
		SnowToWaterRatio: DefaultSnowToWaterRatio,
		WeatherInterval:  DefaultPollInterval,
		TrafficInterval:  DefaultPollInterval,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]bool, len(c.Stations))
	for _, st := range c.Stations {
		if seen[st.ID] {
			return fmt.Errorf("invalid config: duplicate station %q", st.ID)
		}
		seen[st.ID] = true
	}
	return nil
}

func (c Config) Station(id string) (Station, bool) {
	for _, st := range c.Stations {
		if st.ID == id {
			return st, true
		}
	}
	return Station{}, false
}

func (c Config) Route(id string) (Route, bool) {
	for _, r := range c.Routes {
		if r.ID == id {
			return r, true
		}
	}
	return Route{}, false
}

func (c Config) IsArchived(routeID string) bool {
	for _, id := range c.ArchivedRoutes {
		if id == routeID {
			return true
		}
	}
	return false
}

// ActiveRoutes returns the routes that are polled and shown.
func (c Config) ActiveRoutes() []Route {
	var routes []Route
	for _, r := range c.Routes {
		if !c.IsArchived(r.ID) {
			routes = append(routes, r)
		}
	}
	return routes
}
