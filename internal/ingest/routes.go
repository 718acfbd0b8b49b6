package ingest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lox/snowtraffic/internal/config"
	"github.com/lox/snowtraffic/internal/models"
)

const (
	DefaultRoutesURL = "https://routes.googleapis.com/directions/v2:computeRoutes"
	routesFieldMask  = "routes.duration,routes.distanceMeters,routes.staticDuration,routes.legs"
)

var ErrMissingAPIKey = errors.New("google maps api key not set")

// RoutesClient fetches traffic-aware travel times from the Google Routes API.
type RoutesClient struct {
	baseURL string
	apiKey  string
	fetcher *fetcher
	logger  *zap.SugaredLogger
}

func NewRoutesClient(baseURL, apiKey string, logger *zap.SugaredLogger) *RoutesClient {
	if baseURL == "" {
		baseURL = DefaultRoutesURL
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RoutesClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		fetcher: newFetcher("routes", logger),
		logger:  logger,
	}
}

type routesAddress struct {
	Address string `json:"address"`
}

type routesRequest struct {
	Origin                   routesAddress   `json:"origin"`
	Destination              routesAddress   `json:"destination"`
	Intermediates            []routesAddress `json:"intermediates,omitempty"`
	TravelMode               string          `json:"travelMode"`
	RoutingPreference        string          `json:"routingPreference"`
	ComputeAlternativeRoutes bool            `json:"computeAlternativeRoutes"`
	LanguageCode             string          `json:"languageCode"`
	Units                    string          `json:"units"`
}

type routesResponse struct {
	Routes []struct {
		Duration       string `json:"duration"`
		StaticDuration string `json:"staticDuration"`
		DistanceMeters int    `json:"distanceMeters"`
		Legs           []struct {
			Duration string `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// FetchTravelTime returns the route's current and no-traffic durations, its
// per-leg segments and the raw response body. An empty routes list means the
// road is closed: the travel time has null durations and there are no
// segments. PollID and RecordedAt are left for the caller to stamp.
func (c *RoutesClient) FetchTravelTime(ctx context.Context, route config.Route) (*models.TravelTime, []models.RouteSegment, []byte, error) {
	if c.apiKey == "" {
		return nil, nil, nil, ErrMissingAPIKey
	}

	payload := routesRequest{
		Origin:            routesAddress{Address: route.Origin},
		Destination:       routesAddress{Address: route.Destination},
		TravelMode:        "DRIVE",
		RoutingPreference: "TRAFFIC_AWARE",
		LanguageCode:      "en-US",
		Units:             "IMPERIAL",
	}
	for _, wp := range route.Waypoints {
		payload.Intermediates = append(payload.Intermediates, routesAddress{Address: wp.Location})
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	body, err := c.fetcher.do(ctx, route.ID, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Goog-Api-Key", c.apiKey)
		req.Header.Set("X-Goog-FieldMask", routesFieldMask)
		return req, nil
	})
	if err != nil {
		return nil, nil, nil, err
	}

	tt, segments, err := c.parse(body, route)
	if err != nil {
		return nil, nil, body, err
	}
	return tt, segments, body, nil
}

func (c *RoutesClient) parse(body []byte, route config.Route) (*models.TravelTime, []models.RouteSegment, error) {
	var data routesResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, nil, fmt.Errorf("unmarshal: %w", err)
	}

	tt := &models.TravelTime{RouteID: route.ID, RouteName: route.Name}
	if len(data.Routes) == 0 {
		c.logger.Warnf("routes: no routes returned for %s, marking closed", route.Name)
		return tt, nil, nil
	}

	r := data.Routes[0]
	current, err := parseMinutes(r.Duration)
	if err != nil {
		return nil, nil, fmt.Errorf("parse duration: %w", err)
	}
	average, err := parseMinutes(r.StaticDuration)
	if err != nil {
		return nil, nil, fmt.Errorf("parse static duration: %w", err)
	}
	tt.CurrentMin = sql.NullInt64{Int64: current, Valid: true}
	tt.AverageMin = sql.NullInt64{Int64: average, Valid: true}

	origin, dest := placeName(route.Origin), placeName(route.Destination)
	if len(route.Waypoints) == 0 || len(r.Legs) == 0 {
		return tt, []models.RouteSegment{{
			RouteID:     route.ID,
			SegmentFrom: origin,
			SegmentTo:   dest,
			DurationMin: tt.CurrentMin,
		}}, nil
	}

	names := []string{origin}
	for _, wp := range route.Waypoints {
		names = append(names, wp.Name)
	}
	names = append(names, dest)

	segments := make([]models.RouteSegment, 0, len(r.Legs))
	for i, leg := range r.Legs {
		mins, err := parseMinutes(leg.Duration)
		if err != nil {
			return nil, nil, fmt.Errorf("parse leg %d duration: %w", i, err)
		}
		segments = append(segments, models.RouteSegment{
			RouteID:      route.ID,
			SegmentOrder: i,
			SegmentFrom:  legName(names, i),
			SegmentTo:    legName(names, i+1),
			DurationMin:  sql.NullInt64{Int64: mins, Valid: true},
		})
	}
	return tt, segments, nil
}

// parseMinutes converts a protobuf duration string such as "5400s" to whole
// minutes. A missing duration is zero.
func parseMinutes(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return int64(d / time.Minute), nil
}

// placeName shortens "Mt Baker Ski Area, WA" to "Mt Baker".
func placeName(address string) string {
	name, _, _ := strings.Cut(address, ",")
	name = strings.ReplaceAll(name, "Ski Area", "")
	return strings.TrimSpace(name)
}

func legName(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("Waypoint %d", i)
}
