package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/lox/snowtraffic/internal/config"
	"github.com/lox/snowtraffic/internal/models"
)

const DefaultAWDBURL = "https://wcc.sc.egov.usda.gov/awdbRestApi/services/v1/data"

const (
	ElementTemperature = "TOBS"
	ElementPrecip      = "PREC"
	ElementSnowDepth   = "SNWD"
)

var ErrNoData = errors.New("no data returned")

// SNOTELClient fetches hourly station data from the NRCS AWDB REST API.
type SNOTELClient struct {
	baseURL string
	loc     *time.Location
	fetcher *fetcher
}

func NewSNOTELClient(baseURL string, loc *time.Location, logger *zap.SugaredLogger) *SNOTELClient {
	if baseURL == "" {
		baseURL = DefaultAWDBURL
	}
	return &SNOTELClient{
		baseURL: baseURL,
		loc:     loc,
		fetcher: newFetcher("snotel", logger),
	}
}

type awdbStation struct {
	StationTriplet string        `json:"stationTriplet"`
	Data           []awdbElement `json:"data"`
}

type awdbElement struct {
	StationElement struct {
		ElementCode string `json:"elementCode"`
	} `json:"stationElement"`
	Values []awdbValue `json:"values"`
}

type awdbValue struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// FetchReading returns the station's latest reading and the raw response body.
// Each element contributes its most recent non-null value; MeasuredAt comes
// from temperature, then precipitation, then snow depth. RecordedAt is left
// for the caller to stamp.
func (c *SNOTELClient) FetchReading(ctx context.Context, st config.Station) (*models.RawReading, []byte, error) {
	params := url.Values{}
	params.Set("stationTriplets", st.Triplet)
	params.Set("elements", ElementTemperature+","+ElementPrecip+","+ElementSnowDepth)
	params.Set("ordinal", "1")
	params.Set("duration", "HOURLY")
	params.Set("getFlags", "false")
	reqURL := c.baseURL + "?" + params.Encode()

	body, err := c.fetcher.do(ctx, st.ID, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	})
	if err != nil {
		return nil, nil, err
	}

	reading, err := c.parse(body, st)
	if err != nil {
		return nil, body, err
	}
	return reading, body, nil
}

func (c *SNOTELClient) parse(body []byte, st config.Station) (*models.RawReading, error) {
	var data []awdbStation
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, st.Triplet)
	}

	latest := make(map[string]awdbValue)
	for _, el := range data[0].Data {
		if v, ok := latestValue(el.Values); ok {
			latest[el.StationElement.ElementCode] = v
		}
	}

	r := &models.RawReading{
		StationID:        st.ID,
		StationName:      st.Name,
		StationElevation: sql.NullInt64{Int64: int64(st.Elevation), Valid: true},
		StationType:      st.Type,
	}
	if v, ok := latest[ElementTemperature]; ok {
		r.TemperatureF = sql.NullFloat64{Float64: *v.Value, Valid: true}
	}
	if v, ok := latest[ElementPrecip]; ok {
		r.TotalPrecipInches = sql.NullFloat64{Float64: *v.Value, Valid: true}
	}
	if v, ok := latest[ElementSnowDepth]; ok {
		r.SnowDepthInches = sql.NullFloat64{Float64: *v.Value, Valid: true}
	}

	for _, code := range []string{ElementTemperature, ElementPrecip, ElementSnowDepth} {
		v, ok := latest[code]
		if !ok {
			continue
		}
		t, err := c.parseDate(v.Date)
		if err != nil {
			return nil, fmt.Errorf("parse %s date: %w", code, err)
		}
		r.MeasuredAt = t
		break
	}
	if r.MeasuredAt.IsZero() {
		return nil, fmt.Errorf("%w for %s: no element has a value", ErrNoData, st.Triplet)
	}
	return r, nil
}

func latestValue(values []awdbValue) (awdbValue, bool) {
	for i := len(values) - 1; i >= 0; i-- {
		if values[i].Value != nil {
			return values[i], true
		}
	}
	return awdbValue{}, false
}

// AWDB reports station-local wall-clock times without an offset.
var awdbLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (c *SNOTELClient) parseDate(s string) (time.Time, error) {
	loc := c.loc
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range awdbLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
