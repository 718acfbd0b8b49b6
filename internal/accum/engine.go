package accum

import (
	"database/sql"
	"math"

	"github.com/lox/snowtraffic/internal/config"
	"github.com/lox/snowtraffic/internal/models"
)

// DefaultSnowToWaterRatio is the inches of new snow assumed per inch of
// water. It is a fixed approximation and is inaccurate in mixed precipitation.
const DefaultSnowToWaterRatio = config.DefaultSnowToWaterRatio

// Engine computes derived accumulation for a reading against its baseline.
// The zero value uses DefaultSnowToWaterRatio.
type Engine struct {
	SnowToWaterRatio float64
}

func NewEngine(cfg config.Config) Engine {
	return Engine{SnowToWaterRatio: cfg.SnowToWaterRatio}
}

func (e Engine) ratio() float64 {
	if e.SnowToWaterRatio > 0 {
		return e.SnowToWaterRatio
	}
	return DefaultSnowToWaterRatio
}

// Compute derives accumulation for current since baseline. A nil baseline, or
// a missing measurement on either side, leaves the affected fields invalid
// rather than zero.
func (e Engine) Compute(current models.RawReading, baseline *models.RawReading) models.DerivedPoint {
	var p models.DerivedPoint
	if baseline == nil || !current.SnowDepthInches.Valid || !baseline.SnowDepthInches.Valid {
		return p
	}

	snow := math.Max(0, current.SnowDepthInches.Float64-baseline.SnowDepthInches.Float64)
	p.SnowAccumInches = valid(snow)

	if !current.TotalPrecipInches.Valid || !baseline.TotalPrecipInches.Valid {
		return p
	}

	// Counter resets show up as negative deltas and are not precipitation.
	precip := math.Max(0, current.TotalPrecipInches.Float64-baseline.TotalPrecipInches.Float64)
	rain := math.Max(0, precip-snow/e.ratio())
	p.RainAccumInches = valid(rain)

	if snow > 0 {
		if water := precip - rain; water > 0 {
			p.SnowDensity = valid(water / snow)
		}
	}
	return p
}

func valid(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}
