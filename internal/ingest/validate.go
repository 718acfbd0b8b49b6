package ingest

import (
	"time"

	"github.com/lox/snowtraffic/internal/models"
)

const (
	FlagTempOutOfRange   = "temp_out_of_range"
	FlagDepthNegative    = "snow_depth_negative"
	FlagDepthUnlikely    = "snow_depth_unlikely"
	FlagPrecipNegative   = "precip_negative"
	FlagPrecipUnlikely   = "precip_unlikely"
	FlagMeasuredInFuture = "measured_in_future"
)

// ValidateReading returns quality flags for implausible SNOTEL values. Flagged
// readings are still stored; the flags are logged and counted.
func ValidateReading(r *models.RawReading, now time.Time) []string {
	var flags []string

	if r.TemperatureF.Valid {
		if r.TemperatureF.Float64 < -60 || r.TemperatureF.Float64 > 120 {
			flags = append(flags, FlagTempOutOfRange)
		}
	}

	if r.SnowDepthInches.Valid {
		if r.SnowDepthInches.Float64 < 0 {
			flags = append(flags, FlagDepthNegative)
		} else if r.SnowDepthInches.Float64 > 600 {
			flags = append(flags, FlagDepthUnlikely)
		}
	}

	if r.TotalPrecipInches.Valid {
		if r.TotalPrecipInches.Float64 < 0 {
			flags = append(flags, FlagPrecipNegative)
		} else if r.TotalPrecipInches.Float64 > 400 {
			flags = append(flags, FlagPrecipUnlikely)
		}
	}

	if !now.IsZero() && r.MeasuredAt.After(now.Add(time.Hour)) {
		flags = append(flags, FlagMeasuredInFuture)
	}

	return flags
}
