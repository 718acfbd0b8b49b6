// Package traffic derives route status from stored travel times.
package traffic

import (
	"math"

	"github.com/lox/snowtraffic/internal/models"
)

const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Status is a route's condition at its latest poll. A route with no current
// travel time is closed.
type Status struct {
	State        string
	DeltaMin     *int64
	DeltaPercent *float64
}

// Evaluate computes the status of tt. The delta against the no-traffic
// average is only set when both durations are known and the average is
// positive.
func Evaluate(tt models.TravelTime) Status {
	st := Status{State: StateOpen}
	if !tt.CurrentMin.Valid {
		st.State = StateClosed
		return st
	}
	if !tt.AverageMin.Valid || tt.AverageMin.Int64 <= 0 {
		return st
	}

	delta := tt.CurrentMin.Int64 - tt.AverageMin.Int64
	pct := math.Round(float64(delta)/float64(tt.AverageMin.Int64)*1000) / 10
	st.DeltaMin = &delta
	st.DeltaPercent = &pct
	return st
}

func (s Status) Closed() bool {
	return s.State == StateClosed
}
