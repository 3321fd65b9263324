// Package stats computes occupancy statistics over guest sessions.
//
// It aggregates sessions overall and per dimension (date, hour, guest
// type), providing head counts, occupancy at a point in time and visit
// durations.
//
// Example usage:
//
//	agg := stats.New(stats.Config{
//	    GroupBy: []stats.Dimension{stats.DimDate},
//	    At:      time.Now(),
//	})
//	for _, s := range sessions {
//	    agg.Add(s)
//	}
//	st := agg.Stats()
//	fmt.Printf("Inside now: %d adults, %d children\n", st.AdultsInside, st.ChildrenInside)
package stats

import (
	"time"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Dimension represents an aggregation dimension.
type Dimension string

const (
	// DimDate groups by entry date (YYYY-MM-DD).
	DimDate Dimension = "date"

	// DimHour groups by entry hour (YYYY-MM-DD HH:00).
	DimHour Dimension = "hour"

	// DimGuestType groups by guest type.
	DimGuestType Dimension = "type"

	// DimTag groups by wristband.
	DimTag Dimension = "tag"
)

// ParseDimension accepts the dimension names used on the command line.
func ParseDimension(s string) (Dimension, bool) {
	switch Dimension(s) {
	case DimDate, DimHour, DimGuestType, DimTag:
		return Dimension(s), true
	}
	return "", false
}

// Aggregator computes session statistics.
type Aggregator interface {
	// Add adds a session to the aggregator.
	Add(s scan.Session)

	// Stats returns statistics across all sessions.
	Stats() Statistics

	// GroupedStats returns statistics keyed by the configured dimensions,
	// joined with "|".
	GroupedStats() map[string]Statistics

	// Reset clears all aggregated data.
	Reset()
}

// Statistics contains aggregated session statistics.
type Statistics struct {
	// Count is the number of sessions.
	Count int `json:"count"`

	// Closed is the number of sessions with an exit time.
	Closed int `json:"closed"`

	// Inside is the number of sessions open at the reference time.
	Inside int `json:"inside"`

	Adults   int `json:"adults"`
	Children int `json:"children"`

	// AdultsInside and ChildrenInside count guests inside at the
	// reference time.
	AdultsInside   int `json:"adultsInside"`
	ChildrenInside int `json:"childrenInside"`

	// ByGuestType counts sessions per guest type.
	ByGuestType map[scan.GuestType]int `json:"byGuestType"`

	// Visit durations of closed sessions.
	AvgDuration time.Duration `json:"avgDuration"`
	MinDuration time.Duration `json:"minDuration"`
	MaxDuration time.Duration `json:"maxDuration"`
	P50Duration time.Duration `json:"p50Duration"`
	P95Duration time.Duration `json:"p95Duration"`

	FirstEntry time.Time `json:"firstEntry"`
	LastExit   time.Time `json:"lastExit,omitempty"`
}

// Guests returns adults plus children.
func (s Statistics) Guests() int {
	return s.Adults + s.Children
}

// GuestsInside returns adults plus children inside at the reference time.
func (s Statistics) GuestsInside() int {
	return s.AdultsInside + s.ChildrenInside
}

// Config contains aggregator configuration.
type Config struct {
	// GroupBy specifies aggregation dimensions.
	// Default: no grouping (overall stats only).
	GroupBy []Dimension

	// At is the reference time for occupancy. Default: time.Now() when
	// the aggregator is created.
	At time.Time

	// Location is used to format date and hour keys. Default: time.Local.
	Location *time.Location
}
