package stats

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// aggregator implements the Aggregator interface.
type aggregator struct {
	config Config

	mu        sync.RWMutex
	durations []time.Duration
	stats     Statistics
	groups    map[string]*group
}

// group holds statistics for one dimension combination.
type group struct {
	durations []time.Duration
	stats     Statistics
}

// New creates a new aggregator.
func New(cfg Config) Aggregator {
	if cfg.At.IsZero() {
		cfg.At = time.Now()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &aggregator{
		config: cfg,
		groups: make(map[string]*group),
	}
}

// Summarize aggregates sessions with occupancy measured at now.
func Summarize(sessions []scan.Session, now time.Time) Statistics {
	agg := New(Config{At: now})
	for _, s := range sessions {
		agg.Add(s)
	}
	return agg.Stats()
}

// GroupBy aggregates sessions per dimension value.
func GroupBy(sessions []scan.Session, dim Dimension, now time.Time) map[string]Statistics {
	agg := New(Config{GroupBy: []Dimension{dim}, At: now})
	for _, s := range sessions {
		agg.Add(s)
	}
	return agg.GroupedStats()
}

// Add implements Aggregator.Add.
func (a *aggregator) Add(s scan.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.updateStats(&a.stats, s)
	if d, ok := duration(s); ok {
		a.durations = append(a.durations, d)
	}

	if len(a.config.GroupBy) == 0 {
		return
	}
	key := a.dimensionKey(s)
	g, exists := a.groups[key]
	if !exists {
		g = &group{}
		a.groups[key] = g
	}
	a.updateStats(&g.stats, s)
	if d, ok := duration(s); ok {
		g.durations = append(g.durations, d)
	}
}

// Stats implements Aggregator.Stats.
func (a *aggregator) Stats() Statistics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return finish(a.stats, a.durations)
}

// GroupedStats implements Aggregator.GroupedStats.
func (a *aggregator) GroupedStats() map[string]Statistics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make(map[string]Statistics, len(a.groups))
	for key, g := range a.groups {
		result[key] = finish(g.stats, g.durations)
	}
	return result
}

// Reset implements Aggregator.Reset.
func (a *aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.durations = nil
	a.stats = Statistics{}
	a.groups = make(map[string]*group)
}

func (a *aggregator) updateStats(st *Statistics, s scan.Session) {
	st.Count++
	st.Adults += s.AdultCount
	st.Children += s.ChildCount

	if st.ByGuestType == nil {
		st.ByGuestType = make(map[scan.GuestType]int)
	}
	st.ByGuestType[s.GuestType]++

	if !s.Active() {
		st.Closed++
		if st.LastExit.IsZero() || s.ExitTime.After(st.LastExit) {
			st.LastExit = *s.ExitTime
		}
	}
	if a.insideAt(s) {
		st.Inside++
		st.AdultsInside += s.AdultCount
		st.ChildrenInside += s.ChildCount
	}

	if st.FirstEntry.IsZero() || s.EntryTime.Before(st.FirstEntry) {
		st.FirstEntry = s.EntryTime
	}
}

// insideAt reports whether s was open at the reference time.
func (a *aggregator) insideAt(s scan.Session) bool {
	at := a.config.At
	if s.EntryTime.After(at) {
		return false
	}
	return s.Active() || s.ExitTime.After(at)
}

// dimensionKey creates a key for the configured dimensions.
func (a *aggregator) dimensionKey(s scan.Session) string {
	parts := make([]string, 0, len(a.config.GroupBy))
	entry := s.EntryTime.In(a.config.Location)
	for _, dim := range a.config.GroupBy {
		switch dim {
		case DimDate:
			parts = append(parts, entry.Format("2006-01-02"))
		case DimHour:
			parts = append(parts, entry.Format("2006-01-02 15:00"))
		case DimGuestType:
			parts = append(parts, string(s.GuestType))
		case DimTag:
			parts = append(parts, s.TagID)
		}
	}
	return strings.Join(parts, "|")
}

func duration(s scan.Session) (time.Duration, bool) {
	if s.Active() {
		return 0, false
	}
	return s.ExitTime.Sub(s.EntryTime), true
}

// finish fills the duration fields from the collected visit durations.
func finish(st Statistics, durations []time.Duration) Statistics {
	if len(durations) == 0 {
		return st
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	st.AvgDuration = total / time.Duration(len(sorted))
	st.MinDuration = sorted[0]
	st.MaxDuration = sorted[len(sorted)-1]
	st.P50Duration = percentile(sorted, 50)
	st.P95Duration = percentile(sorted, 95)
	return st
}

// percentile calculates the pth percentile of a sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between closest ranks.
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower] + time.Duration(weight*float64(sorted[upper]-sorted[lower]))
}
