package plot

import (
	"math"
	"sort"
	"time"

	"github.com/czerwonk/pingwatch/store"
)

// Point is one sample of a series. LatencyMS is NaN where the target was
// unreachable or not measured at Time.
type Point struct {
	Time      time.Time
	LatencyMS float64
}

// Series holds the latency samples of one target on the common time axis.
type Series struct {
	Target string
	Points []Point
}

// BuildSeries pivots records into one series per target. Every series has a
// point for each distinct timestamp in records; multiple samples of the same
// target at the same timestamp are averaged. Targets without any measured
// latency are omitted. Series are sorted by target.
func BuildSeries(records []store.Record) []Series {
	type cell struct {
		sum float64
		n   int
	}

	stamps := make(map[int64]time.Time)
	cells := make(map[string]map[int64]*cell)

	for _, r := range records {
		key := r.Timestamp.UnixNano()
		stamps[key] = r.Timestamp

		byTime, found := cells[r.Target]
		if !found {
			byTime = make(map[int64]*cell)
			cells[r.Target] = byTime
		}

		if !r.Reachable || r.LatencyMS == nil {
			continue
		}

		c, found := byTime[key]
		if !found {
			c = &cell{}
			byTime[key] = c
		}
		c.sum += *r.LatencyMS
		c.n++
	}

	keys := make([]int64, 0, len(stamps))
	for k := range stamps {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	targets := make([]string, 0, len(cells))
	for t, byTime := range cells {
		if len(byTime) > 0 {
			targets = append(targets, t)
		}
	}
	sort.Strings(targets)

	series := make([]Series, 0, len(targets))
	for _, t := range targets {
		s := Series{Target: t, Points: make([]Point, len(keys))}
		for i, k := range keys {
			s.Points[i] = Point{Time: stamps[k], LatencyMS: math.NaN()}
			if c := cells[t][k]; c != nil {
				s.Points[i].LatencyMS = c.sum / float64(c.n)
			}
		}
		series = append(series, s)
	}

	return series
}

// Segments splits a series into runs of consecutive measured points. No line
// is drawn between two runs.
func (s Series) Segments() [][]Point {
	var segments [][]Point
	var cur []Point

	for _, p := range s.Points {
		if math.IsNaN(p.LatencyMS) {
			if len(cur) > 0 {
				segments = append(segments, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, p)
	}
	if len(cur) > 0 {
		segments = append(segments, cur)
	}

	return segments
}
