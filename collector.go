package main

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/czerwonk/pingwatch/monitor"
)

const prefix = "pingwatch_"

var (
	labelNames    = []string{"target"}
	upDesc        = prometheus.NewDesc(prefix+"up", "1 if the target answered in the latest round", labelNames, nil)
	roundsDesc    = prometheus.NewDesc(prefix+"rounds_total", "Number of persisted rounds", nil, nil)
	lastRoundDesc = prometheus.NewDesc(prefix+"last_round_timestamp_seconds", "Start time of the latest persisted round", nil, nil)
)

// roundCollector exports the latest persisted round.
type roundCollector struct {
	mu     sync.Mutex
	last   *monitor.Round
	rounds int
	rtt    scaledMetrics
}

func newRoundCollector(scale rttUnit) *roundCollector {
	return &roundCollector{
		rtt: newScaledDesc(prefix+"rtt", "Round trip time of the latest round", scale, labelNames),
	}
}

// Observe is a monitor.Observer
func (c *roundCollector) Observe(r monitor.Round) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = &r
	c.rounds++
}

func (c *roundCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- upDesc
	ch <- roundsDesc
	ch <- lastRoundDesc
	c.rtt.Describe(ch)
}

func (c *roundCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(roundsDesc, prometheus.CounterValue, float64(c.rounds))

	if c.last == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(lastRoundDesc, prometheus.GaugeValue, float64(c.last.Timestamp.UnixNano())/1e9)

	for _, s := range summarize(c.last) {
		up := 0.0
		if s.up {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, up, s.target)

		if s.n > 0 {
			c.rtt.Collect(ch, s.sum/float64(s.n), s.target)
		}
	}
}

type targetSummary struct {
	target string
	up     bool
	sum    float64
	n      int
}

// summarize merges results of targets listed more than once, since every
// label set may only be exported once.
func summarize(r *monitor.Round) []*targetSummary {
	index := make(map[string]*targetSummary)
	out := make([]*targetSummary, 0, len(r.Results))

	for _, res := range r.Results {
		s, found := index[res.Target]
		if !found {
			s = &targetSummary{target: res.Target}
			index[res.Target] = s
			out = append(out, s)
		}

		s.up = s.up || res.Reachable
		if res.LatencyMS != nil {
			s.sum += *res.LatencyMS
			s.n++
		}
	}

	return out
}

// textfileObserver writes all metrics of reg to path after every round.
func textfileObserver(path string, reg prometheus.Gatherer) monitor.Observer {
	return func(r monitor.Round) {
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			log.Warnf("could not write metrics to %s: %v", path, err)
		}
	}
}
