package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/czerwonk/pingwatch/probe"
)

// Prober checks a single target. Implementations must not block longer than
// roughly timeout and must report failures as unreachable results.
type Prober interface {
	Probe(ctx context.Context, target string, timeout time.Duration) probe.Result
}

// Executor runs one probe per target and collects the results of a round.
type Executor struct {
	prober  Prober
	workers int
}

// NewExecutor returns an executor probing up to workers targets at once.
// A value below 2 probes sequentially.
func NewExecutor(prober Prober, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{prober: prober, workers: workers}
}

// Execute probes every target once and returns the results in target order.
// It returns only after all probes have finished.
func (e *Executor) Execute(ctx context.Context, targets []string, timeout time.Duration) []probe.Result {
	results := make([]probe.Result, len(targets))

	if e.workers == 1 {
		for i, t := range targets {
			results[i] = e.prober.Probe(ctx, t, timeout)
		}
		return results
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	for i, t := range targets {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()

			results[i] = e.prober.Probe(ctx, t, timeout)
		}()
	}

	wg.Wait()
	return results
}
