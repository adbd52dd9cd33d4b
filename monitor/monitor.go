package monitor

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/czerwonk/pingwatch/apperror"
	"github.com/czerwonk/pingwatch/probe"
	"github.com/czerwonk/pingwatch/target"
)

// Writer persists the results of a round.
type Writer interface {
	Append(ts time.Time, results []probe.Result) error
}

// Config holds everything a monitoring run needs.
type Config struct {
	TargetsPath string
	// ExtraTargets are probed after the targets read from TargetsPath.
	ExtraTargets []string
	Interval     time.Duration
	Count        int
	Timeout      time.Duration
	Workers      int
}

// Round is the outcome of probing all targets once. All results share the
// timestamp taken when the round started.
type Round struct {
	Number    int
	Timestamp time.Time
	Results   []probe.Result
}

// Observer is notified after a round has been persisted.
type Observer func(Round)

type Option func(*Monitor)

// WithObserver registers o to be called after every persisted round.
func WithObserver(o Observer) Option {
	return func(m *Monitor) {
		m.observers = append(m.observers, o)
	}
}

// Monitor probes a fixed set of targets for a number of rounds and writes
// every round to a Writer.
type Monitor struct {
	cfg       Config
	executor  *Executor
	writer    Writer
	observers []Observer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, prober Prober, writer Writer, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		executor: NewExecutor(prober, cfg.Workers),
		writer:   writer,
		now:      time.Now,
		sleep:    sleepContext,
	}

	for _, o := range opts {
		o(m)
	}

	return m
}

// Run loads the targets and executes cfg.Count rounds, waiting cfg.Interval
// between two rounds. It stops at the first round that cannot be persisted
// and when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.validate(); err != nil {
		return err
	}

	targets, err := m.loadTargets()
	if err != nil {
		return err
	}
	log.Infof("Loaded %d target(s) from %s", len(targets), m.cfg.TargetsPath)

	for i := 0; i < m.cfg.Count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		r := Round{
			Number:    i + 1,
			Timestamp: m.now().UTC(),
		}
		r.Results = m.executor.Execute(ctx, targets, m.cfg.Timeout)

		// probes of a cancelled round are not meaningful
		if err := ctx.Err(); err != nil {
			log.Warnf("round %d interrupted, not persisted", r.Number)
			return err
		}

		if err := m.writer.Append(r.Timestamp, r.Results); err != nil {
			return fmt.Errorf("round %d: %w", r.Number, err)
		}
		logRound(r, m.cfg.Count)

		for _, o := range m.observers {
			o(r)
		}

		if i < m.cfg.Count-1 {
			if err := m.sleep(ctx, m.cfg.Interval); err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *Monitor) validate() error {
	switch {
	case m.cfg.Count < 1:
		return apperror.Configf("monitor.run", "count must be at least 1, got %d", m.cfg.Count)
	case m.cfg.Timeout <= 0:
		return apperror.Configf("monitor.run", "timeout must be positive, got %s", m.cfg.Timeout)
	case m.cfg.Interval < 0:
		return apperror.Configf("monitor.run", "interval must not be negative, got %s", m.cfg.Interval)
	}
	return nil
}

func (m *Monitor) loadTargets() ([]string, error) {
	targets, err := target.LoadFile(m.cfg.TargetsPath)
	if err != nil {
		return nil, err
	}
	targets = append(targets, m.cfg.ExtraTargets...)

	if len(targets) == 0 {
		return nil, apperror.Configf("monitor.run", "no targets found in %s", m.cfg.TargetsPath)
	}

	return targets, nil
}

func logRound(r Round, total int) {
	up := 0
	for _, res := range r.Results {
		if res.Reachable {
			up++
		}

		entry := log.WithFields(log.Fields{
			"round":     r.Number,
			"target":    res.Target,
			"reachable": res.Reachable,
		})
		if res.LatencyMS != nil {
			entry = entry.WithField("latency_ms", *res.LatencyMS)
		}
		entry.Debug("probed")
	}

	log.Infof("round %d/%d: %d/%d target(s) reachable", r.Number, total, up, len(r.Results))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
