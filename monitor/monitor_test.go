package monitor

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/czerwonk/pingwatch/apperror"
	"github.com/czerwonk/pingwatch/probe"
	"github.com/czerwonk/pingwatch/store"
)

// --- fakes ---

type fakeProber struct {
	mu     sync.Mutex
	calls  []string
	delay  func() time.Duration
	result func(target string) probe.Result
}

func (f *fakeProber) Probe(ctx context.Context, target string, timeout time.Duration) probe.Result {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	f.mu.Unlock()

	if f.delay != nil {
		time.Sleep(f.delay())
	}
	if f.result != nil {
		return f.result(target)
	}
	return probe.Unreachable(target)
}

type fakeWriter struct {
	rounds  [][]probe.Result
	stamps  []time.Time
	failAt  int
	failErr error
}

func (f *fakeWriter) Append(ts time.Time, results []probe.Result) error {
	if f.failAt > 0 && len(f.rounds)+1 == f.failAt {
		return f.failErr
	}
	f.stamps = append(f.stamps, ts)
	f.rounds = append(f.rounds, results)
	return nil
}

func writeTargets(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "targets.txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMonitor_UnreachableRoundsAreStored(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "run.csv")

	cfg := Config{
		TargetsPath: writeTargets(t, "10.255.255.1"),
		Interval:    0,
		Count:       3,
		Timeout:     time.Second,
	}
	m := New(cfg, &fakeProber{}, store.NewWriter(out))

	clock := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	records, err := store.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.Reachable || rec.LatencyMS != nil {
			t.Errorf("record %d: expected unreachable without latency, got %+v", i, rec)
		}
		if i > 0 && !rec.Timestamp.After(records[i-1].Timestamp) {
			t.Errorf("record %d: timestamp %v not after %v", i, rec.Timestamp, records[i-1].Timestamp)
		}
	}
}

func TestMonitor_RoundsShareTimestampInTargetOrder(t *testing.T) {
	w := &fakeWriter{}
	prober := &fakeProber{result: func(target string) probe.Result {
		return probe.Reachable(target, 1)
	}}

	cfg := Config{
		TargetsPath:  writeTargets(t, "a", "", "# skipped", "b", "a"),
		ExtraTargets: []string{"tailnet-host"},
		Count:        2,
		Timeout:      time.Second,
	}

	var observed []Round
	m := New(cfg, prober, w, WithObserver(func(r Round) {
		observed = append(observed, r)
	}))

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"a", "b", "a", "tailnet-host"}
	if len(w.rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %d", len(w.rounds))
	}
	for i, results := range w.rounds {
		if len(results) != len(want) {
			t.Fatalf("round %d: expected %d results, got %d", i, len(want), len(results))
		}
		for j, res := range results {
			if res.Target != want[j] {
				t.Errorf("round %d result %d: target %q, want %q", i, j, res.Target, want[j])
			}
		}
		if w.stamps[i].Location() != time.UTC {
			t.Errorf("round %d: timestamp not in UTC", i)
		}
	}

	if len(observed) != 2 || observed[0].Number != 1 || observed[1].Number != 2 {
		t.Errorf("unexpected observed rounds: %+v", observed)
	}
}

func TestMonitor_SleepsBetweenRoundsOnly(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  int
	}{
		{"single-round", 1, 0},
		{"three-rounds", 3, 2},
		{"ten-rounds", 10, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				TargetsPath: writeTargets(t, "a"),
				Interval:    5 * time.Second,
				Count:       tt.count,
				Timeout:     time.Second,
			}
			w := &fakeWriter{}
			m := New(cfg, &fakeProber{}, w)

			var sleeps []time.Duration
			m.sleep = func(ctx context.Context, d time.Duration) error {
				sleeps = append(sleeps, d)
				return nil
			}

			if err := m.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(sleeps) != tt.want {
				t.Errorf("expected %d sleeps, got %d", tt.want, len(sleeps))
			}
			for _, d := range sleeps {
				if d != 5*time.Second {
					t.Errorf("expected sleep of 5s, got %v", d)
				}
			}
			if len(w.rounds) != tt.count {
				t.Errorf("expected %d rounds, got %d", tt.count, len(w.rounds))
			}
		})
	}
}

func TestMonitor_TimestampTakenBeforeProbing(t *testing.T) {
	cfg := Config{
		TargetsPath: writeTargets(t, "a", "b"),
		Count:       1,
		Timeout:     time.Second,
	}
	w := &fakeWriter{}
	prober := &fakeProber{delay: func() time.Duration { return 20 * time.Millisecond }}
	m := New(cfg, prober, w)

	before := time.Now()
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := w.stamps[0].Sub(before); got >= 20*time.Millisecond {
		t.Errorf("timestamp taken %v after start, expected before probing", got)
	}
}

func TestMonitor_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing-file", Config{TargetsPath: filepath.Join(t.TempDir(), "nope.txt"), Count: 1, Timeout: time.Second}},
		{"empty-file", Config{TargetsPath: writeTargets(t, "", "# nothing"), Count: 1, Timeout: time.Second}},
		{"zero-count", Config{TargetsPath: writeTargets(t, "a"), Count: 0, Timeout: time.Second}},
		{"zero-timeout", Config{TargetsPath: writeTargets(t, "a"), Count: 1, Timeout: 0}},
		{"negative-interval", Config{TargetsPath: writeTargets(t, "a"), Count: 1, Timeout: time.Second, Interval: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{}
			w := &fakeWriter{}

			err := New(tt.cfg, prober, w).Run(context.Background())
			if !apperror.IsKind(err, apperror.Configuration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if len(prober.calls) != 0 || len(w.rounds) != 0 {
				t.Errorf("expected no probing before configuration is valid")
			}
		})
	}
}

func TestMonitor_PersistenceErrorStopsRun(t *testing.T) {
	storeErr := apperror.New(apperror.Persistence, "store.append", errors.New("disk full"))
	w := &fakeWriter{failAt: 2, failErr: storeErr}
	prober := &fakeProber{}

	cfg := Config{
		TargetsPath: writeTargets(t, "a"),
		Count:       5,
		Timeout:     time.Second,
	}
	err := New(cfg, prober, w).Run(context.Background())

	if !apperror.IsKind(err, apperror.Persistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(w.rounds) != 1 {
		t.Errorf("expected 1 persisted round, got %d", len(w.rounds))
	}
	if len(prober.calls) != 2 {
		t.Errorf("expected 2 probed rounds, got %d", len(prober.calls))
	}
}

func TestMonitor_CancelStopsBetweenRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := Config{
		TargetsPath: writeTargets(t, "a"),
		Count:       100,
		Interval:    time.Hour,
		Timeout:     time.Second,
	}
	w := &fakeWriter{}
	m := New(cfg, &fakeProber{}, w, WithObserver(func(r Round) {
		cancel()
	}))

	err := m.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(w.rounds) != 1 {
		t.Errorf("expected 1 persisted round, got %d", len(w.rounds))
	}
}

func TestExecutor_PreservesOrderConcurrently(t *testing.T) {
	targets := make([]string, 50)
	for i := range targets {
		targets[i] = "host-" + string(rune('A'+i%26)) + string(rune('a'+i/26))
	}

	var inFlight, maxInFlight int32
	prober := &fakeProber{
		delay: func() time.Duration {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			d := time.Duration(rand.Intn(3)) * time.Millisecond
			time.Sleep(d)
			atomic.AddInt32(&inFlight, -1)
			return 0
		},
		result: func(target string) probe.Result {
			return probe.Reachable(target, 1)
		},
	}

	results := NewExecutor(prober, 8).Execute(context.Background(), targets, time.Second)
	if len(results) != len(targets) {
		t.Fatalf("expected %d results, got %d", len(targets), len(results))
	}
	for i, res := range results {
		if res.Target != targets[i] {
			t.Errorf("result %d: target %q, want %q", i, res.Target, targets[i])
		}
	}
	if maxInFlight > 8 {
		t.Errorf("expected at most 8 concurrent probes, got %d", maxInFlight)
	}
}

func TestExecutor_Sequential(t *testing.T) {
	prober := &fakeProber{}
	targets := []string{"c", "a", "b"}

	NewExecutor(prober, 0).Execute(context.Background(), targets, time.Second)

	if strings.Join(prober.calls, ",") != "c,a,b" {
		t.Errorf("expected sequential calls in order, got %v", prober.calls)
	}
}

func Test_sleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("zero sleep: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
