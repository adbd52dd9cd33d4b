package plot

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/czerwonk/pingwatch/probe"
	"github.com/czerwonk/pingwatch/store"
)

var t0 = time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

func rec(sec int, target string, latency ...float64) store.Record {
	r := store.Record{Timestamp: t0.Add(time.Duration(sec) * time.Second), Target: target}
	if len(latency) > 0 {
		r.Reachable = true
		r.LatencyMS = &latency[0]
	}
	return r
}

func latencies(s Series) []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.LatencyMS
	}
	return out
}

func equalWithNaN(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.IsNaN(a[i]) != math.IsNaN(b[i]) {
			return false
		}
		if !math.IsNaN(a[i]) && a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuildSeries(t *testing.T) {
	nan := math.NaN()

	records := []store.Record{
		rec(0, "b", 10),
		rec(0, "a", 1),
		rec(0, "a", 3), // duplicate target in one round
		rec(0, "dead"),
		rec(5, "a"),
		rec(5, "b", 20),
		rec(5, "dead"),
		rec(10, "a", 7),
		{Timestamp: t0.Add(10 * time.Second), Target: "b", Reachable: true}, // reachable without latency
		rec(10, "dead"),
	}

	series := BuildSeries(records)
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d: %+v", len(series), series)
	}

	tests := []struct {
		target string
		want   []float64
	}{
		{"a", []float64{2, nan, 7}},
		{"b", []float64{10, 20, nan}},
	}
	for i, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if series[i].Target != tt.target {
				t.Fatalf("series %d: target %q, want %q", i, series[i].Target, tt.target)
			}
			if got := latencies(series[i]); !equalWithNaN(got, tt.want) {
				t.Errorf("latencies = %v, want %v", got, tt.want)
			}
			for j, p := range series[i].Points {
				if !p.Time.Equal(t0.Add(time.Duration(j*5) * time.Second)) {
					t.Errorf("point %d: time %v", j, p.Time)
				}
			}
		})
	}
}

func TestSeries_Segments(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name string
		in   []float64
		want []int
	}{
		{"continuous", []float64{1, 2, 3}, []int{3}},
		{"gap-in-middle", []float64{1, 2, nan, 4, 5}, []int{2, 2}},
		{"isolated", []float64{nan, 1, nan, nan, 2, 3}, []int{1, 2}},
		{"all-gaps", []float64{nan, nan}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Series{Target: "x"}
			for i, v := range tt.in {
				s.Points = append(s.Points, Point{Time: t0.Add(time.Duration(i) * time.Second), LatencyMS: v})
			}

			segs := s.Segments()
			if len(segs) != len(tt.want) {
				t.Fatalf("expected %d segments, got %d", len(tt.want), len(segs))
			}
			for i, seg := range segs {
				if len(seg) != tt.want[i] {
					t.Errorf("segment %d: length %d, want %d", i, len(seg), tt.want[i])
				}
			}
		})
	}
}

func TestRenderFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "run.csv")
	out := filepath.Join(dir, "docs", "latency.png")

	w := store.NewWriter(in)
	for i := 0; i < 4; i++ {
		results := []probe.Result{probe.Reachable("a", float64(10+i))}
		if i == 2 {
			results = append(results, probe.Unreachable("b"))
		} else {
			results = append(results, probe.Reachable("b", float64(20-i)))
		}
		if err := w.Append(t0.Add(time.Duration(i)*time.Minute), results); err != nil {
			t.Fatal(err)
		}
	}

	if err := RenderFile(in, out, Options{Title: "test"}); err != nil {
		t.Fatalf("RenderFile() error = %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("expected output image: %v", err)
	}
	if info.Size() == 0 {
		t.Errorf("expected non-empty image")
	}
}

func TestRender_Errors(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")

	if err := Render(nil, out, Options{}); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
	if err := Render([]store.Record{rec(0, "dead")}, out, Options{}); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
	if err := RenderFile(filepath.Join(t.TempDir(), "missing.csv"), out, Options{}); err == nil {
		t.Errorf("expected error for missing record store")
	}
}

func TestOptions_setDefaults(t *testing.T) {
	o := Options{}
	o.setDefaults()

	if o.Title != DefaultTitle || o.DPI != 160 || o.Width <= 0 || o.Height <= 0 {
		t.Errorf("unexpected defaults: %+v", o)
	}
}
