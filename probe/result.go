package probe

import "time"

// Result is the outcome of a single probe against one target.
type Result struct {
	Target    string
	Reachable bool
	LatencyMS *float64 // nil when unreachable or not measurable
}

// Unreachable returns a result for a target that did not answer.
func Unreachable(target string) Result {
	return Result{Target: target}
}

// Reachable returns a result for a target that answered within ms milliseconds.
func Reachable(target string, ms float64) Result {
	return Result{Target: target, Reachable: true, LatencyMS: &ms}
}

// ReachableUnknown returns a result for a target that answered but whose
// round trip time could not be determined.
func ReachableUnknown(target string) Result {
	return Result{Target: target, Reachable: true}
}

// Normalize drops the latency of unreachable results and negative latencies.
func (r Result) Normalize() Result {
	if !r.Reachable || (r.LatencyMS != nil && *r.LatencyMS < 0) {
		r.LatencyMS = nil
	}
	return r
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
