package probe

import (
	"regexp"
	"strconv"
)

var (
	// matches "time=12.3 ms" (unix, windows) and "time<1ms" (windows sub-millisecond)
	replyTimeRegexp = regexp.MustCompile(`(?i)time[=<]\s*([\d.]+)\s*ms`)
	// windows summary line, e.g. "Minimum = 11ms, Maximum = 13ms, Average = 12ms"
	averageRegexp = regexp.MustCompile(`(?i)average\s*=\s*(\d+)\s*ms`)
)

// ParseLatency extracts the round trip time in milliseconds from the output
// of a ping utility. The second return value is false if no value was found.
func ParseLatency(output string) (float64, bool) {
	for _, re := range []*regexp.Regexp{replyTimeRegexp, averageRegexp} {
		m := re.FindStringSubmatch(output)
		if m == nil {
			continue
		}

		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}

		return v, true
	}

	return 0, false
}
