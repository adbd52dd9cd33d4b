package probe

import (
	"context"
	"time"
)

// Strategy is a mechanism to send a single echo request to a host.
//
// Probe returns an error only when the mechanism itself failed (bad host,
// missing permissions, OS errors). A host that simply did not answer in time
// is reported as an unreachable Result with a nil error.
type Strategy interface {
	Name() string
	Probe(ctx context.Context, host string, timeout time.Duration) (Result, error)
	Close() error
}
