package bootstrap

import (
	"time"

	"github.com/skyward-cloud/nodeboot/internal/util/retry"
)

// RetryPolicy is a bounded, fixed-delay attempt budget. MaxAttempts counts
// every attempt including the first; exhaustion is a hard failure, there is
// no unbounded retry anywhere in the controller.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p RetryPolicy) options() []retry.Option {
	return []retry.Option{
		retry.WithMaxAttempts(p.MaxAttempts),
		retry.WithDelay(p.Delay),
	}
}
