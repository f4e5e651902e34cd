package task

import (
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffStrategy selects how the delay between attempts evolves
type BackoffStrategy string

// Supported backoff strategies
const (
	BackoffConstant    BackoffStrategy = "constant"
	BackoffExponential BackoffStrategy = "exponential"
)

const (
	// maxExponentialDelay caps the exponential strategy
	maxExponentialDelay = time.Minute

	// exponentialJitterPercent spreads retries of tasks that failed together
	exponentialJitterPercent = 10
)

// RetryPolicy describes how failed attempts of a task are retried.
// A task is executed at most MaxRetries+1 times.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Strategy   BackoffStrategy
}

// DefaultRetryPolicy returns the policy applied when a submission sets nothing
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Delay:      time.Second,
		Strategy:   BackoffConstant,
	}
}

// Validate checks the policy for negative values and unknown strategies
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidRetryPolicy, p.MaxRetries)
	}
	if p.Delay < 0 {
		return fmt.Errorf("%w: retry delay must not be negative, got %s", ErrInvalidRetryPolicy, p.Delay)
	}
	switch p.Strategy {
	case "", BackoffConstant, BackoffExponential:
		return nil
	default:
		return fmt.Errorf("%w: unknown backoff strategy %q", ErrInvalidRetryPolicy, p.Strategy)
	}
}

// newBackoff builds the per-record schedule. Each call to Next corresponds
// to one observed failure; stop is reported once MaxRetries is exhausted.
func (p RetryPolicy) newBackoff() retry.Backoff {
	var base retry.Backoff
	switch {
	case p.Delay <= 0:
		base = retry.BackoffFunc(func() (time.Duration, bool) {
			return 0, false
		})
	case p.Strategy == BackoffExponential:
		base = retry.NewExponential(p.Delay)
		base = retry.WithJitterPercent(exponentialJitterPercent, base)
		base = retry.WithCappedDuration(maxExponentialDelay, base)
	default:
		base = retry.NewConstant(p.Delay)
	}
	return retry.WithMaxRetries(uint64(p.MaxRetries), base)
}
