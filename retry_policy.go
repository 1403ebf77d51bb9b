package delivery

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy decides whether a failed request is retried and how long to
// wait first. Implementations must be pure functions of their arguments so a
// single policy can be shared by concurrent requests.
type RetryPolicy interface {
	// ShouldRetry reports whether a request that failed with statusCode after
	// numRetries retries should be attempted again. statusCode is either an
	// HTTP status or one of the synthetic StatusNoNetwork/StatusTransportFailure codes.
	ShouldRetry(statusCode, numRetries int) bool

	// RetryDelay returns how long to wait before the next retry of a request
	// that has already been retried numRetries times.
	RetryDelay(numRetries int) time.Duration
}

type noRetryPolicy struct{}

func (noRetryPolicy) ShouldRetry(int, int) bool    { return false }
func (noRetryPolicy) RetryDelay(int) time.Duration { return 0 }

// NoRetryPolicy never retries.
var NoRetryPolicy RetryPolicy = noRetryPolicy{}

// DefaultRetryPolicy retries while numRetries < MaxRetries and the status is
// retryable, waiting according to a deterministic, non-decreasing backoff
// curve. It holds no mutable state.
type DefaultRetryPolicy struct {
	config RetryConfig
}

// NewDefaultRetryPolicy creates a bounded retry policy.
//
// Example:
//
//	policy := delivery.NewDefaultRetryPolicy(
//	    delivery.WithMaxRetries(5),
//	    delivery.WithExponentialBackoff(time.Second, 30*time.Second),
//	)
func NewDefaultRetryPolicy(opts ...RetryOption) *DefaultRetryPolicy {
	config := DefaultRetryConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxDelay < config.InitialDelay {
		config.MaxDelay = config.InitialDelay
	}
	if config.RetryableStatuses != nil {
		statuses := make([]int, len(config.RetryableStatuses))
		copy(statuses, config.RetryableStatuses)
		config.RetryableStatuses = statuses
	}
	return &DefaultRetryPolicy{config: *config}
}

// MaxRetries returns the retry budget.
func (p *DefaultRetryPolicy) MaxRetries() int {
	return p.config.MaxRetries
}

// ShouldRetry implements RetryPolicy.
func (p *DefaultRetryPolicy) ShouldRetry(statusCode, numRetries int) bool {
	if numRetries >= p.config.MaxRetries {
		return false
	}
	if p.config.RetryableStatuses != nil {
		return containsStatus(p.config.RetryableStatuses, statusCode)
	}
	return isDefaultRetryableStatus(statusCode)
}

// RetryDelay implements RetryPolicy.
func (p *DefaultRetryPolicy) RetryDelay(numRetries int) time.Duration {
	if numRetries < 0 {
		numRetries = 0
	}
	if p.config.InitialDelay <= 0 {
		return 0
	}

	// A fresh backoff per call keeps the policy stateless: the delay for
	// retry n is the (n+1)th value of the curve.
	backoff := p.newBackoff()
	var delay time.Duration
	for i := 0; i <= numRetries; i++ {
		next, stop := backoff.Next()
		if stop {
			break
		}
		delay = next
		if delay >= p.config.MaxDelay {
			return p.config.MaxDelay
		}
	}
	return delay
}

func (p *DefaultRetryPolicy) newBackoff() retry.Backoff {
	switch p.config.Strategy {
	case RetryStrategyConstant:
		return retry.NewConstant(p.config.InitialDelay)
	case RetryStrategyFibonacci:
		return retry.WithCappedDuration(p.config.MaxDelay, retry.NewFibonacci(p.config.InitialDelay))
	default:
		return retry.WithCappedDuration(p.config.MaxDelay, p.newExponential())
	}
}

// newExponential creates an exponential backoff using the configured multiplier.
// The delay for attempt N is initialDelay * (multiplier ^ N).
func (p *DefaultRetryPolicy) newExponential() retry.Backoff {
	multiplier := p.config.Multiplier
	if multiplier < 1 {
		multiplier = 2.0
	}

	if multiplier == 2.0 {
		return retry.NewExponential(p.config.InitialDelay)
	}

	delay := float64(p.config.InitialDelay)
	return retry.BackoffFunc(func() (time.Duration, bool) {
		current := delay
		if current > float64(p.config.MaxDelay) {
			return p.config.MaxDelay, false
		}
		delay *= multiplier
		return time.Duration(current), false
	})
}

// isDefaultRetryableStatus covers 5xx responses plus connectivity loss and
// transport faults.
func isDefaultRetryableStatus(statusCode int) bool {
	switch statusCode {
	case StatusNoNetwork, StatusTransportFailure:
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func containsStatus(statuses []int, status int) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
