package delivery

import (
	"log/slog"
	"time"
)

// RetryStrategy defines the backoff curve used by DefaultRetryPolicy.
type RetryStrategy string

const (
	// RetryStrategyExponential multiplies the delay on every retry.
	RetryStrategyExponential RetryStrategy = "exponential"

	// RetryStrategyConstant waits the same delay before every retry.
	RetryStrategyConstant RetryStrategy = "constant"

	// RetryStrategyFibonacci grows the delay along the fibonacci sequence.
	RetryStrategyFibonacci RetryStrategy = "fibonacci"
)

// RetryConfig holds retry policy configuration.
type RetryConfig struct {
	// Strategy defines the backoff curve.
	// Default: RetryStrategyExponential
	Strategy RetryStrategy

	// RetryableStatuses lists the status codes that may be retried, including
	// the synthetic StatusNoNetwork and StatusTransportFailure codes.
	// Default (nil): any 5xx, StatusNoNetwork and StatusTransportFailure.
	RetryableStatuses []int

	// InitialDelay is the delay before the first retry.
	// Default: 1 second
	InitialDelay time.Duration

	// MaxDelay caps every delay.
	// Default: 30 seconds
	MaxDelay time.Duration

	// Multiplier is the growth factor for the exponential strategy.
	// Default: 2.0
	Multiplier float64

	// MaxRetries is the number of retries after the initial attempt.
	// Default: 3
	MaxRetries int
}

// RetryOption is a functional option for configuring a retry policy.
type RetryOption func(*RetryConfig)

// WithMaxRetries sets the retry budget. A request is sent at most
// maxRetries+1 times.
//
// Example:
//
//	delivery.WithMaxRetries(2) // start, retry 1, retry 2, then give up
func WithMaxRetries(maxRetries int) RetryOption {
	return func(c *RetryConfig) {
		c.MaxRetries = maxRetries
	}
}

// WithExponentialBackoff configures exponential backoff.
//
// Example:
//
//	delivery.WithExponentialBackoff(time.Second, 30*time.Second)
//	// With default multiplier 2.0: 1s, 2s, 4s, 8s, 16s, 30s (capped)
func WithExponentialBackoff(initialDelay, maxDelay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = RetryStrategyExponential
		c.InitialDelay = initialDelay
		c.MaxDelay = maxDelay
	}
}

// WithMultiplier sets the growth factor for the exponential strategy.
func WithMultiplier(multiplier float64) RetryOption {
	return func(c *RetryConfig) {
		c.Multiplier = multiplier
	}
}

// WithConstantBackoff configures a constant delay between retries.
func WithConstantBackoff(delay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = RetryStrategyConstant
		c.InitialDelay = delay
		c.MaxDelay = delay
	}
}

// WithFibonacciBackoff configures fibonacci backoff up to maxDelay.
func WithFibonacciBackoff(initialDelay, maxDelay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.Strategy = RetryStrategyFibonacci
		c.InitialDelay = initialDelay
		c.MaxDelay = maxDelay
	}
}

// WithRetryableStatuses replaces the default set of retryable status codes.
//
// Example:
//
//	delivery.WithRetryableStatuses(delivery.StatusNoNetwork, 429, 503)
func WithRetryableStatuses(statuses ...int) RetryOption {
	return func(c *RetryConfig) {
		c.RetryableStatuses = statuses
	}
}

// DefaultRetryConfig returns retry configuration with sensible defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:   3,
		Strategy:     RetryStrategyExponential,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// ClientConfig holds Client configuration.
type ClientConfig struct {
	// RetryPolicy is used for requests that do not carry their own policy.
	// Default: NoRetryPolicy
	RetryPolicy RetryPolicy

	// Listener observes request lifecycle events.
	// Default: NopListener
	Listener Listener

	// NetworkQueue runs serialize, transmit and classify steps.
	// Default: a SerialQueue owned by the client
	NetworkQueue ExecutionQueue

	// CallbackQueue runs Future continuations.
	// Default: ImmediateQueue
	CallbackQueue ExecutionQueue

	// Logger for client operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// AttemptTimeout bounds a single transmit call. Zero means no bound.
	AttemptTimeout time.Duration
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*ClientConfig)

// WithRetryPolicy sets the client-wide retry policy.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *ClientConfig) {
		c.RetryPolicy = policy
	}
}

// WithListener sets the lifecycle listener.
func WithListener(listener Listener) ClientOption {
	return func(c *ClientConfig) {
		c.Listener = listener
	}
}

// WithNetworkQueue sets the queue that runs network work. Tests pass a
// ManualQueue to step through requests deterministically.
func WithNetworkQueue(queue ExecutionQueue) ClientOption {
	return func(c *ClientConfig) {
		c.NetworkQueue = queue
	}
}

// WithCallbackQueue sets the queue that runs Future continuations.
func WithCallbackQueue(queue ExecutionQueue) ClientOption {
	return func(c *ClientConfig) {
		c.CallbackQueue = queue
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}

// WithAttemptTimeout bounds each transmit call.
func WithAttemptTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.AttemptTimeout = timeout
	}
}

// DefaultClientConfig returns client configuration with sensible defaults.
// NetworkQueue is left nil; NewClient starts a serial queue when none is given.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RetryPolicy:   NoRetryPolicy,
		Listener:      NopListener{},
		CallbackQueue: ImmediateQueue{},
		Logger:        slog.Default(),
	}
}

// CircuitBreakerConfig holds BreakerTransport configuration.
type CircuitBreakerConfig struct {
	// Name appears in logs and in OnStateChange.
	// Default: "transport"
	Name string

	// MaxRequests caps the trial transmits let through while half-open.
	// Default: 3
	MaxRequests uint32

	// Interval clears the closed-state counts periodically; 0 keeps them.
	// Default: 10 seconds
	Interval time.Duration

	// Timeout is how long the circuit stays open before a trial transmit.
	// Default: 30 seconds
	Timeout time.Duration

	// ShouldTrip classifies one transmit outcome: statusCode is set for
	// non-2xx responses, err for transport errors. True counts a failure.
	// Default: 5xx and transport faults; connectivity loss and cancellation
	// are ignored.
	ShouldTrip func(statusCode int, err error) bool

	// ReadyToTrip sees the counts after each counted failure while closed
	// and opens the circuit when it returns true.
	// Default: at least 3 transmits, 60% or more of them failed
	ReadyToTrip func(counts CircuitBreakerCounts) bool

	// OnStateChange, if set, is told about every transition.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Logger receives state transitions and rejections.
	// Default: slog.Default()
	Logger *slog.Logger
}

// CircuitBreakerOption configures a BreakerTransport.
type CircuitBreakerOption func(*CircuitBreakerConfig)

// CircuitBreakerCounts is a snapshot of transmit outcomes in the current
// breaker generation.
type CircuitBreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreakerState is the breaker position.
type CircuitBreakerState int

const (
	// StateClosed lets every transmit through.
	StateClosed CircuitBreakerState = iota

	// StateHalfOpen lets a limited number of trial transmits through.
	StateHalfOpen

	// StateOpen rejects transmits without calling the wrapped transport.
	StateOpen
)

var breakerStateNames = map[CircuitBreakerState]string{
	StateClosed:   "closed",
	StateHalfOpen: "half-open",
	StateOpen:     "open",
}

func (s CircuitBreakerState) String() string {
	if name, ok := breakerStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// WithBreakerName names the breaker.
func WithBreakerName(name string) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Name = name
	}
}

// WithMaxRequests sets how many trial transmits pass while half-open.
func WithMaxRequests(maxRequests uint32) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.MaxRequests = maxRequests
	}
}

// WithInterval sets the closed-state count reset period.
func WithInterval(interval time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Interval = interval
	}
}

// WithTimeout sets how long the circuit stays open.
func WithTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Timeout = timeout
	}
}

// WithShouldTrip replaces the outcome classifier.
//
// Example:
//
//	// Also back off when the server throttles.
//	delivery.WithShouldTrip(func(status int, err error) bool {
//	    return err != nil || status >= 500 || status == http.StatusTooManyRequests
//	})
func WithShouldTrip(fn func(statusCode int, err error) bool) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ShouldTrip = fn
	}
}

// WithReadyToTrip replaces the rule that opens the circuit.
//
// Example:
//
//	delivery.WithReadyToTrip(func(counts delivery.CircuitBreakerCounts) bool {
//	    return counts.ConsecutiveFailures >= 5
//	})
func WithReadyToTrip(fn func(counts CircuitBreakerCounts) bool) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ReadyToTrip = fn
	}
}

// WithStateChangeHandler registers a transition callback.
func WithStateChangeHandler(fn func(name string, from, to CircuitBreakerState)) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// WithCircuitBreakerLogger sets the breaker logger.
func WithCircuitBreakerLogger(logger *slog.Logger) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Logger = logger
	}
}

// DefaultCircuitBreakerConfig returns the breaker defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "transport",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ShouldTrip:  defaultShouldTrip,
		ReadyToTrip: mostlyFailing,
		Logger:      slog.Default(),
	}
}

// mostlyFailing trips once at least 3 transmits were seen and 60% failed.
func mostlyFailing(counts CircuitBreakerCounts) bool {
	if counts.Requests < 3 {
		return false
	}
	return counts.TotalFailures*5 >= counts.Requests*3
}
