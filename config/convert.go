package config

import (
	"io"
	"log/slog"
	"strings"

	delivery "github.com/JohnPlummer/jp-go-delivery"
)

// RetryOptions converts the retry section to client retry options.
func (c RetryConfig) RetryOptions() []delivery.RetryOption {
	opts := []delivery.RetryOption{delivery.WithMaxRetries(c.MaxRetries)}

	switch delivery.RetryStrategy(c.Strategy) {
	case delivery.RetryStrategyConstant:
		opts = append(opts, delivery.WithConstantBackoff(c.InitialDelay))
	case delivery.RetryStrategyFibonacci:
		opts = append(opts, delivery.WithFibonacciBackoff(c.InitialDelay, c.MaxDelay))
	default:
		opts = append(opts,
			delivery.WithExponentialBackoff(c.InitialDelay, c.MaxDelay),
			delivery.WithMultiplier(c.Multiplier))
	}

	if len(c.RetryableStatuses) > 0 {
		opts = append(opts, delivery.WithRetryableStatuses(c.RetryableStatuses...))
	}
	return opts
}

// Policy builds the retry policy described by the retry section.
func (c RetryConfig) Policy() *delivery.DefaultRetryPolicy {
	return delivery.NewDefaultRetryPolicy(c.RetryOptions()...)
}

// BreakerOptions converts the breaker section to circuit breaker options.
func (c BreakerConfig) BreakerOptions(logger *slog.Logger) []delivery.CircuitBreakerOption {
	return []delivery.CircuitBreakerOption{
		delivery.WithBreakerName("delivery"),
		delivery.WithMaxRequests(c.MaxRequests),
		delivery.WithInterval(c.Interval),
		delivery.WithTimeout(c.Timeout),
		delivery.WithCircuitBreakerLogger(logger),
	}
}

// NewLogger builds a logger writing to w in the configured format and level.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SlogLevel returns the configured level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
