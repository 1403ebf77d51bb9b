package delivery

import (
	"context"
	"errors"
	"log/slog"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/sony/gobreaker/v2"
)

// BreakerTransport wraps a Transport with a circuit breaker. When too many
// transmits fault, the circuit opens and further transmits are rejected
// without reaching the network. A rejection is an ordinary transport
// failure to the Client, so the retry policy decides what happens next.
type BreakerTransport struct {
	transport Transport
	cb        *gobreaker.CircuitBreaker[*TransportResponse]
	logger    *slog.Logger
}

var _ Transport = (*BreakerTransport)(nil)

// statusFault carries a non-2xx response through the breaker so ShouldTrip
// can judge it while the response itself still reaches the Client.
type statusFault struct {
	code int
}

func (e *statusFault) Error() string {
	return "unexpected status"
}

// NewBreakerTransport creates a circuit breaker around transport.
//
// Example:
//
//	transport := delivery.NewBreakerTransport(
//	    delivery.NewHTTPTransport(),
//	    delivery.WithMaxRequests(5),
//	    delivery.WithTimeout(60*time.Second),
//	)
func NewBreakerTransport(transport Transport, opts ...CircuitBreakerOption) *BreakerTransport {
	config := DefaultCircuitBreakerConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ShouldTrip == nil {
		config.ShouldTrip = defaultShouldTrip
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = mostlyFailing
	}

	shouldTrip := config.ShouldTrip

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return config.ReadyToTrip(countsOf(counts))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			config.Logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			if config.OnStateChange != nil {
				config.OnStateChange(name, stateOf(from), stateOf(to))
			}
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var fault *statusFault
			if errors.As(err, &fault) {
				return !shouldTrip(fault.code, nil)
			}
			return !shouldTrip(0, err)
		},
	}

	return &BreakerTransport{
		transport: transport,
		cb:        gobreaker.NewCircuitBreaker[*TransportResponse](settings),
		logger:    config.Logger,
	}
}

// Transmit sends req through the circuit breaker.
// Rejections are reported as jp-go-errors circuit breaker errors that wrap
// gobreaker.ErrOpenState or gobreaker.ErrTooManyRequests.
func (t *BreakerTransport) Transmit(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	resp, err := t.cb.Execute(func() (*TransportResponse, error) {
		resp, err := t.transport.Transmit(ctx, req)
		if err == nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
			return resp, &statusFault{code: resp.StatusCode}
		}
		return resp, err
	})

	var fault *statusFault
	switch {
	case err == nil:
		return resp, nil
	case errors.As(err, &fault):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState):
		counts := t.cb.Counts()
		t.logger.Warn("circuit breaker is open, transmit rejected",
			"url", req.URL,
			"state", t.cb.State().String())
		return nil, jperrors.NewCircuitBreakerError(
			"transmit rejected",
			"transmit",
			"open",
			jperrors.WithCause(err),
			jperrors.WithCounts(toCircuitCounts(counts)),
		)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		counts := t.cb.Counts()
		t.logger.Debug("circuit breaker in half-open state, too many requests",
			"url", req.URL)
		return nil, jperrors.NewCircuitBreakerError(
			"too many requests in half-open state",
			"transmit",
			"half-open",
			jperrors.WithCause(err),
			jperrors.WithCounts(toCircuitCounts(counts)),
		)
	default:
		return nil, err
	}
}

// State reports the breaker position.
func (t *BreakerTransport) State() CircuitBreakerState {
	return stateOf(t.cb.State())
}

// Counts reports the outcomes counted in the current generation.
func (t *BreakerTransport) Counts() CircuitBreakerCounts {
	return countsOf(t.cb.Counts())
}

// GetHealth summarizes the breaker for health endpoints.
func (t *BreakerTransport) GetHealth() HealthStatus {
	state := t.State()
	counts := t.Counts()

	return HealthStatus{
		Healthy:              state != StateOpen,
		Status:               state.String(),
		State:                state.String(),
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
	}
}

// defaultShouldTrip counts transport faults and 5xx responses. Connectivity
// loss is local to the device and says nothing about the server, and a
// canceled context is the caller's decision.
func defaultShouldTrip(statusCode int, err error) bool {
	if err != nil {
		if errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, context.Canceled) {
			return false
		}
		return true
	}
	return statusCode >= 500
}

func toCircuitCounts(counts gobreaker.Counts) jperrors.CircuitCounts {
	c := countsOf(counts)
	return jperrors.CircuitCounts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

func countsOf(counts gobreaker.Counts) CircuitBreakerCounts {
	return CircuitBreakerCounts(counts)
}

var breakerStates = map[gobreaker.State]CircuitBreakerState{
	gobreaker.StateClosed:   StateClosed,
	gobreaker.StateHalfOpen: StateHalfOpen,
	gobreaker.StateOpen:     StateOpen,
}

// stateOf maps a gobreaker state; unknown values read as closed.
func stateOf(state gobreaker.State) CircuitBreakerState {
	return breakerStates[state]
}
