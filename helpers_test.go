package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	delivery "github.com/JohnPlummer/jp-go-delivery"
)

// quietLogger discards everything below error level.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockTransport is an in-memory Transport with switchable failure modes.
type mockTransport struct {
	mu sync.Mutex

	networkAvailable bool
	failSend         bool
	failReceive      bool
	statusCode       int
	body             []byte

	requests []*delivery.TransportRequest
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		networkAvailable: true,
		statusCode:       http.StatusOK,
	}
}

func (m *mockTransport) Transmit(_ context.Context, req *delivery.TransportRequest) (*delivery.TransportResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if !m.networkAvailable {
		return nil, delivery.ErrNetworkUnavailable
	}
	if m.failSend {
		return nil, errors.New("failed to send: connection reset")
	}
	if m.failReceive {
		return nil, errors.New("failed to receive: unexpected EOF")
	}

	body := m.body
	if body == nil {
		body = req.Body
	}
	return &delivery.TransportResponse{
		StatusCode:    m.statusCode,
		StatusMessage: http.StatusText(m.statusCode),
		Body:          body,
	}, nil
}

func (m *mockTransport) respondWith(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCode = statusCode
}

func (m *mockTransport) setNetworkAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkAvailable = available
}

func (m *mockTransport) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockTransport) lastRequest() *delivery.TransportRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// eventRecorder collects listener and future events as strings such as
// "1 start", "1 retry: 1" or "1 failed: 500 (Internal Server Error)".
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *eventRecorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	if out == nil {
		out = []string{}
	}
	return out
}

func (r *eventRecorder) OnRequestStart(_ *delivery.Client, req delivery.RequestInfo) {
	r.add("%s start", req.Tag())
}

func (r *eventRecorder) OnRequestRetry(_ *delivery.Client, req delivery.RequestInfo) {
	r.add("%s retry: %d", req.Tag(), req.NumRetries())
}

func (r *eventRecorder) OnRequestComplete(_ *delivery.Client, req delivery.RequestInfo) {
	r.add("%s complete", req.Tag())
}

// track records the outcome of future under tag.
func track[T any](r *eventRecorder, tag string, future *delivery.Future[*delivery.Response[T]]) {
	future.
		Then(func(resp *delivery.Response[T]) {
			r.add("%s success: %d", tag, resp.StatusCode)
		}).
		Catch(func(err error) {
			var unexpected *delivery.UnexpectedResponseError
			switch {
			case errors.As(err, &unexpected):
				r.add("%s failed: %d (%s)", tag, unexpected.Code, unexpected.Message)
			case errors.Is(err, delivery.ErrNetworkUnavailable):
				r.add("%s failed: no network", tag)
			default:
				r.add("%s failed: %v", tag, err)
			}
		})
}
