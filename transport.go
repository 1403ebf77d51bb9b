package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TransportRequest is the byte-level form of a request.
type TransportRequest struct {
	Method  Method
	URL     string
	Headers map[string]string
	Body    []byte
}

// TransportResponse is the byte-level form of a response. Any status code is
// a valid response; classification happens in the Client.
type TransportResponse struct {
	StatusCode    int
	StatusMessage string
	Body          []byte
}

// Transport performs raw network I/O. Implementations must return an error
// wrapping ErrNetworkUnavailable, without attempting to connect, when there is
// no connectivity, and any other error when sending or receiving faults.
type Transport interface {
	Transmit(ctx context.Context, req *TransportRequest) (*TransportResponse, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *TransportRequest) (*TransportResponse, error)

// Transmit calls f.
func (f TransportFunc) Transmit(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	return f(ctx, req)
}

// ConnectivityFunc reports whether a network path is currently available.
type ConnectivityFunc func() bool

// HTTPTransport implements Transport on top of net/http.
type HTTPTransport struct {
	client    *http.Client
	connected ConnectivityFunc
}

// HTTPTransportOption configures an HTTPTransport.
type HTTPTransportOption func(*HTTPTransport)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(client *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// WithConnectivity sets the connectivity probe consulted before every transmit.
func WithConnectivity(fn ConnectivityFunc) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.connected = fn
	}
}

// NewHTTPTransport creates a net/http transport. By default it uses a client
// with a 30 second timeout and assumes connectivity is always available.
func NewHTTPTransport(opts ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client:    &http.Client{Timeout: 30 * time.Second},
		connected: func() bool { return true },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transmit implements Transport.
func (t *HTTPTransport) Transmit(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	if !t.connected() {
		return nil, ErrNetworkUnavailable
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to receive: %w", err)
	}

	return &TransportResponse{
		StatusCode:    resp.StatusCode,
		StatusMessage: statusPhrase(resp.Status, resp.StatusCode),
		Body:          data,
	}, nil
}

// statusPhrase strips the numeric prefix from a net/http status line such as
// "404 Not Found".
func statusPhrase(status string, code int) string {
	prefix := fmt.Sprintf("%d ", code)
	if phrase := strings.TrimPrefix(status, prefix); phrase != status && phrase != "" {
		return phrase
	}
	return http.StatusText(code)
}
