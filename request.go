package delivery

import (
	"fmt"
	"net/http"
)

// Method is an HTTP request method.
type Method string

// Supported request methods.
const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodPatch  Method = http.MethodPatch
	MethodDelete Method = http.MethodDelete
	MethodHead   Method = http.MethodHead
)

// RequestInfo is the type-erased view of a request handed to listeners.
type RequestInfo interface {
	Method() Method
	URL() string
	Tag() string
	NumRetries() int
}

// Request describes one typed HTTP exchange. A request is sent once through
// a Client (including its internal retries) and is not reused afterwards.
type Request[T any] struct {
	method       Method
	url          string
	headers      map[string]string
	serializer   Serializer
	deserializer Deserializer[T]
	retryPolicy  RetryPolicy
	tag          string
	numRetries   int
}

type requestConfig struct {
	headers     map[string]string
	serializer  Serializer
	retryPolicy RetryPolicy
	tag         string
}

// RequestOption configures a Request.
type RequestOption func(*requestConfig)

// WithHeader adds a request header.
func WithHeader(key, value string) RequestOption {
	return func(c *requestConfig) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// WithBody sets the serializer producing the request body.
// GET requests must not carry a body.
func WithBody(serializer Serializer) RequestOption {
	return func(c *requestConfig) {
		c.serializer = serializer
	}
}

// WithRequestRetryPolicy overrides the client's retry policy for one request.
func WithRequestRetryPolicy(policy RetryPolicy) RequestOption {
	return func(c *requestConfig) {
		c.retryPolicy = policy
	}
}

// WithTag attaches an opaque correlation tag to the request.
func WithTag(tag string) RequestOption {
	return func(c *requestConfig) {
		c.tag = tag
	}
}

// NewRequest builds a request whose response body is decoded by deserializer.
// It returns ErrBodyNotAllowed when a GET request is given a body.
//
// Example:
//
//	req, err := delivery.NewRequest(
//	    delivery.MethodPost,
//	    "https://api.example.com/conversations",
//	    delivery.StringDeserializer,
//	    delivery.WithBody(delivery.JSONSerializer{Value: body}),
//	    delivery.WithHeader("Content-Type", "application/json"),
//	)
func NewRequest[T any](method Method, url string, deserializer Deserializer[T], opts ...RequestOption) (*Request[T], error) {
	var cfg requestConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if method == "" {
		return nil, fmt.Errorf("request method is required")
	}
	if url == "" {
		return nil, fmt.Errorf("request url is required")
	}
	if deserializer == nil {
		return nil, fmt.Errorf("response deserializer is required")
	}
	if method == MethodGet && cfg.serializer != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, ErrBodyNotAllowed)
	}

	return &Request[T]{
		method:       method,
		url:          url,
		headers:      cfg.headers,
		serializer:   cfg.serializer,
		deserializer: deserializer,
		retryPolicy:  cfg.retryPolicy,
		tag:          cfg.tag,
	}, nil
}

// Method returns the request method.
func (r *Request[T]) Method() Method { return r.method }

// URL returns the request URL.
func (r *Request[T]) URL() string { return r.url }

// Tag returns the correlation tag.
func (r *Request[T]) Tag() string { return r.tag }

// NumRetries returns how many times the request has been retried so far.
func (r *Request[T]) NumRetries() int { return r.numRetries }

// Headers returns a copy of the request headers.
func (r *Request[T]) Headers() map[string]string {
	out := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

// Response is the successful outcome of a request.
type Response[T any] struct {
	// StatusCode is the HTTP status code, always within 200-299.
	StatusCode int

	// StatusMessage is the status phrase reported by the transport.
	StatusMessage string

	// Content is the deserialized body.
	Content T

	// ContentLength is the raw body length in bytes.
	ContentLength int
}
