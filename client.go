// Package delivery is the network-delivery core of a client SDK. It sends
// typed requests over a pluggable Transport with bounded, policy-driven
// retries, classifies failures as connectivity loss, transport faults or
// unexpected responses, and reports each outcome exactly once through a Future.
//
// The payload subpackage builds ordered, single-flight delivery of durable
// payload records on top of the Client.
package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Client sends requests through a Transport. All serialize, transmit and
// classify steps run on the client's network queue, so two requests never
// transmit in parallel on the same client.
type Client struct {
	transport     Transport
	retryPolicy   RetryPolicy
	listener      Listener
	networkQueue  ExecutionQueue
	callbackQueue ExecutionQueue
	ownedQueue    *SerialQueue
	logger        *slog.Logger
	timeout       time.Duration
	stats         *clientStats
}

// clientStats tracks request statistics.
type clientStats struct {
	mu             sync.RWMutex
	totalAttempts  int64
	totalRetries   int64
	totalSuccesses int64
	totalFailures  int64
	lastError      error
}

// NewClient creates a client that transmits through transport.
//
// Example:
//
//	client := delivery.NewClient(
//	    delivery.NewHTTPTransport(),
//	    delivery.WithRetryPolicy(delivery.NewDefaultRetryPolicy(delivery.WithMaxRetries(3))),
//	)
//	defer client.Close()
func NewClient(transport Transport, opts ...ClientOption) *Client {
	config := DefaultClientConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RetryPolicy == nil {
		config.RetryPolicy = NoRetryPolicy
	}
	if config.Listener == nil {
		config.Listener = NopListener{}
	}
	if config.CallbackQueue == nil {
		config.CallbackQueue = ImmediateQueue{}
	}

	c := &Client{
		transport:     transport,
		retryPolicy:   config.RetryPolicy,
		listener:      config.Listener,
		networkQueue:  config.NetworkQueue,
		callbackQueue: config.CallbackQueue,
		logger:        config.Logger,
		timeout:       config.AttemptTimeout,
		stats:         &clientStats{},
	}
	if c.networkQueue == nil {
		c.ownedQueue = NewSerialQueue("network", config.Logger)
		c.networkQueue = c.ownedQueue
	}
	return c
}

// Close stops the network queue if the client created it. Requests still
// waiting on the queue are abandoned.
func (c *Client) Close() {
	if c.ownedQueue != nil {
		c.ownedQueue.Stop()
	}
}

// Send schedules req on the client's network queue and returns a Future that
// resolves exactly once: with the response when the final status is 2xx, or
// with one of UnexpectedResponseError, ErrNetworkUnavailable, TransportError,
// SerializationError or DeserializationError.
func Send[T any](c *Client, req *Request[T]) *Future[*Response[T]] {
	future := NewFuture[*Response[T]](c.callbackQueue)
	c.networkQueue.Dispatch(func() {
		c.listener.OnRequestStart(c, req)
		attempt(c, req, future)
	})
	return future
}

// attempt performs one transmit of req and decides what happens next.
func attempt[T any](c *Client, req *Request[T], future *Future[*Response[T]]) {
	c.stats.recordAttempt(req.numRetries > 0)

	var body []byte
	if req.serializer != nil {
		data, err := req.serializer.Serialize()
		if err != nil {
			finishWithError(c, req, future, &SerializationError{Cause: err})
			return
		}
		body = data
	}

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.transport.Transmit(ctx, &TransportRequest{
		Method:  req.method,
		URL:     req.url,
		Headers: req.headers,
		Body:    body,
	})
	if err == nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		err = NewUnexpectedResponseError(resp.StatusCode, resp.StatusMessage, resp.Body)
	} else if err != nil && !isNetworkUnavailable(err) {
		err = &TransportError{Cause: err}
	}

	if err != nil {
		retryOrFail(c, req, future, err)
		return
	}

	content, err := req.deserializer.Deserialize(resp.Body)
	if err != nil {
		finishWithError(c, req, future, &DeserializationError{Cause: err})
		return
	}

	if req.numRetries > 0 {
		c.logger.Info("request succeeded after retry",
			"url", req.url,
			"tag", req.tag,
			"retries", req.numRetries)
	}
	c.stats.recordSuccess()
	c.listener.OnRequestComplete(c, req)
	future.Resolve(&Response[T]{
		StatusCode:    resp.StatusCode,
		StatusMessage: resp.StatusMessage,
		Content:       content,
		ContentLength: len(resp.Body),
	})
}

func retryOrFail[T any](c *Client, req *Request[T], future *Future[*Response[T]], err error) {
	policy := req.retryPolicy
	if policy == nil {
		policy = c.retryPolicy
	}

	status, retryable := RetryStatus(err)
	if !retryable || !policy.ShouldRetry(status, req.numRetries) {
		finishWithError(c, req, future, err)
		return
	}

	delay := policy.RetryDelay(req.numRetries)
	c.logger.Debug("retrying request after delay",
		"url", req.url,
		"tag", req.tag,
		"status", status,
		"retries", req.numRetries,
		"delay", delay,
		"error", err)

	c.networkQueue.DispatchAfter(delay, func() {
		req.numRetries++
		c.listener.OnRequestRetry(c, req)
		attempt(c, req, future)
	})
}

func finishWithError[T any](c *Client, req *Request[T], future *Future[*Response[T]], err error) {
	c.logger.Warn("request failed",
		"method", req.method,
		"url", req.url,
		"tag", req.tag,
		"retries", req.numRetries,
		"error", err)
	c.stats.recordFailure(err)
	c.listener.OnRequestComplete(c, req)
	future.Reject(err)
}

func isNetworkUnavailable(err error) bool {
	status, _ := RetryStatus(err)
	return status == StatusNoNetwork
}

func (s *clientStats) recordAttempt(retry bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalAttempts++
	if retry {
		s.totalRetries++
	}
}

func (s *clientStats) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSuccesses++
}

func (s *clientStats) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalFailures++
	s.lastError = err
}

// Stats holds statistics about requests sent through a Client.
type Stats struct {
	// TotalAttempts is the number of transmits, including retries.
	TotalAttempts int64

	// TotalRetries is the number of retry attempts.
	TotalRetries int64

	// TotalSuccesses is the number of requests that resolved with a response.
	TotalSuccesses int64

	// TotalFailures is the number of requests that resolved with an error.
	TotalFailures int64

	// LastError is the last terminal error (if any).
	LastError error
}

// Stats returns a snapshot of the client's request statistics.
func (c *Client) Stats() Stats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()

	return Stats{
		TotalAttempts:  c.stats.totalAttempts,
		TotalRetries:   c.stats.totalRetries,
		TotalSuccesses: c.stats.totalSuccesses,
		TotalFailures:  c.stats.totalFailures,
		LastError:      c.stats.lastError,
	}
}
