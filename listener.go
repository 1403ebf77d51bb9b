package delivery

// Listener observes request lifecycle transitions. It is used for
// diagnostics and metrics and is never required for correctness.
// Callbacks run on the client's network queue and must not block.
type Listener interface {
	OnRequestStart(client *Client, req RequestInfo)
	OnRequestRetry(client *Client, req RequestInfo)
	OnRequestComplete(client *Client, req RequestInfo)
}

// NopListener ignores every event.
type NopListener struct{}

// OnRequestStart implements Listener.
func (NopListener) OnRequestStart(*Client, RequestInfo) {}

// OnRequestRetry implements Listener.
func (NopListener) OnRequestRetry(*Client, RequestInfo) {}

// OnRequestComplete implements Listener.
func (NopListener) OnRequestComplete(*Client, RequestInfo) {}

// Listeners fans every event out to each listener in order.
type Listeners []Listener

// OnRequestStart implements Listener.
func (ls Listeners) OnRequestStart(c *Client, req RequestInfo) {
	for _, l := range ls {
		l.OnRequestStart(c, req)
	}
}

// OnRequestRetry implements Listener.
func (ls Listeners) OnRequestRetry(c *Client, req RequestInfo) {
	for _, l := range ls {
		l.OnRequestRetry(c, req)
	}
}

// OnRequestComplete implements Listener.
func (ls Listeners) OnRequestComplete(c *Client, req RequestInfo) {
	for _, l := range ls {
		l.OnRequestComplete(c, req)
	}
}
