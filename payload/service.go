package payload

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	delivery "github.com/JohnPlummer/jp-go-delivery"
)

// Result is the outcome of one payload send: Err is nil on success.
type Result struct {
	Record *Record
	Err    error
}

// Service sends a single payload record. onComplete must be called exactly
// once, from any goroutine.
type Service interface {
	SendPayload(record *Record, onComplete func(Result))
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(record *Record, onComplete func(Result))

// SendPayload calls f.
func (f ServiceFunc) SendPayload(record *Record, onComplete func(Result)) {
	f(record, onComplete)
}

// HTTPService sends each record as one request through a delivery.Client.
// 2xx responses are successes. 4xx responses other than 401, 403, 408 and 429
// are permanent rejections; every other failure is returned as is.
type HTTPService struct {
	client   *delivery.Client
	baseURL  string
	headers  map[string]string
	rejected func(statusCode int) bool
	logger   *slog.Logger
}

var _ Service = (*HTTPService)(nil)

// ServiceOption configures an HTTPService.
type ServiceOption func(*HTTPService)

// WithServiceHeader adds a header to every payload request.
func WithServiceHeader(key, value string) ServiceOption {
	return func(s *HTTPService) {
		s.headers[key] = value
	}
}

// WithRejectedStatus replaces the rule deciding which status codes are
// permanent rejections.
func WithRejectedStatus(fn func(statusCode int) bool) ServiceOption {
	return func(s *HTTPService) {
		s.rejected = fn
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *HTTPService) {
		s.logger = logger
	}
}

// NewHTTPService creates a payload service posting to baseURL + record.Path.
func NewHTTPService(client *delivery.Client, baseURL string, opts ...ServiceOption) *HTTPService {
	s := &HTTPService{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		headers:  make(map[string]string),
		rejected: DefaultRejectedStatus,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// SendPayload implements Service.
func (s *HTTPService) SendPayload(record *Record, onComplete func(Result)) {
	opts := []delivery.RequestOption{delivery.WithTag(record.ID)}
	for k, v := range s.headers {
		opts = append(opts, delivery.WithHeader(k, v))
	}
	if record.ContentType != "" {
		opts = append(opts, delivery.WithHeader("Content-Type", record.ContentType))
	}
	if record.Method != delivery.MethodGet {
		opts = append(opts, delivery.WithBody(delivery.BytesSerializer(record.Data)))
	}

	req, err := delivery.NewRequest(record.Method, s.url(record), delivery.BytesDeserializer, opts...)
	if err != nil {
		// A record that cannot form a request never will.
		onComplete(Result{Record: record, Err: &RejectedError{Record: record, Cause: err}})
		return
	}

	delivery.Send(s.client, req).
		Then(func(resp *delivery.Response[[]byte]) {
			s.logger.Debug("payload sent",
				"payload", record.String(),
				"status", resp.StatusCode)
			onComplete(Result{Record: record})
		}).
		Catch(func(err error) {
			onComplete(Result{Record: record, Err: s.classify(record, err)})
		})
}

func (s *HTTPService) classify(record *Record, err error) error {
	var unexpected *delivery.UnexpectedResponseError
	if errors.As(err, &unexpected) && s.rejected(unexpected.Code) {
		return &RejectedError{Record: record, Cause: err}
	}
	var serErr *delivery.SerializationError
	if errors.As(err, &serErr) {
		return &RejectedError{Record: record, Cause: err}
	}
	return err
}

func (s *HTTPService) url(record *Record) string {
	if record.Path == "" {
		return s.baseURL
	}
	return s.baseURL + "/" + strings.TrimLeft(record.Path, "/")
}

// DefaultRejectedStatus treats 4xx responses as permanent, except the ones
// that can succeed later: 401 and 403 (credentials may be refreshed), 408
// and 429.
func DefaultRejectedStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return statusCode >= 400 && statusCode <= 499
}
