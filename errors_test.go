package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	delivery "github.com/JohnPlummer/jp-go-delivery"
)

var _ = Describe("Errors", func() {
	Describe("UnexpectedResponseError", func() {
		It("should describe the status", func() {
			err := delivery.NewUnexpectedResponseError(http.StatusNotFound, "", nil)
			Expect(err.Error()).To(Equal("unexpected response: 404 (Not Found)"))
			Expect(err.StatusCode()).To(Equal(http.StatusNotFound))
			Expect(err.StatusMessage()).To(Equal("Not Found"))
		})

		It("should keep the server's status message", func() {
			err := delivery.NewUnexpectedResponseError(http.StatusTeapot, "Short and stout", []byte("body"))
			Expect(err.Error()).To(Equal("unexpected response: 418 (Short and stout)"))
			Expect(err.Body).To(Equal([]byte("body")))
		})

		It("should satisfy HTTPError", func() {
			var httpErr delivery.HTTPError
			err := fmt.Errorf("wrapped: %w", delivery.NewUnexpectedResponseError(http.StatusBadGateway, "", nil))
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(httpErr.StatusCode()).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("RetryStatus", func() {
		DescribeTable("maps failures to policy status codes",
			func(err error, expectedStatus int, expectedOK bool) {
				status, ok := delivery.RetryStatus(err)
				Expect(ok).To(Equal(expectedOK))
				if expectedOK {
					Expect(status).To(Equal(expectedStatus))
				}
			},
			Entry("no network", delivery.ErrNetworkUnavailable, delivery.StatusNoNetwork, true),
			Entry("wrapped no network", fmt.Errorf("dial: %w", delivery.ErrNetworkUnavailable), delivery.StatusNoNetwork, true),
			Entry("transport fault", &delivery.TransportError{Cause: errors.New("reset")}, delivery.StatusTransportFailure, true),
			Entry("unexpected response", delivery.NewUnexpectedResponseError(503, "", nil), 503, true),
			Entry("rate limited", jperrors.ErrRateLimited, http.StatusTooManyRequests, true),
			Entry("serialization", &delivery.SerializationError{Cause: errors.New("bad")}, 0, false),
			Entry("deserialization", &delivery.DeserializationError{Cause: errors.New("bad")}, 0, false),
			Entry("nil", nil, 0, false),
		)
	})

	Describe("IsTransient", func() {
		It("should treat connectivity, transport faults and 5xx as transient", func() {
			Expect(delivery.IsTransient(delivery.ErrNetworkUnavailable)).To(BeTrue())
			Expect(delivery.IsTransient(&delivery.TransportError{Cause: errors.New("reset")})).To(BeTrue())
			Expect(delivery.IsTransient(delivery.NewUnexpectedResponseError(500, "", nil))).To(BeTrue())
			Expect(delivery.IsTransient(delivery.NewUnexpectedResponseError(429, "", nil))).To(BeTrue())
		})

		It("should treat timeouts as transient", func() {
			Expect(delivery.IsTransient(context.DeadlineExceeded)).To(BeTrue())
			Expect(delivery.IsTransient(jperrors.NewTimeoutError("attempt timed out", "transmit", 5*time.Second))).To(BeTrue())
		})

		It("should treat client errors and local data errors as permanent", func() {
			Expect(delivery.IsTransient(delivery.NewUnexpectedResponseError(400, "", nil))).To(BeFalse())
			Expect(delivery.IsTransient(delivery.NewUnexpectedResponseError(404, "", nil))).To(BeFalse())
			Expect(delivery.IsTransient(&delivery.SerializationError{Cause: errors.New("bad")})).To(BeFalse())
			Expect(delivery.IsTransient(nil)).To(BeFalse())
		})
	})
})
