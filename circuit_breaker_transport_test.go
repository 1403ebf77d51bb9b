package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sony/gobreaker/v2"

	delivery "github.com/JohnPlummer/jp-go-delivery"
)

var _ = Describe("BreakerTransport", func() {
	var (
		inner   *mockTransport
		breaker *delivery.BreakerTransport
		ctx     context.Context
		req     *delivery.TransportRequest
	)

	transmitN := func(n int) {
		for i := 0; i < n; i++ {
			_, _ = breaker.Transmit(ctx, req)
		}
	}

	BeforeEach(func() {
		inner = newMockTransport()
		ctx = context.Background()
		req = &delivery.TransportRequest{Method: delivery.MethodGet, URL: "https://api.example.com"}
	})

	Describe("Default Configuration", func() {
		It("should start closed", func() {
			breaker = delivery.NewBreakerTransport(inner)
			Expect(breaker.State()).To(Equal(delivery.StateClosed))
		})

		It("should trip at 60% failures over at least 3 requests", func() {
			config := delivery.DefaultCircuitBreakerConfig()
			Expect(config.ReadyToTrip(delivery.CircuitBreakerCounts{Requests: 3, TotalFailures: 2})).To(BeTrue())
			Expect(config.ReadyToTrip(delivery.CircuitBreakerCounts{Requests: 3, TotalFailures: 1})).To(BeFalse())
			Expect(config.ReadyToTrip(delivery.CircuitBreakerCounts{Requests: 2, TotalFailures: 2})).To(BeFalse())
		})

		It("should have MaxRequests=3, Interval=10s and Timeout=30s", func() {
			config := delivery.DefaultCircuitBreakerConfig()
			Expect(config.MaxRequests).To(Equal(uint32(3)))
			Expect(config.Interval).To(Equal(10 * time.Second))
			Expect(config.Timeout).To(Equal(30 * time.Second))
		})
	})

	Describe("Transmit", func() {
		BeforeEach(func() {
			breaker = delivery.NewBreakerTransport(inner,
				delivery.WithTimeout(100*time.Millisecond),
				delivery.WithCircuitBreakerLogger(quietLogger()),
			)
		})

		It("should pass successful responses through", func() {
			resp, err := breaker.Transmit(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(breaker.Counts().TotalSuccesses).To(Equal(uint32(1)))
		})

		It("should return 5xx responses while counting them as failures", func() {
			inner.respondWith(http.StatusInternalServerError)

			resp, err := breaker.Transmit(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(breaker.Counts().TotalFailures).To(Equal(uint32(1)))
		})

		It("should not count 4xx responses as failures", func() {
			inner.respondWith(http.StatusNotFound)
			transmitN(5)
			Expect(breaker.Counts().TotalFailures).To(BeZero())
			Expect(breaker.State()).To(Equal(delivery.StateClosed))
		})

		It("should open after repeated transport faults", func() {
			inner.failSend = true
			transmitN(3)
			Expect(breaker.State()).To(Equal(delivery.StateOpen))
		})

		It("should not open while the network is unavailable", func() {
			inner.setNetworkAvailable(false)
			transmitN(5)
			Expect(breaker.State()).To(Equal(delivery.StateClosed))

			_, err := breaker.Transmit(ctx, req)
			Expect(errors.Is(err, delivery.ErrNetworkUnavailable)).To(BeTrue())
		})

		It("should reject without calling the transport while open", func() {
			inner.respondWith(http.StatusServiceUnavailable)
			transmitN(3)
			Expect(breaker.State()).To(Equal(delivery.StateOpen))
			calls := inner.requestCount()

			_, err := breaker.Transmit(ctx, req)
			Expect(errors.Is(err, gobreaker.ErrOpenState)).To(BeTrue())
			Expect(inner.requestCount()).To(Equal(calls))
		})

		It("should half-open after the timeout and close on success", func() {
			inner.failSend = true
			transmitN(3)
			Expect(breaker.State()).To(Equal(delivery.StateOpen))

			time.Sleep(150 * time.Millisecond)
			inner.failSend = false

			_, err := breaker.Transmit(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(breaker.State()).To(Equal(delivery.StateHalfOpen))

			transmitN(2)
			Expect(breaker.State()).To(Equal(delivery.StateClosed))
		})
	})

	Describe("Custom Configuration", func() {
		It("should use a custom ShouldTrip", func() {
			breaker = delivery.NewBreakerTransport(inner,
				delivery.WithCircuitBreakerLogger(quietLogger()),
				delivery.WithShouldTrip(func(statusCode int, err error) bool {
					return statusCode == http.StatusTooManyRequests
				}),
			)
			inner.respondWith(http.StatusTooManyRequests)
			transmitN(3)
			Expect(breaker.State()).To(Equal(delivery.StateOpen))
		})

		It("should use a custom ReadyToTrip", func() {
			breaker = delivery.NewBreakerTransport(inner,
				delivery.WithCircuitBreakerLogger(quietLogger()),
				delivery.WithReadyToTrip(func(counts delivery.CircuitBreakerCounts) bool {
					return counts.ConsecutiveFailures >= 5
				}),
			)
			inner.failSend = true
			transmitN(4)
			Expect(breaker.State()).To(Equal(delivery.StateClosed))
			transmitN(1)
			Expect(breaker.State()).To(Equal(delivery.StateOpen))
		})

		It("should report state changes", func() {
			var (
				mu          sync.Mutex
				transitions []string
			)
			breaker = delivery.NewBreakerTransport(inner,
				delivery.WithBreakerName("payments"),
				delivery.WithCircuitBreakerLogger(quietLogger()),
				delivery.WithStateChangeHandler(func(name string, from, to delivery.CircuitBreakerState) {
					mu.Lock()
					defer mu.Unlock()
					transitions = append(transitions, name+": "+from.String()+" -> "+to.String())
				}),
			)
			inner.failSend = true
			transmitN(3)

			mu.Lock()
			defer mu.Unlock()
			Expect(transitions).To(Equal([]string{"payments: closed -> open"}))
		})
	})

	Describe("With the Client", func() {
		It("should surface an open circuit as a retryable transport error", func() {
			inner.failSend = true
			breaker = delivery.NewBreakerTransport(inner, delivery.WithCircuitBreakerLogger(quietLogger()))
			transmitN(3)

			network := delivery.NewManualQueue()
			client := delivery.NewClient(breaker,
				delivery.WithNetworkQueue(network),
				delivery.WithLogger(quietLogger()),
				delivery.WithRetryPolicy(delivery.NewDefaultRetryPolicy(delivery.WithMaxRetries(1))),
			)
			r, err := delivery.NewRequest(delivery.MethodGet, "https://api.example.com", delivery.StringDeserializer)
			Expect(err).NotTo(HaveOccurred())

			future := delivery.Send(client, r)
			network.DispatchAll()
			Expect(network.Pending()).To(Equal(1))
			network.DispatchAll()

			_, err = future.Await(ctx)
			var transportErr *delivery.TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(errors.Is(err, gobreaker.ErrOpenState)).To(BeTrue())
		})
	})

	Describe("GetHealth", func() {
		It("should report healthy while closed", func() {
			breaker = delivery.NewBreakerTransport(inner, delivery.WithCircuitBreakerLogger(quietLogger()))
			transmitN(2)

			health := breaker.GetHealth()
			Expect(health.Healthy).To(BeTrue())
			Expect(health.Status).To(Equal("closed"))
			Expect(health.Requests).To(Equal(uint32(2)))
			Expect(health.TotalSuccesses).To(Equal(uint32(2)))
		})

		It("should report unhealthy while open", func() {
			inner.failSend = true
			breaker = delivery.NewBreakerTransport(inner, delivery.WithCircuitBreakerLogger(quietLogger()))
			transmitN(3)

			health := breaker.GetHealth()
			Expect(health.Healthy).To(BeFalse())
			Expect(health.State).To(Equal("open"))
		})

		It("should serialize to JSON with snake_case fields", func() {
			breaker = delivery.NewBreakerTransport(inner, delivery.WithCircuitBreakerLogger(quietLogger()))
			data, err := json.Marshal(breaker.GetHealth())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"consecutive_failures":0`))
			Expect(string(data)).To(ContainSubstring(`"healthy":true`))
		})
	})
})
