package delivery_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	delivery "github.com/JohnPlummer/jp-go-delivery"
)

var _ = Describe("DefaultRetryPolicy", func() {
	Describe("Default Configuration", func() {
		It("should have MaxRetries=3", func() {
			config := delivery.DefaultRetryConfig()
			Expect(config.MaxRetries).To(Equal(3))
			Expect(delivery.NewDefaultRetryPolicy().MaxRetries()).To(Equal(3))
		})

		It("should use exponential backoff from 1s capped at 30s", func() {
			config := delivery.DefaultRetryConfig()
			Expect(config.Strategy).To(Equal(delivery.RetryStrategyExponential))
			Expect(config.InitialDelay).To(Equal(time.Second))
			Expect(config.MaxDelay).To(Equal(30 * time.Second))
			Expect(config.Multiplier).To(Equal(2.0))
		})

		It("should clamp a negative retry budget to zero", func() {
			policy := delivery.NewDefaultRetryPolicy(delivery.WithMaxRetries(-1))
			Expect(policy.MaxRetries()).To(Equal(0))
			Expect(policy.ShouldRetry(http.StatusInternalServerError, 0)).To(BeFalse())
		})
	})

	Describe("ShouldRetry", func() {
		var policy *delivery.DefaultRetryPolicy

		BeforeEach(func() {
			policy = delivery.NewDefaultRetryPolicy(delivery.WithMaxRetries(2))
		})

		It("should retry 5xx responses", func() {
			Expect(policy.ShouldRetry(http.StatusInternalServerError, 0)).To(BeTrue())
			Expect(policy.ShouldRetry(http.StatusBadGateway, 0)).To(BeTrue())
			Expect(policy.ShouldRetry(http.StatusServiceUnavailable, 1)).To(BeTrue())
		})

		It("should retry connectivity loss and transport faults", func() {
			Expect(policy.ShouldRetry(delivery.StatusNoNetwork, 0)).To(BeTrue())
			Expect(policy.ShouldRetry(delivery.StatusTransportFailure, 0)).To(BeTrue())
		})

		It("should not retry 4xx responses", func() {
			Expect(policy.ShouldRetry(http.StatusBadRequest, 0)).To(BeFalse())
			Expect(policy.ShouldRetry(http.StatusUnauthorized, 0)).To(BeFalse())
			Expect(policy.ShouldRetry(http.StatusNotFound, 0)).To(BeFalse())
			Expect(policy.ShouldRetry(http.StatusTooManyRequests, 0)).To(BeFalse())
		})

		It("should stop once the budget is spent", func() {
			Expect(policy.ShouldRetry(http.StatusInternalServerError, 1)).To(BeTrue())
			Expect(policy.ShouldRetry(http.StatusInternalServerError, 2)).To(BeFalse())
			Expect(policy.ShouldRetry(http.StatusInternalServerError, 3)).To(BeFalse())
		})

		It("should only retry listed statuses when a set is configured", func() {
			policy = delivery.NewDefaultRetryPolicy(
				delivery.WithMaxRetries(2),
				delivery.WithRetryableStatuses(http.StatusTooManyRequests, delivery.StatusNoNetwork),
			)
			Expect(policy.ShouldRetry(http.StatusTooManyRequests, 0)).To(BeTrue())
			Expect(policy.ShouldRetry(delivery.StatusNoNetwork, 0)).To(BeTrue())
			Expect(policy.ShouldRetry(http.StatusInternalServerError, 0)).To(BeFalse())
			Expect(policy.ShouldRetry(delivery.StatusTransportFailure, 0)).To(BeFalse())
		})

		It("should not be affected by later changes to the status list", func() {
			statuses := []int{http.StatusServiceUnavailable}
			policy = delivery.NewDefaultRetryPolicy(delivery.WithRetryableStatuses(statuses...))
			statuses[0] = http.StatusBadRequest

			Expect(policy.ShouldRetry(http.StatusServiceUnavailable, 0)).To(BeTrue())
			Expect(policy.ShouldRetry(http.StatusBadRequest, 0)).To(BeFalse())
		})
	})

	Describe("RetryDelay", func() {
		It("should double the delay for exponential backoff", func() {
			policy := delivery.NewDefaultRetryPolicy(
				delivery.WithExponentialBackoff(100*time.Millisecond, 10*time.Second),
			)
			Expect(policy.RetryDelay(0)).To(Equal(100 * time.Millisecond))
			Expect(policy.RetryDelay(1)).To(Equal(200 * time.Millisecond))
			Expect(policy.RetryDelay(2)).To(Equal(400 * time.Millisecond))
			Expect(policy.RetryDelay(3)).To(Equal(800 * time.Millisecond))
		})

		It("should cap exponential backoff at the max delay", func() {
			policy := delivery.NewDefaultRetryPolicy(
				delivery.WithExponentialBackoff(time.Second, 5*time.Second),
			)
			Expect(policy.RetryDelay(2)).To(Equal(4 * time.Second))
			Expect(policy.RetryDelay(3)).To(Equal(5 * time.Second))
			Expect(policy.RetryDelay(10)).To(Equal(5 * time.Second))
		})

		It("should apply a custom multiplier", func() {
			policy := delivery.NewDefaultRetryPolicy(
				delivery.WithExponentialBackoff(time.Second, 30*time.Second),
				delivery.WithMultiplier(3),
			)
			Expect(policy.RetryDelay(0)).To(Equal(time.Second))
			Expect(policy.RetryDelay(1)).To(Equal(3 * time.Second))
			Expect(policy.RetryDelay(2)).To(Equal(9 * time.Second))
			Expect(policy.RetryDelay(3)).To(Equal(27 * time.Second))
			Expect(policy.RetryDelay(4)).To(Equal(30 * time.Second))
		})

		It("should return the same delay for constant backoff", func() {
			policy := delivery.NewDefaultRetryPolicy(delivery.WithConstantBackoff(250 * time.Millisecond))
			for n := 0; n < 5; n++ {
				Expect(policy.RetryDelay(n)).To(Equal(250 * time.Millisecond))
			}
		})

		It("should grow fibonacci backoff without exceeding the cap", func() {
			policy := delivery.NewDefaultRetryPolicy(
				delivery.WithFibonacciBackoff(time.Second, 10*time.Second),
			)
			Expect(policy.RetryDelay(0)).To(Equal(time.Second))

			previous := time.Duration(0)
			for n := 0; n < 10; n++ {
				delay := policy.RetryDelay(n)
				Expect(delay).To(BeNumerically(">=", previous))
				Expect(delay).To(BeNumerically("<=", 10*time.Second))
				previous = delay
			}
			Expect(previous).To(Equal(10 * time.Second))
		})

		It("should be deterministic across calls", func() {
			policy := delivery.NewDefaultRetryPolicy()
			first := policy.RetryDelay(2)
			Expect(policy.RetryDelay(2)).To(Equal(first))
			Expect(policy.RetryDelay(0)).To(Equal(time.Second))
		})

		It("should treat a negative retry count as the first retry", func() {
			policy := delivery.NewDefaultRetryPolicy()
			Expect(policy.RetryDelay(-1)).To(Equal(policy.RetryDelay(0)))
		})
	})

	Describe("NoRetryPolicy", func() {
		It("should never retry", func() {
			Expect(delivery.NoRetryPolicy.ShouldRetry(http.StatusInternalServerError, 0)).To(BeFalse())
			Expect(delivery.NoRetryPolicy.ShouldRetry(delivery.StatusNoNetwork, 0)).To(BeFalse())
			Expect(delivery.NoRetryPolicy.RetryDelay(0)).To(BeZero())
		})
	})
})
