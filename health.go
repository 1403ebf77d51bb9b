package delivery

// HealthStatus reports the state of a BreakerTransport for health endpoints.
type HealthStatus struct {
	// Healthy is false only while the circuit is open.
	Healthy bool `json:"healthy"`

	// Status is "closed", "half-open" or "open".
	Status string `json:"status"`

	// State repeats Status for callers that read the breaker position.
	State string `json:"state"`

	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
}
