package interfaces

// MetricsSink receives orchestration metrics for publication
type MetricsSink interface {
	// PublishServiceFailureRate records the failure percentage for a service
	// over the configured lookback window.
	PublishServiceFailureRate(serviceID string, percent float64)

	// RecordDispatch counts a work item handed to a worker
	RecordDispatch(serviceID string)

	// RecordCompletion counts a terminal work item by final status
	RecordCompletion(serviceID, status string)
}
