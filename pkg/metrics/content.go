package metrics

import "time"

// ContentMetrics provides observability for physical content store operations.
//
// Implementations label every series with the backend name so several stores
// can share one instance.
type ContentMetrics interface {
	// ObserveOperation records a completed content store call.
	//
	// Parameters:
	//   - backend: Store type (e.g., "filesystem", "s3")
	//   - operation: Method name (e.g., "Create", "Read")
	//   - duration: Time taken by the call
	//   - err: Error if the call failed, nil if successful
	ObserveOperation(backend, operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved in the given direction ("read" or "write").
	RecordBytes(backend, direction string, bytes int64)
}

// NewNoopContentMetrics returns a ContentMetrics that discards everything.
func NewNoopContentMetrics() ContentMetrics {
	return noopContentMetrics{}
}

type noopContentMetrics struct{}

func (noopContentMetrics) ObserveOperation(string, string, time.Duration, error) {}
func (noopContentMetrics) RecordBytes(string, string, int64)                     {}
