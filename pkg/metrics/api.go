package metrics

import "time"

// APIMetrics provides observability for the HTTP API adapter.
type APIMetrics interface {
	// RecordRequest records a completed HTTP request.
	//
	// Parameters:
	//   - route: Route pattern (e.g., "/create_file")
	//   - status: HTTP status code written to the client
	//   - duration: Time taken to serve the request
	RecordRequest(route string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight request gauge.
	RecordRequestStart(route string)

	// RecordRequestEnd decrements the in-flight request gauge.
	RecordRequestEnd(route string)

	// RecordRateLimited counts a request rejected by the rate limiter.
	RecordRateLimited()
}

// NewNoopAPIMetrics returns an APIMetrics that discards everything.
func NewNoopAPIMetrics() APIMetrics {
	return noopAPIMetrics{}
}

type noopAPIMetrics struct{}

func (noopAPIMetrics) RecordRequest(string, int, time.Duration) {}
func (noopAPIMetrics) RecordRequestStart(string)                {}
func (noopAPIMetrics) RecordRequestEnd(string)                  {}
func (noopAPIMetrics) RecordRateLimited()                       {}
