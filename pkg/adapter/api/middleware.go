package api

import (
	"net"
	"net/http"
	"time"

	"github.com/marmos91/homefs/internal/logger"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// clientKey identifies the client for rate limiting.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// instrument wraps a route handler with rate limiting, body limits and metrics.
func (a *Adapter) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		a.metrics.RecordRequestStart(route)
		defer a.metrics.RecordRequestEnd(route)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if a.limiter.Enabled() && !a.limiter.Allow(clientKey(r)) {
			a.metrics.RecordRateLimited()
			writeStatus(rec, http.StatusTooManyRequests, "rate limit exceeded")
			a.metrics.RecordRequest(route, rec.status, time.Since(start))
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(rec, r.Body, a.config.MaxBodyBytes)
		}

		h(rec, r)

		d := time.Since(start)
		a.metrics.RecordRequest(route, rec.status, d)
		logger.Debug("API %s %s -> %d (%v)", r.Method, route, rec.status, d)
	})
}
