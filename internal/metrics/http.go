package metrics

import (
	"strconv"
	"time"
)

// ShouldSkipEndpoint reports whether an endpoint is excluded from HTTP
// metrics collection
func ShouldSkipEndpoint(path string) bool {
	switch path {
	case "/metrics", "/health", "/ready":
		return true
	}
	return false
}

// RecordHTTPRequest records one completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	if endpoint == "" {
		endpoint = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
