package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"attachment-service/internal/metrics"
)

// Metrics returns a middleware that records HTTP metrics. Unmatched
// routes share one label so scanners cannot inflate metric cardinality
// with random paths.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics.ShouldSkipEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		// c.FullPath() is empty for unmatched routes; RecordHTTPRequest
		// folds those into one label
		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
