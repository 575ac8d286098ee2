package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reunitehq/reunite-api/internal/service"
)

// Metrics records per-request duration and counters. The route template
// is used as the path label to keep cardinality bounded.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
