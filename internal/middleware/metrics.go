package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hrms-api/internal/service"
)

// UnmatchedRoute labels requests that hit no registered route, so probing
// random URLs cannot grow the metric label set.
const UnmatchedRoute = "unmatched"

// Metrics records latency, status and response size per route template.
// Requests to any of the skip paths are not observed.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = UnmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), c.Writer.Size())
	}
}
