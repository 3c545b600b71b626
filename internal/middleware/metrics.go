package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convivencia-api/internal/service"
)

// Probe and scrape traffic would drown the case API series.
var unobservedPaths = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
	"/ready":   {},
}

// Metrics records method, route template, status and latency for API requests.
// Routes that matched nothing share the "unmatched" label to bound cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, skip := unobservedPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
