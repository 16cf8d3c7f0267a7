package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sd-cohort-api/internal/service"
)

// unmatchedRoute labels requests that hit no route so raw paths never become label values.
const unmatchedRoute = "unmatched"

// Metrics records latency and status per route template. Routes listed in skip
// (typically probes and the scrape endpoint) are not recorded.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		skipped[route] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			c.Next()
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
