package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/secondbrain-backend/internal/observability"
)

// streamRoutes stay open for the life of a tab; their duration says nothing
// about latency, so they are counted but kept out of the histogram.
var streamRoutes = map[string]bool{
	"/api/sse/stream": true,
}

// Metrics counts API requests by matched route. Unmatched paths share one
// label so scanners cannot blow up series cardinality.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "/metrics" {
			c.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}
		stream := streamRoutes[route]
		if !stream {
			m.APIInflightInc()
			defer m.APIInflightDec()
		}
		start := time.Now()

		c.Next()

		dur := time.Since(start)
		if stream {
			dur = -1
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), dur)
	}
}
