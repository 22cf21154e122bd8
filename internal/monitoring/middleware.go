package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// SkipPaths are not counted by RequestMetrics
var SkipPaths = map[string]bool{
	"/metrics":     true,
	"/favicon.ico": true,
}

// RequestMetrics returns a Gin middleware that counts requests and observes their latency.
// Routes are labelled by their registered pattern so unmatched paths collapse into one series.
func (m *CycleMetrics) RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || SkipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, statusClass(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
