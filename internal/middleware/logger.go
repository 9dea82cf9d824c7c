package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/records-cluster-go/internal/monitor"
)

// Logger middleware logs HTTP requests and records them in metrics when
// metrics is not nil
func Logger(metrics *monitor.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		if metrics != nil {
			// Route templates keep the label set bounded.
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			metrics.ObserveRequest(route, c.Request.Method, statusCode, latency)
		}

		if raw != "" {
			path = path + "?" + raw
		}

		log.Printf("[%s] %s %s %d %v %s",
			c.Request.Method,
			path,
			c.ClientIP(),
			statusCode,
			latency,
			c.Errors.String(),
		)
	}
}
