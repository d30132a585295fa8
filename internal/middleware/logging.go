package middleware

import (
	"net/http"
	"strconv"
	"time"

	"taskboard/internal/observability"

	"github.com/gin-gonic/gin"
)

// AccessLog logs every request and records the HTTP metrics under service.
func AccessLog(logger observability.Logger, service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		observability.HTTPRequestsTotal.WithLabelValues(service, route, c.Request.Method, strconv.Itoa(status)).Inc()
		observability.HTTPRequestDuration.WithLabelValues(service, route).Observe(duration.Seconds())

		logger.WithContext(c.Request.Context()).Info("http request",
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.Int("status", status),
			observability.Int("size", c.Writer.Size()),
			observability.Duration("duration", duration),
			observability.String("client_ip", c.ClientIP()),
		)
	}
}

// Recovery turns panics into 500 responses and logs them.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithContext(c.Request.Context()).Error("panic recovered",
			observability.Any("panic", recovered),
			observability.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
