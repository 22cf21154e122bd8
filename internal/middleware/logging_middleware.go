package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicnet/weeklymatch/internal/telemetry"
)

// CorrelationHeader carries the request correlation ID in and out
const CorrelationHeader = "X-Correlation-ID"

// LoggingConfig holds the configuration for logging middleware
type LoggingConfig struct {
	SkipPaths     []string
	LogHeaders    bool
	SlowThreshold time.Duration
}

// DefaultLoggingConfig returns the default logging middleware configuration
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SkipPaths:     []string{"/health", "/metrics"},
		LogHeaders:    false,
		SlowThreshold: 30 * time.Second,
	}
}

var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"X-Api-Key":     true,
}

// LoggingMiddleware tags each request with a correlation ID and logs its completion
func LoggingMiddleware(config *LoggingConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationHeader)
		if correlationID == "" {
			correlationID = telemetry.NewCorrelationID()
		}
		c.Header(CorrelationHeader, correlationID)
		c.Request = c.Request.WithContext(telemetry.WithCorrelationID(c.Request.Context(), correlationID))

		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"query":       c.Request.URL.RawQuery,
			"remote_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
			"status":      c.Writer.Status(),
			"duration_ms": float64(duration.Nanoseconds()) / 1e6,
			"size":        c.Writer.Size(),
		}
		if config.LogHeaders {
			headers := make(map[string]string, len(c.Request.Header))
			for name, values := range c.Request.Header {
				switch {
				case redactedHeaders[name]:
					headers[name] = "[REDACTED]"
				case len(values) > 0:
					headers[name] = values[0]
				}
			}
			fields["headers"] = headers
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.Errors()
		}

		logger := telemetry.LogFromContext(c.Request.Context()).WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("HTTP request completed with server error")
		case status >= 400:
			logger.Warn("HTTP request completed with client error")
		case duration > config.SlowThreshold:
			logger.Warn("HTTP request completed (slow)")
		default:
			logger.Info("HTTP request completed")
		}
	}
}
