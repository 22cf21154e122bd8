package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

// CronAuth rejects requests whose Authorization header is not "Bearer <secret>".
// An empty secret leaves the route open, which is only acceptable in development.
func CronAuth(secret string) gin.HandlerFunc {
	expected := []byte("Bearer " + secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		got := []byte(strings.TrimSpace(c.GetHeader("Authorization")))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			telemetry.LogFromContext(c.Request.Context()).WithFields(map[string]interface{}{
				"operation": "cron_auth",
				"path":      c.Request.URL.Path,
				"remote_ip": c.ClientIP(),
			}).Warn("Rejected unauthorized cron trigger")
			RespondError(c, apperrors.NewAuthorizationError("invalid or missing cron secret"))
			c.Abort()
			return
		}
		c.Next()
	}
}
