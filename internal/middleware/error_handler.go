package middleware

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error         string                 `json:"error"`
	Code          string                 `json:"code"`
	Type          errors.ErrorType       `json:"type"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// RespondError converts err to an AppError, logs it at a level matching its type and
// writes it as JSON. Internal causes are logged but never sent to the client.
func RespondError(c *gin.Context, err error) {
	correlationID := telemetry.GetCorrelationID(c.Request.Context())

	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.NewInternalError("An unexpected error occurred", err)
	}

	logger := telemetry.LogFromContext(c.Request.Context()).WithFields(map[string]interface{}{
		"operation":  "http_error",
		"error_type": string(appErr.Type),
		"error_code": appErr.Code,
		"path":       c.Request.URL.Path,
	})
	if appErr.Cause != nil {
		logger = logger.WithField("cause", appErr.Cause.Error())
	}
	switch appErr.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeAuthorization:
		logger.Warn(appErr.Message)
	case errors.ErrorTypeNotFound:
		logger.Info(appErr.Message)
	default:
		logger.Error(appErr.Message)
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	resp := ErrorResponse{
		Error:         appErr.Message,
		Code:          appErr.Code,
		Type:          appErr.Type,
		CorrelationID: correlationID,
	}
	if appErr.Type == errors.ErrorTypeValidation || appErr.Type == errors.ErrorTypeConfiguration {
		resp.Metadata = appErr.Metadata
	}
	c.JSON(status, resp)
}

// Recovery turns a handler panic into a 500 with the request's correlation ID
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				telemetry.LogFromContext(c.Request.Context()).WithFields(map[string]interface{}{
					"operation":   "http_panic",
					"panic_value": fmt.Sprintf("%v", r),
					"stack_trace": string(debug.Stack()),
				}).Error("Panic recovered in HTTP handler")
				RespondError(c, errors.NewInternalError(fmt.Sprintf("panic in handler: %v", r), nil))
				c.Abort()
			}
		}()
		c.Next()
	}
}
