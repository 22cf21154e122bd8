package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_Values(t *testing.T) {
	tests := []struct {
		name      string
		errorType ErrorType
		expected  string
	}{
		{"Configuration error", ErrorTypeConfiguration, "configuration"},
		{"Selection error", ErrorTypeSelection, "selection"},
		{"Provisioning error", ErrorTypeProvisioning, "provisioning"},
		{"Dispatch error", ErrorTypeDispatch, "dispatch"},
		{"History write error", ErrorTypeHistoryWrite, "history_write"},
		{"Database error", ErrorTypeDatabase, "database"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.errorType))
		})
	}
}

func TestNewAppErrorWithCause(t *testing.T) {
	originalErr := errors.New("connection timeout")

	appErr := NewAppErrorWithCause(ErrorTypeInternal, "DB_ERROR", "Database connection failed", originalErr)

	assert.Equal(t, ErrorTypeInternal, appErr.Type)
	assert.Equal(t, originalErr, appErr.Cause)
	assert.Equal(t, originalErr.Error(), appErr.Details)
	assert.WithinDuration(t, time.Now(), appErr.Timestamp, time.Second)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
	assert.ErrorIs(t, appErr, originalErr)
}

func TestAppError_Error(t *testing.T) {
	appErr := NewConfigurationError("SENDGRID_API_KEY", "SendGrid API key is required")
	assert.Equal(t, "CONFIGURATION_ERROR: SendGrid API key is required", appErr.Error())

	appErr.WithDetails("provider=sendgrid")
	assert.Equal(t, "CONFIGURATION_ERROR: SendGrid API key is required - provider=sendgrid", appErr.Error())
}

func TestFatality(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name  string
		err   *AppError
		fatal bool
		http  int
	}{
		{"configuration", NewConfigurationError("DATABASE_URL", "missing"), true, http.StatusInternalServerError},
		{"selection", NewSelectionError("list_profiles", cause), true, http.StatusInternalServerError},
		{"provisioning", NewProvisioningError("a:b", cause), false, http.StatusOK},
		{"dispatch", NewDispatchError("user-1", "send failed", cause), false, http.StatusOK},
		{"history write", NewHistoryWriteError("a:b", cause), false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, tt.err.IsFatal())
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
			assert.Equal(t, tt.http, tt.err.HTTPStatus)
		})
	}
}

func TestIsErrorType_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("running cycle: %w", NewSelectionError("list_profiles", errors.New("db down")))

	assert.True(t, IsErrorType(wrapped, ErrorTypeSelection))
	assert.False(t, IsErrorType(wrapped, ErrorTypeConfiguration))
	assert.True(t, IsFatal(wrapped))

	errType, ok := GetErrorType(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeSelection, errType)

	_, ok = GetErrorType(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestAppError_Metadata(t *testing.T) {
	appErr := NewHistoryWriteError("u1:u2", errors.New("unique violation")).
		WithCorrelationID("corr-1")

	assert.Equal(t, "u1:u2", appErr.Metadata["pair"])
	assert.Equal(t, "corr-1", appErr.CorrelationID)

	data, err := appErr.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"history_write"`)
	assert.NotContains(t, string(data), "Cause")
}
