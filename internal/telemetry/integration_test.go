package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeOpenTelemetry_Disabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := InitializeOpenTelemetry(ctx, &Config{ServiceName: "weeklymatch", Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()

	assert.NotNil(t, Tracer())
}

func TestLogFromContext_CarriesIdentifiers(t *testing.T) {
	logger, err := NewLogger(&LogConfig{Level: DebugLevel, Format: "json", Output: "stdout"})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)

	ctx := WithCorrelationID(context.Background(), "corr-123")
	ctx = WithCycleID(ctx, "cycle-9")

	logger.WithContext(ctx).WithField("operation", "test").Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "corr-123", line["correlation_id"])
	assert.Equal(t, "cycle-9", line["cycle_id"])
	assert.Equal(t, "test", line["operation"])
	assert.Equal(t, "hello", line["message"])
}

func TestWithCorrelationID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	assert.NotEmpty(t, GetCorrelationID(ctx))
	assert.Empty(t, GetCycleID(ctx))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   LogLevel
		want string
	}{
		{DebugLevel, "debug"},
		{InfoLevel, "info"},
		{WarnLevel, "warning"},
		{ErrorLevel, "error"},
		{"bogus", "info"},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in).String())
		})
	}
}
