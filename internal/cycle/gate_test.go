package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
)

func TestRunGate(t *testing.T) {
	tests := []struct {
		name    string
		cadence string
		now     time.Time
		run     bool
	}{
		{"weekly on odd week", CadenceWeekly, oddWeek, true},
		{"weekly on even week", CadenceWeekly, evenWeek, true},
		{"biweekly on even week", CadenceBiweekly, evenWeek, true},
		{"biweekly on odd week", CadenceBiweekly, oddWeek, false},
		{"biweekly on sunday closing even week", CadenceBiweekly, time.Date(2024, 6, 16, 23, 0, 0, 0, time.UTC), true},
		{"iso week 1 of 2025 starts in 2024", CadenceBiweekly, time.Date(2024, 12, 30, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, reason, err := RunGate(tt.cadence, tt.now)
			assert.NoError(t, err)
			assert.Equal(t, tt.run, run)
			assert.Equal(t, tt.run, reason == "")
		})
	}

	_, _, err := RunGate("monthly", evenWeek)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfiguration))
}
