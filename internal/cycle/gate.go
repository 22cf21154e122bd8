package cycle

import (
	"fmt"
	"time"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
)

// Cadences understood by RunGate
const (
	CadenceWeekly   = "weekly"
	CadenceBiweekly = "biweekly"
)

// RunGate decides whether a scheduled trigger at now should run a cycle. Weekly always
// runs; biweekly runs on even ISO weeks. The reason is set when the run is skipped.
func RunGate(cadence string, now time.Time) (run bool, reason string, err error) {
	switch cadence {
	case CadenceWeekly:
		return true, "", nil
	case CadenceBiweekly:
		_, week := now.ISOWeek()
		if week%2 == 0 {
			return true, "", nil
		}
		return false, fmt.Sprintf("biweekly cadence: ISO week %d is an off week", week), nil
	default:
		return false, "", apperrors.NewConfigurationError("MATCH_CADENCE", "unknown cadence: "+cadence)
	}
}
