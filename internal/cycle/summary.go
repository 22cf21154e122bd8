package cycle

import (
	"time"

	"github.com/civicnet/weeklymatch/internal/matching"
	"github.com/civicnet/weeklymatch/internal/monitoring"
	"github.com/civicnet/weeklymatch/internal/notification"
)

// State is the orchestrator's position in a cycle
type State string

const (
	StateIdle        State = "idle"
	StateGated       State = "gated"
	StateSelecting   State = "selecting"
	StateAssembling  State = "assembling"
	StateDispatching State = "dispatching"
	StateSummarizing State = "summarizing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Meeting statuses reported per pair
const (
	MeetingCreated     = "created"
	MeetingFailed      = "failed"
	MeetingUnavailable = "unavailable"
)

// MeetingStatus reports what happened when provisioning a meeting for one pair
type MeetingStatus struct {
	Pair     string `json:"pair"`
	Status   string `json:"status"`
	EventID  string `json:"eventId,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	ICSURL   string `json:"icsUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PairPreview describes an assembled pair without dispatching it
type PairPreview struct {
	UserA   string   `json:"userA"`
	UserB   string   `json:"userB"`
	NameA   string   `json:"nameA"`
	NameB   string   `json:"nameB"`
	Score   float64  `json:"matchScore"`
	Reasons []string `json:"matchReasons"`
}

func previewOf(p matching.ScoredPair) PairPreview {
	return PairPreview{
		UserA:   p.A.ID,
		UserB:   p.B.ID,
		NameA:   p.A.DisplayName(),
		NameB:   p.B.DisplayName(),
		Score:   p.Score,
		Reasons: p.Reasons,
	}
}

// Summary is the outcome of one cycle. Success is false only for configuration and
// selection failures; per-pair failures show up in Failed, Meetings and HistoryFailures.
type Summary struct {
	Success         bool                          `json:"success"`
	Sent            int                           `json:"sent"`
	Failed          int                           `json:"failed"`
	TotalMatches    int                           `json:"totalMatches"`
	Skipped         bool                          `json:"skipped,omitempty"`
	Results         []notification.DispatchResult `json:"results"`
	State           State                         `json:"state"`
	Reason          string                        `json:"reason,omitempty"`
	Error           string                        `json:"error,omitempty"`
	Meetings        []MeetingStatus               `json:"meetings,omitempty"`
	HistoryFailures []notification.HistoryFailure `json:"historyFailures,omitempty"`
	Pairs           []PairPreview                 `json:"pairs,omitempty"`
	CycleID         string                        `json:"cycleId"`
	StartedAt       time.Time                     `json:"startedAt"`
	FinishedAt      time.Time                     `json:"finishedAt"`
	DryRun          bool                          `json:"dryRun,omitempty"`
}

func (s *Summary) outcome() string {
	switch {
	case !s.Success:
		return monitoring.OutcomeFailed
	case s.Skipped:
		return monitoring.OutcomeSkipped
	default:
		return monitoring.OutcomeSuccess
	}
}
