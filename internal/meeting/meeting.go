// Package meeting provisions a calendar event with a video link for a matched pair.
package meeting

import (
	"context"
	"fmt"
	"time"

	"github.com/civicnet/weeklymatch/internal/profile"
)

// Details describes a provisioned meeting. Created once per pair and never changed afterwards.
type Details struct {
	EventID     string    `json:"eventId"`
	VideoURL    string    `json:"videoUrl,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	TimeZone    string    `json:"timeZone"`
	CalendarURL string    `json:"calendarUrl,omitempty"`
	ICSURL      string    `json:"icsUrl,omitempty"`
}

// Provisioner creates one meeting for two members. Callers treat any error as "no meeting".
type Provisioner interface {
	CreateMeeting(ctx context.Context, a, b *profile.Profile) (*Details, error)
}

// Schedule decides when a meeting is booked.
type Schedule struct {
	TimeZone  string
	StartHour int
	Duration  time.Duration
	LeadDays  int
}

// NextStart returns the first weekday at or after now+LeadDays, at StartHour local time.
func (s Schedule) NextStart(now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid meeting timezone %q: %w", s.TimeZone, err)
	}
	if s.StartHour < 0 || s.StartHour > 23 {
		return time.Time{}, fmt.Errorf("invalid meeting start hour %d", s.StartHour)
	}

	earliest := now.In(loc).AddDate(0, 0, s.LeadDays)
	start := time.Date(earliest.Year(), earliest.Month(), earliest.Day(), s.StartHour, 0, 0, 0, loc)
	if start.Before(earliest) {
		start = start.AddDate(0, 0, 1)
	}
	for start.Weekday() == time.Saturday || start.Weekday() == time.Sunday {
		start = start.AddDate(0, 0, 1)
	}
	return start, nil
}

func (s Schedule) duration() time.Duration {
	if s.Duration <= 0 {
		return 30 * time.Minute
	}
	return s.Duration
}

// Title is the event title shown to both members.
func Title(a, b *profile.Profile) string {
	return fmt.Sprintf("Civic Match: %s & %s", a.DisplayName(), b.DisplayName())
}
