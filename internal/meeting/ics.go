package meeting

import (
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	ics "github.com/arran4/golang-ical"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
)

// ICSPath is where the HTTP server serves calendar files.
const ICSPath = "/api/meetings/ics"

// ICSEvent is what a downloadable calendar file needs; it round trips through ICSURL query params.
type ICSEvent struct {
	UID      string
	Title    string
	Start    time.Time
	Duration time.Duration
	VideoURL string
}

// ICSURL builds the download link for an event under baseURL.
func ICSURL(baseURL string, ev ICSEvent) string {
	q := url.Values{}
	q.Set("uid", ev.UID)
	q.Set("title", ev.Title)
	q.Set("start", ev.Start.UTC().Format(time.RFC3339))
	q.Set("minutes", strconv.Itoa(int(ev.Duration/time.Minute)))
	if ev.VideoURL != "" {
		q.Set("video", ev.VideoURL)
	}
	return strings.TrimRight(baseURL, "/") + ICSPath + "?" + q.Encode()
}

// ParseICSQuery reads an ICSEvent back from ICSURL parameters.
func ParseICSQuery(q url.Values) (ICSEvent, error) {
	ev := ICSEvent{
		UID:      q.Get("uid"),
		Title:    q.Get("title"),
		VideoURL: q.Get("video"),
	}
	if ev.UID == "" || ev.Title == "" {
		return ICSEvent{}, apperrors.NewValidationError("uid", "uid and title are required")
	}
	if hasControl(ev.UID) || hasControl(ev.Title) || hasControl(ev.VideoURL) {
		return ICSEvent{}, apperrors.NewValidationError("title", "uid, title and video must not contain control characters")
	}
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		return ICSEvent{}, apperrors.NewValidationError("start", "start must be an RFC 3339 timestamp")
	}
	ev.Start = start
	minutes, err := strconv.Atoi(q.Get("minutes"))
	if err != nil || minutes <= 0 || minutes > 24*60 {
		return ICSEvent{}, apperrors.NewValidationError("minutes", "minutes must be between 1 and 1440")
	}
	ev.Duration = time.Duration(minutes) * time.Minute
	if ev.VideoURL != "" {
		if u, err := url.Parse(ev.VideoURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") {
			return ICSEvent{}, apperrors.NewValidationError("video", "video must be an http(s) URL")
		}
	}
	return ev, nil
}

// RenderICS writes a single-event VCALENDAR (RFC 5545).
func RenderICS(ev ICSEvent, stamp time.Time) []byte {
	cal := ics.NewCalendar()
	cal.SetProductId("-//civicnet//weeklymatch//EN")
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)

	event := cal.AddEvent(singleLine(ev.UID))
	event.SetDtStampTime(stamp.UTC())
	event.SetStartAt(ev.Start.UTC())
	event.SetEndAt(ev.Start.Add(ev.Duration).UTC())
	event.SetSummary(singleLine(ev.Title))
	if ev.VideoURL != "" {
		event.SetLocation(singleLine(ev.VideoURL))
		event.SetURL(singleLine(ev.VideoURL))
		event.SetDescription("Join the video call: " + singleLine(ev.VideoURL))
	}
	return []byte(cal.Serialize())
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// singleLine folds line breaks to spaces and drops other control characters, so no value can
// start a content line of its own.
func singleLine(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, lineBreaks.Replace(s))
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}
