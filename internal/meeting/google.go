package meeting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/history"
	"github.com/civicnet/weeklymatch/internal/profile"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

// GoogleConfig configures the Google Calendar provisioner.
type GoogleConfig struct {
	CredentialsJSON string
	CredentialsFile string
	CalendarID      string
	AppBaseURL      string
	Schedule        Schedule
}

// GoogleCalendarProvisioner books a Google Calendar event with a Meet link for each pair.
type GoogleCalendarProvisioner struct {
	svc        *calendar.Service
	calendarID string
	baseURL    string
	schedule   Schedule
	now        func() time.Time
}

// NewGoogleCalendarProvisioner builds the Calendar client. Extra options are appended after the
// credentials, so tests can point the client at a local server.
func NewGoogleCalendarProvisioner(ctx context.Context, cfg GoogleConfig, opts ...option.ClientOption) (*GoogleCalendarProvisioner, error) {
	if _, err := cfg.Schedule.NextStart(time.Now()); err != nil {
		return nil, apperrors.NewConfigurationError("MEETING_TIMEZONE", err.Error())
	}

	clientOpts := []option.ClientOption{option.WithScopes(calendar.CalendarEventsScope)}
	switch {
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, apperrors.NewConfigurationError("GOOGLE_CALENDAR_CREDENTIALS_JSON",
			fmt.Sprintf("failed to create calendar client: %v", err))
	}

	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleCalendarProvisioner{
		svc:        svc,
		calendarID: calendarID,
		baseURL:    cfg.AppBaseURL,
		schedule:   cfg.Schedule,
		now:        time.Now,
	}, nil
}

// CreateMeeting inserts one event with both members as attendees and a hangoutsMeet conference.
func (p *GoogleCalendarProvisioner) CreateMeeting(ctx context.Context, a, b *profile.Profile) (*Details, error) {
	pairKey := history.PairKey(a.ID, b.ID)
	ctx, span := telemetry.Tracer().Start(ctx, "meeting.create")
	defer span.End()
	span.SetAttributes(attribute.String("match.pair", pairKey))

	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation": "create_meeting",
		"pair":      pairKey,
	})

	start, err := p.schedule.NextStart(p.now())
	if err != nil {
		return nil, p.fail(span, pairKey, err)
	}
	end := start.Add(p.schedule.duration())

	var attendees []*calendar.EventAttendee
	for _, member := range []*profile.Profile{a, b} {
		if email, ok := profile.ResolveEmail(member); ok {
			attendees = append(attendees, &calendar.EventAttendee{Email: email, DisplayName: member.DisplayName()})
		}
	}

	title := Title(a, b)
	event := &calendar.Event{
		Summary:     title,
		Description: "You were matched this cycle. Use this slot to meet and compare notes.",
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: p.schedule.TimeZone},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: p.schedule.TimeZone},
		Attendees:   attendees,
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}

	created, err := p.svc.Events.Insert(p.calendarID, event).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		logger.WithError(err).Warn("Calendar event creation failed")
		return nil, p.fail(span, pairKey, apperrors.NewExternalError("google_calendar", "events.insert", err))
	}

	details := &Details{
		EventID:     created.Id,
		VideoURL:    videoURL(created),
		StartTime:   start,
		EndTime:     end,
		TimeZone:    p.schedule.TimeZone,
		CalendarURL: created.HtmlLink,
	}
	if p.baseURL != "" {
		details.ICSURL = ICSURL(p.baseURL, ICSEvent{
			UID:      created.Id,
			Title:    title,
			Start:    start,
			Duration: end.Sub(start),
			VideoURL: details.VideoURL,
		})
	}

	logger.WithFields(map[string]interface{}{
		"event_id":  details.EventID,
		"has_video": details.VideoURL != "",
	}).Info("Meeting created")
	return details, nil
}

func (p *GoogleCalendarProvisioner) fail(span trace.Span, pairKey string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "meeting provisioning failed")
	return apperrors.NewProvisioningError(pairKey, err)
}

func videoURL(ev *calendar.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData == nil {
		return ""
	}
	for _, ep := range ev.ConferenceData.EntryPoints {
		if strings.EqualFold(ep.EntryPointType, "video") && ep.Uri != "" {
			return ep.Uri
		}
	}
	return ""
}
