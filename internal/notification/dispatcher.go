package notification

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/history"
	"github.com/civicnet/weeklymatch/internal/matching"
	"github.com/civicnet/weeklymatch/internal/meeting"
	"github.com/civicnet/weeklymatch/internal/profile"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

const noRecipientMessage = "no email address for recipient"

// Dispatcher sends both notifications for a pair through one Pacer and then records the match.
// Sends are strictly sequential; a Dispatcher must not be shared by concurrent cycles.
type Dispatcher struct {
	sender     Sender
	history    history.Store
	pacer      *Pacer
	appBaseURL string
}

func NewDispatcher(sender Sender, store history.Store, pacer *Pacer, appBaseURL string) *Dispatcher {
	return &Dispatcher{
		sender:     sender,
		history:    store,
		pacer:      pacer,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
	}
}

// PairOutcome holds both results for a pair and the history write error, if any.
type PairOutcome struct {
	Results    []DispatchResult
	HistoryErr error
}

// DispatchPair notifies A about B, then B about A, then records the match once at the cycle
// time at. The history write happens whatever the send outcomes were. Calling it twice for one
// pair in a cycle sends twice.
func (d *Dispatcher) DispatchPair(ctx context.Context, pair matching.ScoredPair, details *meeting.Details, at time.Time) PairOutcome {
	ctx, span := telemetry.Tracer().Start(ctx, "notification.dispatch_pair")
	defer span.End()
	span.SetAttributes(attribute.String("match.pair", pair.Key()), attribute.Float64("match.score", pair.Score))

	outcome := PairOutcome{Results: []DispatchResult{
		d.notify(ctx, pair.A, pair.B, pair, details),
		d.notify(ctx, pair.B, pair.A, pair, details),
	}}

	if err := d.history.RecordMatch(ctx, pair.A.ID, pair.B.ID, at); err != nil {
		outcome.HistoryErr = apperrors.NewHistoryWriteError(pair.Key(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "history write failed")
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"operation": "record_match",
			"pair":      pair.Key(),
		}).WithError(err).Error("Failed to record match history; notifications already sent")
	}
	return outcome
}

// DispatchAll runs DispatchPair for every pair in order. meetings is keyed by ScoredPair.ID.
func (d *Dispatcher) DispatchAll(ctx context.Context, pairs []matching.ScoredPair, meetings map[history.Pair]*meeting.Details, at time.Time) ([]DispatchResult, []HistoryFailure) {
	results := make([]DispatchResult, 0, 2*len(pairs))
	var failures []HistoryFailure
	for _, pair := range pairs {
		outcome := d.DispatchPair(ctx, pair, meetings[pair.ID()], at)
		results = append(results, outcome.Results...)
		if outcome.HistoryErr != nil {
			failures = append(failures, HistoryFailure{Pair: pair.Key(), Error: outcome.HistoryErr.Error()})
		}
	}
	return results, failures
}

func (d *Dispatcher) notify(ctx context.Context, recipient, match *profile.Profile, pair matching.ScoredPair, details *meeting.Details) DispatchResult {
	result := DispatchResult{RecipientID: recipient.ID, MatchedUserID: match.ID}
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation":    "send_match_notification",
		"recipient_id": recipient.ID,
		"match_id":     match.ID,
		"provider":     d.sender.Name(),
	})

	email, ok := profile.ResolveEmail(recipient)
	if !ok {
		result.Error = noRecipientMessage
		result.ErrorCode = ErrorCodeNoRecipient
		logger.Warn("Skipping notification: " + noRecipientMessage)
		return result
	}
	result.RecipientEmail = email

	if err := d.pacer.Wait(ctx); err != nil {
		result.Error = apperrors.NewDispatchError(recipient.ID, "send aborted while pacing", err).Error()
		result.ErrorCode = ErrorCodeCanceled
		logger.WithError(err).Warn("Notification not sent")
		return result
	}

	sent := d.sender.SendMatchNotification(ctx, email, d.payload(recipient, match, pair, details))
	if !sent.Success {
		result.ErrorCode = sent.ErrorCode
		result.Error = apperrors.NewDispatchError(recipient.ID, "email delivery failed", sent.Error).Error()
		logger.WithError(sent.Error).WithField("error_code", sent.ErrorCode).Warn("Notification failed")
		return result
	}

	result.Success = true
	logger.WithField("message_id", sent.MessageID).Info("Notification sent")
	return result
}

func (d *Dispatcher) payload(recipient, match *profile.Profile, pair matching.ScoredPair, details *meeting.Details) Payload {
	mp := MatchProfile{
		ID:         match.ID,
		Name:       match.DisplayName(),
		Bio:        match.Bio,
		Fame:       match.Fame,
		Location:   locationLabel(match.Location),
		Causes:     match.Causes,
		Values:     match.Values,
		Skills:     match.Skills,
		Aim:        match.Aim,
		WorkStyle:  match.WorkStyle,
		HelpNeeded: match.HelpNeeded,
	}
	if d.appBaseURL != "" {
		mp.ProfileURL = d.appBaseURL + "/profile/" + match.ID
	}
	return Payload{
		RecipientName: recipient.DisplayName(),
		Match:         mp,
		Score:         pair.Score,
		Reasons:       pair.Reasons,
		Meeting:       details,
	}
}

func locationLabel(l profile.Location) string {
	switch {
	case l.City != "" && l.Country != "":
		return l.City + ", " + l.Country
	case l.City != "":
		return l.City
	case l.Text != "":
		return l.Text
	default:
		return l.Country
	}
}
