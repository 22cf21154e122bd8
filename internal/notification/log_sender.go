package notification

import (
	"context"

	"github.com/civicnet/weeklymatch/internal/telemetry"
)

// LogSender renders the email and logs it instead of delivering it. Used in development.
type LogSender struct{}

func NewLogSender() *LogSender { return &LogSender{} }

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) SendMatchNotification(ctx context.Context, recipientEmail string, payload Payload) SendResult {
	email, err := Render(payload)
	if err != nil {
		return SendResult{ErrorCode: ErrorCodeInvalidPayload, Error: err}
	}

	telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation": "send_match_notification",
		"provider":  s.Name(),
		"to":        recipientEmail,
		"subject":   email.Subject,
		"match_id":  payload.Match.ID,
	}).Info("Match email (not delivered)")
	telemetry.LogFromContext(ctx).Debug(email.Text)

	return SendResult{Success: true}
}
