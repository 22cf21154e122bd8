package notification

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
)

// SendGridConfig configures the SendGrid sender.
type SendGridConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	// Host overrides the API host, mainly for tests. Empty means https://api.sendgrid.com.
	Host string
}

// SendGridSender delivers match emails through the SendGrid v3 mail API.
type SendGridSender struct {
	apiKey string
	from   *mail.Email
	host   string
}

func NewSendGridSender(cfg SendGridConfig) *SendGridSender {
	return &SendGridSender{
		apiKey: cfg.APIKey,
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
		host:   cfg.Host,
	}
}

func (s *SendGridSender) Name() string { return "sendgrid" }

// SendMatchNotification renders the payload and posts it to /v3/mail/send.
func (s *SendGridSender) SendMatchNotification(ctx context.Context, recipientEmail string, payload Payload) SendResult {
	email, err := Render(payload)
	if err != nil {
		return SendResult{ErrorCode: ErrorCodeInvalidPayload, Error: err}
	}

	message := mail.NewSingleEmail(s.from, email.Subject,
		mail.NewEmail(payload.RecipientName, recipientEmail), email.Text, email.HTML)
	message.AddCategories("weekly-match")

	request := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	request.Method = rest.Post
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return SendResult{ErrorCode: categorizeNetworkError(err), Error: apperrors.NewExternalError("sendgrid", "mail.send", err)}
	}

	if response.StatusCode >= 400 {
		return SendResult{
			StatusCode: response.StatusCode,
			ErrorCode:  categorizeStatus(response.StatusCode),
			Error: apperrors.NewExternalError("sendgrid", "mail.send",
				fmt.Errorf("status %d: %s", response.StatusCode, truncate(response.Body, 200))),
		}
	}

	var messageID string
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	return SendResult{Success: true, StatusCode: response.StatusCode, MessageID: messageID}
}

func categorizeStatus(status int) ErrorCode {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorCodeRateLimited
	case status >= 500:
		return ErrorCodeServiceDown
	default:
		return ErrorCodeInvalidPayload
	}
}

func categorizeNetworkError(err error) ErrorCode {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorCodeNetworkError
	}
	return ErrorCodeUnknown
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
