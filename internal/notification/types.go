// Package notification delivers match emails to both members of each pair.
package notification

import (
	"context"

	"github.com/civicnet/weeklymatch/internal/meeting"
	"github.com/civicnet/weeklymatch/internal/profile"
)

// ErrorCode categorizes delivery failures in results and metrics.
type ErrorCode string

const (
	ErrorCodeNoRecipient    ErrorCode = "NO_RECIPIENT"
	ErrorCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrorCodeNetworkError   ErrorCode = "NETWORK_ERROR"
	ErrorCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"
	ErrorCodeServiceDown    ErrorCode = "SERVICE_DOWN"
	ErrorCodeCanceled       ErrorCode = "CANCELED"
	ErrorCodeUnknown        ErrorCode = "UNKNOWN"
)

// SendResult is the outcome of one provider call.
type SendResult struct {
	Success    bool
	ErrorCode  ErrorCode
	Error      error
	MessageID  string
	StatusCode int
}

// Sender is an email delivery implementation.
type Sender interface {
	SendMatchNotification(ctx context.Context, recipientEmail string, payload Payload) SendResult
	// Name identifies the provider in logs.
	Name() string
}

// Payload is everything a match email shows one recipient about their match.
type Payload struct {
	RecipientName string
	Match         MatchProfile
	Score         float64
	Reasons       []string
	Meeting       *meeting.Details
}

// MatchProfile is the public slice of the other member's profile.
type MatchProfile struct {
	ID         string
	Name       string
	Bio        string
	Fame       string
	Location   string
	Causes     []string
	Values     []string
	Skills     []string
	Aim        []profile.Aim
	WorkStyle  string
	HelpNeeded string
	ProfileURL string
}

// DispatchResult records one notification attempt.
type DispatchResult struct {
	RecipientID    string    `json:"recipientId"`
	MatchedUserID  string    `json:"matchedUserId"`
	RecipientEmail string    `json:"recipientEmail,omitempty"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	ErrorCode      ErrorCode `json:"errorCode,omitempty"`
}

// HistoryFailure is a pair whose match could not be recorded. Its notifications stand.
type HistoryFailure struct {
	Pair  string `json:"pair"`
	Error string `json:"error"`
}
