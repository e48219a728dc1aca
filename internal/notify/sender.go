// Package notify delivers outbound notifications off the request path.
package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Message is a single HTML notification addressed to one recipient.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers a rendered notification. Implementations may block; callers on the
// request path go through a Dispatcher instead.
type Sender interface {
	SendHTML(ctx context.Context, to, subject, body string) error
}

// LogSender writes notifications to the log instead of delivering them. With
// revealBody set the body is logged too, which is only acceptable in development.
type LogSender struct {
	log        *zap.Logger
	revealBody bool
}

// NewLogSender creates a LogSender.
func NewLogSender(log *zap.Logger, revealBody bool) *LogSender {
	return &LogSender{log: log, revealBody: revealBody}
}

func (s *LogSender) SendHTML(_ context.Context, to, subject, body string) error {
	fields := []zap.Field{zap.String("to", MaskEmail(to)), zap.String("subject", subject)}
	if s.revealBody {
		fields = append(fields, zap.String("body", body))
	}
	s.log.Info("notification", fields...)
	return nil
}

// MaskEmail keeps the first character of the local part, e.g. "a***@x.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
