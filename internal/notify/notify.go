// Package notify delivers alert notifications.
package notify

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/logger"
)

var ErrNoRecipient = errors.New("notify: recipient address is empty")

// Sender delivers one plain-text message to one address.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender writes messages to the log instead of sending them. It is the
// default driver for local runs.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}
	logger.Info("[notify] message",
		zap.String("to", redact(to)),
		zap.String("subject", subject),
		zap.Int("lines", strings.Count(body, "\n")+1),
	)
	logger.Debug("[notify] body", zap.String("body", body))
	return nil
}

// redact keeps the first character of the local part and the domain.
func redact(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
