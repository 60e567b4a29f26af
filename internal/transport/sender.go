// Package transport delivers router effects over the messaging channel.
package transport

import (
	"context"
	"errors"
	"log/slog"
)

// ErrSendFailed is returned when the channel rejects an outbound message.
var ErrSendFailed = errors.New("send failed")

// Sender delivers a text message to a channel identity.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// LogSender writes outbound messages to the log instead of a channel.
// Used for local development with TRANSPORT_MODE=log.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "log_sender")}
}

// Send logs the message and always succeeds.
func (s *LogSender) Send(ctx context.Context, to, body string) error {
	s.logger.InfoContext(ctx, "outbound message", "to", to, "body", body)
	return nil
}
