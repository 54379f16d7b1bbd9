// Package delivery dispatches one-time codes over out-of-band channels.
//
// The auth core treats delivery as fire-and-forget: the challenge is already
// persisted when Send runs, so a delivery failure is logged and counted but
// does not fail the request (the user can ask for a resend).
package delivery

import (
	"context"
	"log/slog"

	"keyline/internal/auth/models"
)

// Sender dispatches a code to an identifier over a channel. Implementations
// wrap email/SMS/WhatsApp providers; the core never sees provider details.
type Sender interface {
	Send(ctx context.Context, channel models.Channel, identifier, code string, purpose models.Purpose) error
}

// LogSender is a development Sender that logs instead of delivering. It
// never logs the code itself.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, channel models.Channel, identifier, code string, purpose models.Purpose) error {
	s.logger.InfoContext(ctx, "otp dispatch (dev sender, not delivered)",
		"channel", string(channel),
		"identifier", identifier,
		"purpose", string(purpose),
		"code_length", len(code),
	)
	return nil
}
