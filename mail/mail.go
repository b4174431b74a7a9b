// Package mail defines the outbound delivery collaborator. Delivery is
// fire-and-forget from the protocol's perspective: a failed send surfaces
// as a warning on the response, never as a failed challenge.
package mail

import (
	"context"
	"log/slog"
)

// Sender delivers a one-time login code to an address.
type Sender interface {
	Send(ctx context.Context, to, code string) error
}

// LogSender logs deliveries instead of sending them. Local development
// only; it deliberately logs the code, so it must never be wired in
// production.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, code string) error {
	s.logger.InfoContext(ctx, "login code (dev delivery)", "to", to, "code", code)
	return nil
}

// NoOpSender drops deliveries. Test use.
type NoOpSender struct{}

func (NoOpSender) Send(context.Context, string, string) error { return nil }
