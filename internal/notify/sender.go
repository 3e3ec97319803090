// Package notify dispatches reminder notifications. Delivery mechanics
// (mail rendering, SMTP) live outside this service; senders here hand the
// event to whatever transports it.
package notify

import (
	"context"

	"go.uber.org/zap"

	"sealflow/internal/workflow"
)

// Sender delivers one reminder to one recipient. Failures are reported
// per recipient and never abort a batch.
type Sender interface {
	Send(ctx context.Context, r workflow.Recipient) error
}

// LogSender records reminders to the log. Useful for local runs and as a
// fallback when no broker is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a Sender writing to the given logger.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, r workflow.Recipient) error {
	s.logger.Info("reminder dispatched",
		zap.String("recipient_id", r.ID.String()),
		zap.String("email", r.Email),
		zap.String("role", r.Role))
	return nil
}
