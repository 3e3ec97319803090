package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"sealflow/internal/workflow"
)

const (
	reminderStream   = "REMINDERS"
	reminderSubjects = "reminders.>"
)

// reminderEvent is the payload published per reminder. The mail worker
// consuming the stream owns rendering and delivery.
type reminderEvent struct {
	RecipientID string    `json:"recipient_id"`
	EnvelopeID  string    `json:"envelope_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	SentAt      time.Time `json:"sent_at"`
}

// NATSSender publishes reminder events to a JetStream stream.
type NATSSender struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

// NewNATSSender connects to NATS, ensures the reminder stream exists, and
// returns a Sender publishing to it.
func NewNATSSender(ctx context.Context, url string, logger *zap.Logger) (*NATSSender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(
		url,
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream instance: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     reminderStream,
		Subjects: []string{reminderSubjects},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure reminder stream: %w", err)
	}

	return &NATSSender{nc: nc, js: js, logger: logger}, nil
}

func (s *NATSSender) Send(ctx context.Context, r workflow.Recipient) error {
	event := reminderEvent{
		RecipientID: r.ID.String(),
		EnvelopeID:  r.EnvelopeID.String(),
		Email:       r.Email,
		Name:        r.Name,
		Role:        r.Role,
		SentAt:      time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal reminder event: %w", err)
	}

	subject := fmt.Sprintf("reminders.recipient.%s", r.ID)
	if _, err := s.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish reminder for recipient %s: %w", r.ID, err)
	}
	return nil
}

// Close drains the underlying connection.
func (s *NATSSender) Close() {
	s.nc.Close()
}
