// Package notify delivers post-commit reward notifications. Delivery is best
// effort; failures are logged and swallowed so they can never make a
// committed ledger write look failed.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devarena-lab/project-devarena/internal/core/reward"
)

// Message describes one reward notification.
type Message struct {
	RecipientID   string
	RecipientRole string
	DeveloperID   string
	RepositoryID  string
	Tier          reward.Tier
	Value         decimal.Decimal
	PartnerNote   string // empty when no partner reward was attached
}

// Sender delivers a single notification message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Trigger fans reward notifications out to a sender with a bounded timeout.
type Trigger struct {
	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
}

func NewTrigger(sender Sender, timeout time.Duration, logger *slog.Logger) *Trigger {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Trigger{
		sender:  sender,
		timeout: timeout,
		logger:  logger.With("component", "[NotificationTrigger]"),
	}
}

// Notify sends every message, logging and swallowing per-message failures.
// It returns the number of messages that failed, for metrics.
func (t *Trigger) Notify(ctx context.Context, msgs []Message) int {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	failed := 0
	for _, msg := range msgs {
		if err := t.sender.Send(ctx, msg); err != nil {
			failed++
			t.logger.Error("notification delivery failed",
				"recipient_id", msg.RecipientID,
				"recipient_role", msg.RecipientRole,
				"developer_id", msg.DeveloperID,
				"error", err)
		}
	}
	return failed
}

// LogSender writes notifications to the structured log. It stands in for a
// real delivery channel in development and tests.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "[LogSender]")}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("reward notification",
		"recipient_id", msg.RecipientID,
		"recipient_role", msg.RecipientRole,
		"developer_id", msg.DeveloperID,
		"repository_id", msg.RepositoryID,
		"tier", string(msg.Tier),
		"value", msg.Value.String(),
		"partner_note", msg.PartnerNote)
	return nil
}
