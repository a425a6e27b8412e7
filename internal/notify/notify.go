// Package notify turns check outcomes into alert messages and delivers them
// through a single alerting sink.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Receipt is the sink's verdict on one delivery.
type Receipt struct {
	StatusCode int
	OK         bool
	ID         string
}

// Sink is an outbound alert channel accepting a plain text message.
type Sink interface {
	Name() string
	Send(ctx context.Context, message string) (Receipt, error)
}

// Notifier makes exactly one delivery attempt per message and never fails
// the caller: errors and rejected deliveries are only logged.
type Notifier struct {
	sink   Sink
	logger *slog.Logger
}

func NewNotifier(sink Sink, logger *slog.Logger) *Notifier {
	return &Notifier{
		sink:   sink,
		logger: logger.With("component", "notifier", "sink", sink.Name()),
	}
}

// Notify reports whether the sink accepted the message.
func (n *Notifier) Notify(ctx context.Context, message string) (delivered bool) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("panic while sending notification", "error", fmt.Sprint(r))
			delivered = false
		}
	}()

	receipt, err := n.sink.Send(ctx, message)
	if err != nil {
		n.logger.Error("exception occurred while sending notification", "error", err)
		return false
	}

	if !receipt.OK {
		n.logger.Error("failed to send notification", "status_code", receipt.StatusCode)
		return false
	}

	n.logger.Info("notification sent", "message", message, "delivery_id", receipt.ID)
	return true
}
