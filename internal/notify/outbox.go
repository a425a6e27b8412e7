package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/restock-monitor/internal/database"
)

// Transactor runs fn inside a database transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// OutboxWriter persists one outbox event inside a transaction.
type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// AlertPayload is the JSON body stored for every outbox alert.
type AlertPayload struct {
	AlertID   string    `json:"alert_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboxSink stores alerts in the transactional outbox. Delivery to the
// stream happens later through database.Relay, so an alert survives a Redis
// outage as long as PostgreSQL accepted it.
type OutboxSink struct {
	db     Transactor
	outbox OutboxWriter
	stream string
}

func NewOutboxSink(db *database.DB, stream string) *OutboxSink {
	return &OutboxSink{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		stream: stream,
	}
}

func (o *OutboxSink) Name() string { return "outbox" }

func (o *OutboxSink) Send(ctx context.Context, message string) (Receipt, error) {
	payload := AlertPayload{
		AlertID:   uuid.New().String(),
		Message:   message,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to marshal alert: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateID:  payload.AlertID,
		EventType:    database.EventTypeStockAlert,
		Payload:      data,
		TargetStream: o.stream,
	}

	err = o.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := o.outbox.InsertWithTx(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to publish alert: %w", err)
	}

	return Receipt{OK: true, ID: event.ID.String()}, nil
}
