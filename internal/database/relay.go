package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the stream write the relay needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// OutboxRepo is the slice of OutboxRepository used by the relay.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

// Relay moves committed alerts from alert_outbox onto their Redis stream.
// Entries carry the same alert_id/message/timestamp fields the redis sink
// writes, so a stream consumer cannot tell the two producers apart.
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func NewRelay(db *DB, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	return &Relay{
		redis:     redisClient,
		outbox:    NewOutboxRepository(db),
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start relays one batch right away and then one per tick until ctx is
// cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.relayBatch(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("outbox poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain relays due alerts batch by batch until a batch comes back short.
// It is meant to run once after Start has returned, so alerts committed
// just before shutdown still reach the stream.
func (r *Relay) Drain(ctx context.Context) error {
	for {
		n, err := r.relayBatch(ctx)
		if err != nil {
			return err
		}
		if n < r.batchSize {
			return nil
		}
	}
}

// relayBatch returns how many alerts were read, including ones that failed.
func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	events, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	for _, event := range events {
		if err := r.deliver(ctx, event); err != nil {
			r.logger.Error("alert not relayed", "event_id", event.ID, "retry_count", event.RetryCount, "error", err)
		}
	}

	return len(events), nil
}

func (r *Relay) deliver(ctx context.Context, event *OutboxEvent) error {
	values, err := streamValues(event)
	if err == nil {
		_, err = r.redis.XAdd(ctx, &redis.XAddArgs{Stream: event.TargetStream, Values: values}).Result()
		if err != nil {
			err = fmt.Errorf("failed to publish to redis: %w", err)
		}
	}

	if err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to record relay failure", "event_id", event.ID, "error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("published but not marked processed: %w", err)
	}

	r.logger.Debug("alert relayed", "event_id", event.ID, "stream", event.TargetStream)
	return nil
}

// streamValues builds the stream entry from an outbox alert.
func streamValues(event *OutboxEvent) (map[string]interface{}, error) {
	var alert struct {
		AlertID string `json:"alert_id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(event.Payload, &alert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if alert.Message == "" {
		return nil, fmt.Errorf("%w: alert has no message", errInvalidEvent)
	}

	alertID := alert.AlertID
	if alertID == "" {
		alertID = event.AggregateID
	}

	return map[string]interface{}{
		"alert_id":  alertID,
		"message":   alert.Message,
		"timestamp": event.CreatedAt.Format(time.RFC3339),
		"outbox_id": event.ID.String(),
	}, nil
}

// GetPendingCount counts alerts not yet on the stream, retries included.
func (r *Relay) GetPendingCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusPending, OutboxStatusFailed)
}

// GetDeadLetterCount counts alerts the relay gave up on.
func (r *Relay) GetDeadLetterCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusDeadLetter)
}
