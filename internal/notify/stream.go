package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of the redis client the stream sink needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// StreamSink appends each message to a Redis stream for downstream
// consumers (chat bots, mailers) to pick up.
type StreamSink struct {
	redis  RedisClient
	stream string
}

func NewStreamSink(client RedisClient, stream string) *StreamSink {
	return &StreamSink{redis: client, stream: stream}
}

func (s *StreamSink) Name() string { return "redis" }

func (s *StreamSink) Send(ctx context.Context, message string) (Receipt, error) {
	id, err := s.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"alert_id":  uuid.New().String(),
			"message":   message,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to publish to redis: %w", err)
	}

	return Receipt{OK: id != "", ID: id}, nil
}
