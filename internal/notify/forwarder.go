package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamConsumer is the subset of the redis client used to read alerts
// through a consumer group.
type StreamConsumer interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Deliverer is satisfied by Notifier.
type Deliverer interface {
	Notify(ctx context.Context, message string) bool
}

type ForwarderConfig struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
}

// Forwarder drains the alert stream written by the redis and outbox sinks
// and hands every message to a deliverer, typically the discord sink.
// Each entry gets one delivery attempt and is acknowledged afterwards,
// whether or not the delivery succeeded.
type Forwarder struct {
	redis     StreamConsumer
	deliverer Deliverer
	cfg       ForwarderConfig
	logger    *slog.Logger
}

func NewForwarder(client StreamConsumer, deliverer Deliverer, cfg ForwarderConfig, logger *slog.Logger) *Forwarder {
	if cfg.Group == "" {
		cfg.Group = "alert-forwarder-group"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "forwarder-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}

	return &Forwarder{
		redis:     client,
		deliverer: deliverer,
		cfg:       cfg,
		logger:    logger.With("component", "forwarder", "stream", cfg.Stream, "group", cfg.Group),
	}
}

// Run consumes the stream until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	err := f.redis.XGroupCreateMkStream(ctx, f.cfg.Stream, f.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}

	f.logger.Info("starting forwarder", "consumer", f.cfg.Consumer)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := f.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Error("failed to read from stream", "error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// poll reads one batch and returns the number of entries handled.
func (f *Forwarder) poll(ctx context.Context) (int, error) {
	streams, err := f.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    f.cfg.Group,
		Consumer: f.cfg.Consumer,
		Streams:  []string{f.cfg.Stream, ">"},
		Count:    10,
		Block:    f.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	handled := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			f.forward(ctx, msg)

			if err := f.redis.XAck(ctx, f.cfg.Stream, f.cfg.Group, msg.ID).Err(); err != nil {
				f.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
			}
			handled++
		}
	}
	return handled, nil
}

func (f *Forwarder) forward(ctx context.Context, msg redis.XMessage) {
	text, ok := msg.Values["message"].(string)
	if !ok || text == "" {
		f.logger.Warn("skipping entry without message", "id", msg.ID)
		return
	}

	if !f.deliverer.Notify(ctx, text) {
		f.logger.Warn("alert was not delivered", "id", msg.ID, "alert_id", msg.Values["alert_id"])
	}
}
