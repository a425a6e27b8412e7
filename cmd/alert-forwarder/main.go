package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/restock-monitor/internal/config"
	"github.com/maltedev/restock-monitor/internal/notify"
	"github.com/maltedev/restock-monitor/pkg/logger"
)

func main() {
	cfg, err := config.LoadForwarder()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closeLog, err := logger.Open(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Redis", "addr", cfg.Redis.Addr)

	notifier := notify.NewNotifier(notify.NewDiscordSink(cfg.DiscordWebhookURL), logger)
	forwarder := notify.NewForwarder(rdb, notifier, notify.ForwarderConfig{
		Stream:   cfg.Stream,
		Group:    cfg.Group,
		Consumer: cfg.Consumer,
	}, logger)

	if err := forwarder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("forwarder stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("forwarder stopped")
}
