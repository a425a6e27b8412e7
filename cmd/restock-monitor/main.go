package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/restock-monitor/internal/api"
	"github.com/maltedev/restock-monitor/internal/browser"
	"github.com/maltedev/restock-monitor/internal/config"
	"github.com/maltedev/restock-monitor/internal/database"
	"github.com/maltedev/restock-monitor/internal/metrics"
	"github.com/maltedev/restock-monitor/internal/monitor"
	"github.com/maltedev/restock-monitor/internal/notify"
	"github.com/maltedev/restock-monitor/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("monitor stopped with error", "error", err)
		closeLog()
		os.Exit(1)
	}

	logger.Info("monitor stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	items, err := config.LoadItems(cfg.Monitor.ItemsFile)
	if err != nil {
		return err
	}

	sink, outbox, cleanup, err := newSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	m := metrics.New()
	notifier := notify.NewNotifier(sink, logger)
	classifier := monitor.NewClassifier(notifier, cfg.Monitor.ProductName, cfg.Monitor.MarkerTimeout, logger)

	browserOpts := browser.DefaultOptions()
	browserOpts.Headless = cfg.Browser.Headless
	browserOpts.Timeout = cfg.Browser.Timeout
	browserOpts.UserAgent = cfg.Browser.UserAgent
	browserOpts.AcceptLanguage = cfg.Browser.AcceptLanguage
	browserOpts.TimezoneID = cfg.Browser.TimezoneID
	browserOpts.Locale = cfg.Browser.Locale
	browserOpts.ProxyServer = cfg.Browser.ProxyServer

	open := func(ctx context.Context) (browser.Session, error) {
		return browser.Open(ctx, cfg.Browser.Engine, browserOpts)
	}

	runner := monitor.NewRunner(open, classifier, items, monitor.Options{
		Interval:      cfg.Monitor.Interval,
		TrailingDelay: cfg.Monitor.TrailingDelay,
		Recorder:      m,
	}, logger)

	if cfg.Status.Addr != "" {
		handlers := api.NewHandlers(runner, outbox, logger.With("component", "api"))
		router := api.NewRouter(handlers, m.Handler())
		go func() {
			if err := api.Serve(ctx, cfg.Status.Addr, router, logger); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	if cfg.Monitor.RepeatInterval > 0 && cfg.Monitor.ItemsFile != "" {
		go func() {
			if err := config.WatchItems(ctx, cfg.Monitor.ItemsFile, logger, runner.SetItems); err != nil {
				logger.Error("items watcher stopped", "error", err)
			}
		}()
	}

	logger.Info("monitor starting",
		"items", items.Len(),
		"engine", cfg.Browser.Engine,
		"sink", sink.Name(),
		"interval", cfg.Monitor.Interval,
		"repeat", cfg.Monitor.RepeatInterval)

	return runner.Run(ctx, cfg.Monitor.RepeatInterval)
}

// newSink builds the configured alert sink. outbox is non-nil only for the
// outbox sink, whose relay runs until cleanup is called.
func newSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Sink, api.OutboxStats, func(), error) {
	switch cfg.Notify.Sink {
	case config.SinkDiscord:
		return notify.NewDiscordSink(cfg.Notify.DiscordWebhookURL), nil, func() {}, nil

	case config.SinkLog:
		return notify.NewLogSink(logger), nil, func() {}, nil

	case config.SinkRedis:
		redisClient, err := newRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		return notify.NewStreamSink(redisClient, cfg.Notify.Stream), nil, func() { redisClient.Close() }, nil

	case config.SinkOutbox:
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}

		redisClient, err := newRedisClient(ctx, cfg.Redis)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}

		relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
			PollInterval: cfg.Notify.RelayInterval,
			BatchSize:    100,
		})
		stopRelay := startRelay(relay, logger, relayDrainTimeout)

		cleanup := func() {
			stopRelay()
			redisClient.Close()
			db.Close()
		}
		return notify.NewOutboxSink(db, cfg.Notify.Stream), relay, cleanup, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported sink %q", cfg.Notify.Sink)
	}
}

const relayDrainTimeout = 10 * time.Second

type relayRunner interface {
	Start(ctx context.Context) error
	Drain(ctx context.Context) error
}

// startRelay runs the relay in the background. The returned stop func waits
// for the poll loop to exit and drains what is left before returning, so the
// caller can close the pool and Redis client afterwards.
func startRelay(relay relayRunner, logger *slog.Logger, drainTimeout time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done

		drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
		defer cancelDrain()
		if err := relay.Drain(drainCtx); err != nil {
			logger.Error("failed to drain outbox", "error", err)
		}
	}
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
