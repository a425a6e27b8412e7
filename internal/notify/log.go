package notify

import (
	"context"
	"log/slog"
)

// LogSink only logs messages. Useful for dry runs.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "log_sink")}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) Send(ctx context.Context, message string) (Receipt, error) {
	l.logger.InfoContext(ctx, "alert", "message", message)
	return Receipt{OK: true}, nil
}
