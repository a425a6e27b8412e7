package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/restock-monitor/internal/browser"
	"github.com/maltedev/restock-monitor/internal/config"
	"github.com/maltedev/restock-monitor/internal/models"
)

const DefaultInterval = 300 * time.Second

// Opener acquires the web session used for one pass.
type Opener func(ctx context.Context) (browser.Session, error)

// Checker classifies one item using an open session.
type Checker interface {
	Check(ctx context.Context, session browser.Session, item models.Item) models.Result
}

// Recorder receives results as they are produced, e.g. for metrics.
type Recorder interface {
	ObserveResult(res models.Result)
	ObservePass(report *models.Report)
}

type nopRecorder struct{}

func (nopRecorder) ObserveResult(models.Result) {}
func (nopRecorder) ObservePass(*models.Report)  {}

type Options struct {
	// Interval is the pause between two consecutive items.
	Interval time.Duration
	// TrailingDelay also pauses after the last item of a pass.
	TrailingDelay bool
	Recorder      Recorder
	// Sleep replaces the context-aware pause, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultOptions() Options {
	return Options{
		Interval:      DefaultInterval,
		TrailingDelay: true,
	}
}

// Runner owns the item list and runs passes over it, one session per pass.
type Runner struct {
	open    Opener
	checker Checker
	opts    Options
	logger  *slog.Logger

	mu    sync.RWMutex
	items config.Items
	last  *models.Report
}

func NewRunner(open Opener, checker Checker, items config.Items, opts Options, logger *slog.Logger) *Runner {
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	return &Runner{
		open:    open,
		checker: checker,
		opts:    opts,
		items:   items,
		logger:  logger.With("component", "runner"),
	}
}

// SetItems replaces the item list. A pass already in progress keeps the
// list it started with.
func (r *Runner) SetItems(items config.Items) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = items
	r.logger.Info("item list replaced", "items", items.Len())
}

func (r *Runner) Items() config.Items {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items
}

// LastReport returns the most recent pass, or nil before the first one ends.
func (r *Runner) LastReport() *models.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// RunPass checks every item once, in order, with a single session that is
// closed on every exit path. Per-item failures are reported in the result
// list; an error is returned only when the session cannot be opened, when
// it is lost mid-pass, or when ctx is cancelled.
func (r *Runner) RunPass(ctx context.Context) (*models.Report, error) {
	items := r.Items().All()
	report := &models.Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Results:   make([]models.Result, 0, len(items)),
	}
	logger := r.logger.With("run_id", report.RunID)

	session, err := r.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Error("failed to close browser session", "error", err)
		}
		report.FinishedAt = time.Now()
		r.finish(report)
	}()

	logger.Info("starting pass", "items", len(items))

	for i, item := range items {
		res := r.checker.Check(ctx, session, item)
		if err := ctx.Err(); err != nil {
			logger.Info("pass cancelled", "checked", len(report.Results))
			return report, err
		}

		report.Results = append(report.Results, res)
		r.opts.Recorder.ObserveResult(res)

		if errors.Is(res.Err, browser.ErrSessionLost) {
			logger.Error("browser session lost", "url", item.URL, "error", res.Err)
			return report, fmt.Errorf("failed to check %s: %w", item.URL, res.Err)
		}

		if i == len(items)-1 && !r.opts.TrailingDelay {
			break
		}

		logger.Debug("waiting before next check", "delay", r.opts.Interval)
		if err := r.opts.Sleep(ctx, r.opts.Interval); err != nil {
			logger.Info("pass cancelled", "checked", len(report.Results))
			return report, err
		}
	}

	logger.Info("pass completed", "counts", report.Counts())
	return report, nil
}

// Run executes a single pass when repeat is zero. Otherwise it keeps
// running passes separated by repeat until ctx is cancelled; failed passes
// are logged and the next one starts on schedule.
func (r *Runner) Run(ctx context.Context, repeat time.Duration) error {
	if repeat <= 0 {
		_, err := r.RunPass(ctx)
		return err
	}

	for {
		if _, err := r.RunPass(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("pass failed", "error", err)
		}

		r.logger.Info("next pass scheduled", "in", repeat)
		if err := r.opts.Sleep(ctx, repeat); err != nil {
			return err
		}
	}
}

func (r *Runner) finish(report *models.Report) {
	r.opts.Recorder.ObservePass(report)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = report
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
