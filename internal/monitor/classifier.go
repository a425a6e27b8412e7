// Package monitor checks product pages for a restock and drives the
// sequential pass over all configured items.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/restock-monitor/internal/browser"
	"github.com/maltedev/restock-monitor/internal/models"
	"github.com/maltedev/restock-monitor/internal/notify"
)

const DefaultMarkerTimeout = 10 * time.Second

// Notifier delivers one alert message and reports whether the sink accepted it.
type Notifier interface {
	Notify(ctx context.Context, message string) bool
}

// Classifier performs the availability check for a single item.
type Classifier struct {
	notifier      Notifier
	product       string
	markerTimeout time.Duration
	logger        *slog.Logger
}

func NewClassifier(notifier Notifier, product string, markerTimeout time.Duration, logger *slog.Logger) *Classifier {
	if markerTimeout <= 0 {
		markerTimeout = DefaultMarkerTimeout
	}

	return &Classifier{
		notifier:      notifier,
		product:       product,
		markerTimeout: markerTimeout,
		logger:        logger.With("component", "classifier"),
	}
}

// Check loads the item's page in session and classifies it. It never
// returns an error: failures become outcomes, and every outcome except
// StillUnavailable is handed to the notifier exactly once. When ctx is
// cancelled mid-check the result carries ctx.Err() and no alert is sent.
func (c *Classifier) Check(ctx context.Context, session browser.Session, item models.Item) models.Result {
	start := time.Now()

	outcome, err := c.classify(ctx, session, item)
	res := models.Result{
		Item:      item,
		Outcome:   outcome,
		CheckedAt: start,
		Duration:  time.Since(start),
		Err:       err,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Err = ctxErr
		c.logger.Warn("check interrupted", "item", item.Label(), "url", item.URL, "error", ctxErr)
		return res
	}

	logger := c.logger.With("item", item.Label(), "url", item.URL, "marker", item.Marker, "outcome", outcome.Status.String())

	switch outcome.Status {
	case models.StatusStillUnavailable:
		logger.Info("product is still unavailable")
	case models.StatusAvailable:
		logger.Info("product appears to be available")
	default:
		logger.Warn("check reported an anomaly", "error", outcome.Detail)
	}

	if !outcome.Alerting() {
		return res
	}

	message, ok := notify.Compose(c.product, item, outcome)
	if !ok {
		logger.Error("no alert template for outcome")
		return res
	}

	res.Notified = true
	res.Delivered = c.notifier.Notify(ctx, message)
	return res
}

func (c *Classifier) classify(ctx context.Context, session browser.Session, item models.Item) (outcome models.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during check: %v", r)
			outcome = models.Outcome{Status: models.StatusUnexpectedError, Detail: err.Error()}
		}
	}()

	if err := session.Navigate(ctx, item.URL); err != nil {
		return failure(err), err
	}

	if err := session.WaitForClass(ctx, item.Marker, c.markerTimeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			return models.Outcome{Status: models.StatusMarkerMissing}, err
		}
		return failure(err), err
	}

	elements, err := session.FindByClass(ctx, item.Marker)
	if err != nil {
		return failure(err), err
	}
	if len(elements) == 0 {
		return models.Outcome{Status: models.StatusMarkerEmpty}, nil
	}

	absence := strings.ToLower(item.AbsenceText)
	for _, el := range elements {
		text, err := el.Text(ctx)
		if err != nil {
			return failure(err), err
		}
		if strings.Contains(strings.ToLower(text), absence) {
			return models.Outcome{Status: models.StatusStillUnavailable}, nil
		}
	}

	return models.Outcome{Status: models.StatusAvailable}, nil
}

// failure maps an error raised outside the marker wait to an outcome.
func failure(err error) models.Outcome {
	if errors.Is(err, browser.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return models.Outcome{Status: models.StatusLoadTimeout, Detail: err.Error()}
	}
	return models.Outcome{Status: models.StatusUnexpectedError, Detail: err.Error()}
}
