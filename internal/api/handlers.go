package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/maltedev/restock-monitor/internal/config"
	"github.com/maltedev/restock-monitor/internal/models"
)

// Monitor is the read side of the runner.
type Monitor interface {
	Items() config.Items
	LastReport() *models.Report
}

// OutboxStats reports the backlog of the alert outbox. It is nil unless the
// outbox sink is in use.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	monitor Monitor
	outbox  OutboxStats
	logger  *slog.Logger
}

func NewHandlers(monitor Monitor, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		monitor: monitor,
		outbox:  outbox,
		logger:  logger,
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	LastPass *time.Time    `json:"last_pass,omitempty"`
	Outbox   *OutboxHealth `json:"outbox,omitempty"`
}

type OutboxHealth struct {
	Pending    int64 `json:"pending"`
	DeadLetter int64 `json:"dead_letter"`
}

// Health reports liveness plus the outbox backlog when there is one.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if report := h.monitor.LastReport(); report != nil && !report.FinishedAt.IsZero() {
		finished := report.FinishedAt
		resp.LastPass = &finished
	}

	if h.outbox != nil {
		pending, err := h.outbox.GetPendingCount(r.Context())
		if err != nil {
			h.logger.Error("failed to count pending alerts", "error", err)
		}
		deadLetter, err := h.outbox.GetDeadLetterCount(r.Context())
		if err != nil {
			h.logger.Error("failed to count dead letter alerts", "error", err)
		}
		resp.Outbox = &OutboxHealth{Pending: pending, DeadLetter: deadLetter}

		if pending > 100 {
			resp.Status = "warning"
			resp.Message = "High number of pending alerts"
		}
		if deadLetter > 10 {
			resp.Status = "error"
			resp.Message = "Alerts are being dead-lettered"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, resp)
}

// ListItems returns the monitored items in check order.
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.monitor.Items().All())
}

// ReportResponse wraps the last pass with per-outcome counts.
type ReportResponse struct {
	*models.Report
	Counts map[string]int `json:"counts"`
}

// GetReport returns the most recent pass.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	report := h.monitor.LastReport()
	if report == nil {
		h.respondError(w, http.StatusNotFound, "no pass has completed yet")
		return
	}

	h.respondJSON(w, http.StatusOK, ReportResponse{
		Report: report,
		Counts: report.Counts(),
	})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
