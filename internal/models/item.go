package models

import (
	"strings"
	"time"
)

// Item is one product page watched for a restock.
type Item struct {
	Name        string `json:"name,omitempty" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	Marker      string `json:"marker" yaml:"marker"`
	AbsenceText string `json:"absence_text" yaml:"absence_text"`
}

// Label returns the name used in logs, falling back to the URL.
func (i Item) Label() string {
	if i.Name != "" {
		return i.Name
	}
	return i.URL
}

func (i Item) Validate() []string {
	var errors []string

	if strings.TrimSpace(i.URL) == "" {
		errors = append(errors, "url is required")
	}

	if strings.TrimSpace(i.Marker) == "" {
		errors = append(errors, "marker is required")
	}

	if strings.TrimSpace(i.AbsenceText) == "" {
		errors = append(errors, "absence_text is required")
	}

	return errors
}

// Status is the classification of one availability check.
type Status int

const (
	StatusAvailable Status = iota
	StatusStillUnavailable
	StatusMarkerMissing
	StatusMarkerEmpty
	StatusLoadTimeout
	StatusUnexpectedError
)

var statusNames = map[Status]string{
	StatusAvailable:        "available",
	StatusStillUnavailable: "still_unavailable",
	StatusMarkerMissing:    "marker_missing",
	StatusMarkerEmpty:      "marker_empty",
	StatusLoadTimeout:      "load_timeout",
	StatusUnexpectedError:  "unexpected_error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Statuses lists every status in declaration order.
func Statuses() []Status {
	return []Status{
		StatusAvailable,
		StatusStillUnavailable,
		StatusMarkerMissing,
		StatusMarkerEmpty,
		StatusLoadTimeout,
		StatusUnexpectedError,
	}
}

// Outcome is a status plus the error description for the failure statuses.
type Outcome struct {
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Alerting reports whether the outcome warrants a notification.
// Only the steady "still sold out" state is silent.
func (o Outcome) Alerting() bool {
	return o.Status != StatusStillUnavailable
}

// Result is what a single check of one item produced. Notified is set when
// an alert was handed to the notifier, Delivered when the sink accepted it.
type Result struct {
	Item      Item          `json:"item"`
	Outcome   Outcome       `json:"outcome"`
	Notified  bool          `json:"notified"`
	Delivered bool          `json:"delivered"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Report collects the results of one pass over all items.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Results    []Result  `json:"results"`
}

// Counts tallies results per status.
func (r *Report) Counts() map[string]int {
	counts := make(map[string]int)
	for _, res := range r.Results {
		counts[res.Outcome.Status.String()]++
	}
	return counts
}
