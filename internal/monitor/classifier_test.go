package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/restock-monitor/internal/browser"
	"github.com/maltedev/restock-monitor/internal/models"
	"github.com/maltedev/restock-monitor/internal/notify"
)

var testItem = models.Item{
	URL:         "https://example/a",
	Marker:      "soldout",
	AbsenceText: "out of stock",
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePage is what the fake session renders for one URL.
type fakePage struct {
	texts []string
	// absent makes the marker wait time out.
	absent bool
	// vanish makes the marker disappear between wait and query.
	vanish bool

	navErr   error
	waitErr  error
	findErr  error
	textErr  error
	panicMsg string
}

type fakeSession struct {
	pages   map[string]fakePage
	current fakePage
	visited []string
	waits   []time.Duration
	closed  int
}

func newFakeSession(pages map[string]fakePage) *fakeSession {
	return &fakeSession{pages: pages}
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.visited = append(s.visited, url)
	s.current = s.pages[url]
	if s.current.panicMsg != "" {
		panic(s.current.panicMsg)
	}
	return s.current.navErr
}

func (s *fakeSession) WaitForClass(ctx context.Context, className string, timeout time.Duration) error {
	s.waits = append(s.waits, timeout)
	if s.current.waitErr != nil {
		return s.current.waitErr
	}
	if s.current.absent {
		return fmt.Errorf("failed to wait for class %q: %w", className, browser.ErrTimeout)
	}
	return nil
}

func (s *fakeSession) FindByClass(ctx context.Context, className string) ([]browser.Element, error) {
	if s.current.findErr != nil {
		return nil, s.current.findErr
	}
	if s.current.vanish {
		return nil, nil
	}

	elements := make([]browser.Element, 0, len(s.current.texts))
	for _, text := range s.current.texts {
		elements = append(elements, fakeElement{text: text, err: s.current.textErr})
	}
	return elements, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeElement struct {
	text string
	err  error
}

func (e fakeElement) Text(ctx context.Context) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return e.text, nil
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, message string) bool {
	args := m.Called(ctx, message)
	return args.Bool(0)
}

func messageWith(parts ...string) interface{} {
	return mock.MatchedBy(func(msg string) bool {
		for _, p := range parts {
			if !strings.Contains(msg, p) {
				return false
			}
		}
		return true
	})
}

func TestClassifierCheck(t *testing.T) {
	tests := []struct {
		name       string
		page       fakePage
		want       models.Status
		message    []string
		detail     string
		wantNotify bool
	}{
		{
			name: "absence text present means still unavailable",
			page: fakePage{texts: []string{"Currently Out Of Stock"}},
			want: models.StatusStillUnavailable,
		},
		{
			name:       "absence text missing means available",
			page:       fakePage{texts: []string{"Add to cart"}},
			want:       models.StatusAvailable,
			message:    []string{"Available!", "https://example/a"},
			wantNotify: true,
		},
		{
			name:       "marker wait timeout",
			page:       fakePage{absent: true},
			want:       models.StatusMarkerMissing,
			message:    []string{"Class Not Found Alert!", "soldout", "https://example/a"},
			wantNotify: true,
		},
		{
			name:       "marker gone after wait",
			page:       fakePage{vanish: true},
			want:       models.StatusMarkerEmpty,
			message:    []string{"Class Not Found Warning!", "soldout", "https://example/a"},
			wantNotify: true,
		},
		{
			name:       "any element matching is enough",
			page:       fakePage{texts: []string{"Add to cart", "OUT OF STOCK"}},
			want:       models.StatusStillUnavailable,
			wantNotify: false,
		},
		{
			name:       "navigation timeout",
			page:       fakePage{navErr: fmt.Errorf("failed to navigate: %w", browser.ErrTimeout)},
			want:       models.StatusLoadTimeout,
			message:    []string{"Timeout Alert!", "https://example/a"},
			wantNotify: true,
		},
		{
			name:       "navigation error",
			page:       fakePage{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")},
			want:       models.StatusUnexpectedError,
			message:    []string{"Error Alert!", "https://example/a", "net::ERR_NAME_NOT_RESOLVED"},
			detail:     "net::ERR_NAME_NOT_RESOLVED",
			wantNotify: true,
		},
		{
			name:       "wait error other than timeout",
			page:       fakePage{waitErr: errors.New("execution context was destroyed")},
			want:       models.StatusUnexpectedError,
			message:    []string{"Error Alert!", "execution context was destroyed"},
			detail:     "execution context was destroyed",
			wantNotify: true,
		},
		{
			name:       "query deadline",
			page:       fakePage{findErr: context.DeadlineExceeded},
			want:       models.StatusLoadTimeout,
			message:    []string{"Timeout Alert!"},
			wantNotify: true,
		},
		{
			name:       "text read timeout",
			page:       fakePage{texts: []string{"x"}, textErr: fmt.Errorf("failed to read element text: %w", browser.ErrTimeout)},
			want:       models.StatusLoadTimeout,
			message:    []string{"Timeout Alert!"},
			wantNotify: true,
		},
		{
			name:       "session panic",
			page:       fakePage{panicMsg: "renderer crashed"},
			want:       models.StatusUnexpectedError,
			message:    []string{"Error Alert!", "renderer crashed"},
			detail:     "panic during check: renderer crashed",
			wantNotify: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := new(MockNotifier)
			if tt.wantNotify {
				notifier.On("Notify", mock.Anything, messageWith(tt.message...)).Return(true).Once()
			}

			session := newFakeSession(map[string]fakePage{testItem.URL: tt.page})
			c := NewClassifier(notifier, "Ryzen 7 9800X3D", 10*time.Second, testLogger())

			res := c.Check(context.Background(), session, testItem)

			assert.Equal(t, tt.want, res.Outcome.Status)
			assert.Equal(t, tt.wantNotify, res.Notified)
			assert.Equal(t, tt.wantNotify, res.Delivered)
			assert.Equal(t, testItem, res.Item)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, res.Outcome.Detail)
			}
			notifier.AssertExpectations(t)
			if !tt.wantNotify {
				notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
			}
			assert.Equal(t, 0, session.closed, "check must not close the session")
		})
	}
}

func TestClassifierUsesMarkerTimeout(t *testing.T) {
	notifier := new(MockNotifier)
	session := newFakeSession(map[string]fakePage{testItem.URL: {texts: []string{"sold out, out of stock"}}})

	NewClassifier(notifier, "p", 3*time.Second, testLogger()).Check(context.Background(), session, testItem)
	NewClassifier(notifier, "p", 0, testLogger()).Check(context.Background(), session, testItem)

	assert.Equal(t, []time.Duration{3 * time.Second, DefaultMarkerTimeout}, session.waits)
}

func TestClassifierIsIdempotent(t *testing.T) {
	pages := []fakePage{
		{texts: []string{"Currently Out Of Stock"}},
		{texts: []string{"Add to cart"}},
		{absent: true},
		{vanish: true},
	}

	for _, page := range pages {
		notifier := new(MockNotifier)
		notifier.On("Notify", mock.Anything, mock.Anything).Return(true)
		session := newFakeSession(map[string]fakePage{testItem.URL: page})
		c := NewClassifier(notifier, "p", time.Second, testLogger())

		first := c.Check(context.Background(), session, testItem)
		second := c.Check(context.Background(), session, testItem)

		assert.Equal(t, first.Outcome, second.Outcome)
		assert.Equal(t, first.Notified, second.Notified)
	}
}

func TestClassifierDeliveryFailureKeepsOutcome(t *testing.T) {
	t.Run("notifier reports failure", func(t *testing.T) {
		notifier := new(MockNotifier)
		notifier.On("Notify", mock.Anything, mock.Anything).Return(false).Once()
		session := newFakeSession(map[string]fakePage{testItem.URL: {texts: []string{"Add to cart"}}})

		res := NewClassifier(notifier, "p", time.Second, testLogger()).Check(context.Background(), session, testItem)

		assert.Equal(t, models.StatusAvailable, res.Outcome.Status)
		assert.True(t, res.Notified)
		assert.False(t, res.Delivered)
		notifier.AssertNumberOfCalls(t, "Notify", 1)
	})

	t.Run("sink errors through a real notifier", func(t *testing.T) {
		sink := &failingSink{err: errors.New("connection refused")}
		notifier := notify.NewNotifier(sink, testLogger())
		session := newFakeSession(map[string]fakePage{testItem.URL: {absent: true}})

		var res models.Result
		require.NotPanics(t, func() {
			res = NewClassifier(notifier, "p", time.Second, testLogger()).Check(context.Background(), session, testItem)
		})

		assert.Equal(t, models.StatusMarkerMissing, res.Outcome.Status)
		assert.False(t, res.Delivered)
		assert.Equal(t, 1, sink.calls)
	})
}

func TestClassifierCancelledContext(t *testing.T) {
	notifier := new(MockNotifier)
	session := newFakeSession(map[string]fakePage{testItem.URL: {texts: []string{"Add to cart"}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewClassifier(notifier, "p", time.Second, testLogger()).Check(ctx, session, testItem)

	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, res.Notified)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestClassifierKeepsSessionLostError(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(true).Once()
	lost := fmt.Errorf("failed to navigate: %w", browser.ErrSessionLost)
	session := newFakeSession(map[string]fakePage{testItem.URL: {navErr: lost}})

	res := NewClassifier(notifier, "p", time.Second, testLogger()).Check(context.Background(), session, testItem)

	assert.Equal(t, models.StatusUnexpectedError, res.Outcome.Status)
	assert.ErrorIs(t, res.Err, browser.ErrSessionLost)
	notifier.AssertExpectations(t)
}

type failingSink struct {
	err   error
	calls int
}

func (s *failingSink) Name() string { return "failing" }

func (s *failingSink) Send(ctx context.Context, message string) (notify.Receipt, error) {
	s.calls++
	return notify.Receipt{}, s.err
}

func TestClassifierLogsItemLabel(t *testing.T) {
	tests := []struct {
		name string
		item models.Item
		want string
	}{
		{"named item", models.Item{Name: "ark", URL: "https://example/a", Marker: "soldout", AbsenceText: "out of stock"}, "item=ark"},
		{"unnamed item falls back to url", testItem, "item=https://example/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			session := newFakeSession(map[string]fakePage{tt.item.URL: {texts: []string{"Out of stock"}}})

			res := NewClassifier(new(MockNotifier), "p", time.Second, logger).Check(context.Background(), session, tt.item)

			assert.Equal(t, models.StatusStillUnavailable, res.Outcome.Status)
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), "outcome=still_unavailable")
		})
	}
}
