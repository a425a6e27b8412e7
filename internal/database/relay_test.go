package database

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRedisClient is a mock for Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1700000000000-0")
	}
	return cmd
}

// MockOutboxRepository is a mock for OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func (m *MockOutboxRepository) CountByStatus(ctx context.Context, statuses ...string) (int64, error) {
	args := m.Called(ctx, statuses)
	return args.Get(0).(int64), args.Error(1)
}

func alertEvent(message string) *OutboxEvent {
	id := uuid.New()
	payload, _ := json.Marshal(map[string]string{"alert_id": id.String(), "message": message})
	return &OutboxEvent{
		ID:           id,
		AggregateID:  id.String(),
		EventType:    EventTypeStockAlert,
		Payload:      payload,
		TargetStream: "stream:stock_alerts",
		CreatedAt:    time.Now(),
	}
}

func newTestRelay(rc RedisClient, repo OutboxRepo, batchSize int) *Relay {
	return &Relay{
		redis:     rc,
		outbox:    repo,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		interval:  20 * time.Millisecond,
		batchSize: batchSize,
	}
}

func alertIDIs(id string) interface{} {
	return mock.MatchedBy(func(args *redis.XAddArgs) bool {
		values, _ := args.Values.(map[string]interface{})
		return values["alert_id"] == id
	})
}

func TestRelayBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks every alert", func(t *testing.T) {
		rc := new(MockRedisClient)
		repo := new(MockOutboxRepository)
		events := []*OutboxEvent{alertEvent("first"), alertEvent("second")}

		repo.On("GetPending", ctx, 10).Return(events, nil).Once()
		for _, event := range events {
			rc.On("XAdd", ctx, alertIDIs(event.AggregateID)).Return(nil).Once()
			repo.On("MarkProcessed", ctx, event.ID).Return(nil).Once()
		}

		n, err := newTestRelay(rc, repo, 10).relayBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		rc.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("one failed publish does not stop the batch", func(t *testing.T) {
		rc := new(MockRedisClient)
		repo := new(MockOutboxRepository)
		events := []*OutboxEvent{alertEvent("first"), alertEvent("second")}

		repo.On("GetPending", ctx, 10).Return(events, nil).Once()
		rc.On("XAdd", ctx, alertIDIs(events[0].AggregateID)).Return(errors.New("READONLY replica")).Once()
		repo.On("MarkFailed", ctx, events[0].ID, mock.MatchedBy(func(err error) bool {
			return strings.Contains(err.Error(), "READONLY replica")
		})).Return(nil).Once()
		rc.On("XAdd", ctx, alertIDIs(events[1].AggregateID)).Return(nil).Once()
		repo.On("MarkProcessed", ctx, events[1].ID).Return(nil).Once()

		n, err := newTestRelay(rc, repo, 10).relayBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "MarkProcessed", ctx, events[0].ID)
	})

	t.Run("malformed payload is marked failed without publishing", func(t *testing.T) {
		rc := new(MockRedisClient)
		repo := new(MockOutboxRepository)
		event := alertEvent("x")
		event.Payload = json.RawMessage(`not json`)

		repo.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil).Once()
		repo.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil).Once()

		_, err := newTestRelay(rc, repo, 10).relayBatch(ctx)
		require.NoError(t, err)
		rc.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("outbox read failure", func(t *testing.T) {
		repo := new(MockOutboxRepository)
		repo.On("GetPending", ctx, 10).Return(nil, errors.New("connection reset")).Once()

		_, err := newTestRelay(new(MockRedisClient), repo, 10).relayBatch(ctx)
		assert.Error(t, err)
	})
}

func TestStreamValues(t *testing.T) {
	message := "🔔 **Ryzen 7 9800X3D Available!**\nhttps://example/a"

	t.Run("same fields as the redis sink", func(t *testing.T) {
		event := alertEvent(message)

		values, err := streamValues(event)
		require.NoError(t, err)

		assert.Equal(t, message, values["message"])
		assert.Equal(t, event.AggregateID, values["alert_id"])
		assert.Equal(t, event.ID.String(), values["outbox_id"])
		assert.Equal(t, event.CreatedAt.Format(time.RFC3339), values["timestamp"])
		assert.Len(t, values, 4)
	})

	t.Run("alert id falls back to the aggregate id", func(t *testing.T) {
		event := alertEvent(message)
		event.Payload = json.RawMessage(`{"message":"hi"}`)

		values, err := streamValues(event)
		require.NoError(t, err)
		assert.Equal(t, event.AggregateID, values["alert_id"])
	})

	t.Run("empty message", func(t *testing.T) {
		event := alertEvent("")
		_, err := streamValues(event)
		assert.ErrorIs(t, err, errInvalidEvent)
	})
}

func TestRelay_Drain(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps going while batches are full", func(t *testing.T) {
		rc := new(MockRedisClient)
		repo := new(MockOutboxRepository)
		full := []*OutboxEvent{alertEvent("a"), alertEvent("b")}
		short := []*OutboxEvent{alertEvent("c")}

		repo.On("GetPending", ctx, 2).Return(full, nil).Once()
		repo.On("GetPending", ctx, 2).Return(short, nil).Once()
		rc.On("XAdd", ctx, mock.Anything).Return(nil).Times(3)
		repo.On("MarkProcessed", ctx, mock.Anything).Return(nil).Times(3)

		require.NoError(t, newTestRelay(rc, repo, 2).Drain(ctx))
		repo.AssertNumberOfCalls(t, "GetPending", 2)
		rc.AssertNumberOfCalls(t, "XAdd", 3)
	})

	t.Run("relays alerts committed after Start stopped", func(t *testing.T) {
		rc := new(MockRedisClient)
		repo := new(MockOutboxRepository)
		relay := newTestRelay(rc, repo, 10)

		startCtx, cancel := context.WithCancel(ctx)
		polled := make(chan struct{})
		repo.On("GetPending", mock.Anything, 10).Return([]*OutboxEvent{}, nil).Once().
			Run(func(mock.Arguments) { close(polled); cancel() })
		done := make(chan error, 1)
		go func() { done <- relay.Start(startCtx) }()
		<-polled
		require.ErrorIs(t, <-done, context.Canceled)

		late := alertEvent("🔔 last alert of the pass")
		repo.On("GetPending", ctx, 10).Return([]*OutboxEvent{late}, nil).Once()
		rc.On("XAdd", ctx, alertIDIs(late.AggregateID)).Return(nil).Once()
		repo.On("MarkProcessed", ctx, late.ID).Return(nil).Once()

		require.NoError(t, relay.Drain(ctx))
		rc.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("read failure", func(t *testing.T) {
		repo := new(MockOutboxRepository)
		repo.On("GetPending", ctx, 10).Return(nil, errors.New("pool closed")).Once()

		assert.Error(t, newTestRelay(new(MockRedisClient), repo, 10).Drain(ctx))
	})
}

func TestRelay_Counts(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOutboxRepository)
	relay := newTestRelay(new(MockRedisClient), repo, 10)

	repo.On("CountByStatus", ctx, []string{OutboxStatusPending, OutboxStatusFailed}).Return(int64(3), nil)
	repo.On("CountByStatus", ctx, []string{OutboxStatusDeadLetter}).Return(int64(1), nil)

	pending, err := relay.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)

	dead, err := relay.GetDeadLetterCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestRelay_Start(t *testing.T) {
	repo := new(MockOutboxRepository)
	polls := make(chan struct{}, 16)
	repo.On("GetPending", mock.Anything, 10).Return([]*OutboxEvent{}, nil).
		Run(func(mock.Arguments) {
			select {
			case polls <- struct{}{}:
			default:
			}
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newTestRelay(new(MockRedisClient), repo, 10).Start(ctx)
	}()

	// first poll is immediate, the second waits for the ticker
	<-polls
	<-polls
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancellation")
	}
}
