package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/events"
	messaging "github.com/spec-kit/opsdesk/internal/messaging/kafka"
	"github.com/spec-kit/opsdesk/internal/observability"
	"github.com/spec-kit/opsdesk/internal/persistence"
	"github.com/spec-kit/opsdesk/internal/repository"
)

type memOutbox struct {
	pending   []repository.OutboxRecord
	processed []string
	failed    map[string]int
	causes    map[string]error
}

func newMemOutbox(evts ...events.Event) *memOutbox {
	m := &memOutbox{failed: map[string]int{}, causes: map[string]error{}}
	for _, e := range evts {
		m.pending = append(m.pending, repository.OutboxRecord{Event: e})
	}
	return m
}

func (m *memOutbox) Append(_ context.Context, e events.Event) error {
	m.pending = append(m.pending, repository.OutboxRecord{Event: e})
	return nil
}

func (m *memOutbox) Claim(_ context.Context, limit int) ([]repository.OutboxRecord, error) {
	if limit > len(m.pending) {
		limit = len(m.pending)
	}
	batch := m.pending[:limit]
	m.pending = m.pending[limit:]
	return batch, nil
}

func (m *memOutbox) MarkProcessed(_ context.Context, ids []string) error {
	m.processed = append(m.processed, ids...)
	return nil
}

func (m *memOutbox) MarkFailed(_ context.Context, id string, cause error, _ int) error {
	m.failed[id]++
	m.causes[id] = cause
	return nil
}

func (m *memOutbox) RequeueStale(context.Context, time.Duration) (int64, error) { return 0, nil }

type recordingSink struct {
	name      string
	delivered []events.Event
	failOn    events.EventType
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, e events.Event) error {
	if e.Type == s.failOn {
		return errors.New("sink unavailable")
	}
	s.delivered = append(s.delivered, e)
	return nil
}

type captureWriter struct {
	messages []kafkago.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func mustEvent(t *testing.T, eventType events.EventType, id int64) events.Event {
	t.Helper()
	e, err := events.New(eventType, domain.EntityTrip, id, "tester", events.TripPayload{Vehicle: "Van"})
	require.NoError(t, err)
	return e
}

func TestProcessBatchDeliversToAllSinks(t *testing.T) {
	requested := mustEvent(t, events.EventTripRequested, 1)
	returned := mustEvent(t, events.EventTripReturned, 1)
	store := newMemOutbox(requested, returned)
	first := &recordingSink{name: "first"}
	second := &recordingSink{name: "second", failOn: events.EventTripReturned}
	metrics := observability.NewMetrics("relay_test")

	relay := NewOutboxRelay(store, RelayConfig{BatchSize: 10}, nil, metrics, first, second)
	n, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{requested.ID}, store.processed)
	assert.Equal(t, 1, store.failed[returned.ID])
	assert.ErrorContains(t, store.causes[returned.ID], "second: sink unavailable")
	assert.Len(t, first.delivered, 2)
	assert.Len(t, second.delivered, 1)
}

func TestProcessBatchEmpty(t *testing.T) {
	relay := NewOutboxRelay(newMemOutbox(), RelayConfig{}, nil, nil)
	n, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKafkaSinkKeysByEntity(t *testing.T) {
	w := &captureWriter{}
	sink := NewKafkaSink(messaging.NewProducerWithWriter(w, "opsdesk.events"))
	e := mustEvent(t, events.EventTripApproved, 42)

	require.NoError(t, sink.Deliver(context.Background(), e))
	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "vehicle_trip:42", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, e.ID, headers["event_id"])
	assert.Equal(t, "trip_approved", headers["event_type"])

	var decoded events.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, int64(42), decoded.EntityID)
}

func TestNotificationWorkerSinkPublishes(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	var seen []events.EventType
	dispatcher.Subscribe(events.EventTripRequested, func(_ context.Context, e events.Event) error {
		seen = append(seen, e.Type)
		return nil
	})

	sink := StartNotificationWorker(dispatcher, nil)
	require.NoError(t, sink.Deliver(context.Background(), mustEvent(t, events.EventTripRequested, 3)))
	assert.Equal(t, []events.EventType{events.EventTripRequested}, seen)
}

type countingChecker struct {
	calls   int
	flagged int
	err     error
}

func (c *countingChecker) CheckUnaccounted(context.Context) (int, error) {
	c.calls++
	return c.flagged, c.err
}

type busyLocker struct{}

func (busyLocker) TryLock(context.Context, string, time.Duration) (*persistence.Lock, bool, error) {
	return nil, false, nil
}

func TestSweepRunsWithoutRedis(t *testing.T) {
	checker := &countingChecker{flagged: 2}
	sweep := NewUnaccountedSweep(checker, &persistence.Redis{}, time.Minute, nil, nil)

	assert.Equal(t, 2, sweep.RunOnce(context.Background()))
	assert.Equal(t, 1, checker.calls)
}

func TestSweepSkipsWhenLocked(t *testing.T) {
	checker := &countingChecker{flagged: 2}
	sweep := NewUnaccountedSweep(checker, busyLocker{}, time.Minute, nil, nil)

	assert.Zero(t, sweep.RunOnce(context.Background()))
	assert.Zero(t, checker.calls)
}

func TestSweepReportsPartialFailure(t *testing.T) {
	checker := &countingChecker{flagged: 1, err: errors.New("one trip failed")}
	sweep := NewUnaccountedSweep(checker, &persistence.Redis{}, time.Minute, nil, nil)
	assert.Equal(t, 1, sweep.RunOnce(context.Background()))
}

func TestSweepStopsOnCancel(t *testing.T) {
	checker := &countingChecker{}
	sweep := NewUnaccountedSweep(checker, &persistence.Redis{}, time.Hour, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, sweep.Run(ctx))
	assert.Equal(t, 1, checker.calls)
}
