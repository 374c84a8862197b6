package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spec-kit/opsdesk/internal/events"
	messaging "github.com/spec-kit/opsdesk/internal/messaging/kafka"
)

// Sink receives relayed outbox events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event events.Event) error
}

// DispatcherSink hands events to in-process subscribers.
type DispatcherSink struct {
	dispatcher events.Dispatcher
}

func NewDispatcherSink(dispatcher events.Dispatcher) *DispatcherSink {
	return &DispatcherSink{dispatcher: dispatcher}
}

func (s *DispatcherSink) Name() string { return "dispatcher" }

func (s *DispatcherSink) Deliver(ctx context.Context, event events.Event) error {
	if s.dispatcher == nil {
		return nil
	}
	return s.dispatcher.Publish(ctx, event)
}

// KafkaSink publishes events keyed by entity so one entity's history stays
// ordered within a partition.
type KafkaSink struct {
	producer *messaging.Producer
}

func NewKafkaSink(producer *messaging.Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	key := fmt.Sprintf("%s:%d", event.Entity, event.EntityID)
	return s.producer.SendMessage(ctx, []byte(key), value, map[string]string{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})
}
