package eventbus_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/calloutapp/callout/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConsumer struct {
	eventTypes []string
	events     []*eventbus.ConsumedEvent
	err        error
}

func (m *mockConsumer) EventTypes() []string {
	return m.eventTypes
}

func (m *mockConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	m.events = append(m.events, event)
	return m.err
}

func TestConsumerRegistry_Register(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	registry := eventbus.NewConsumerRegistry(logger)

	consumer := &mockConsumer{
		eventTypes: []string{"fieldops.job.completed", "fieldops.task.overdue"},
	}

	registry.Register(consumer)

	// Should have consumers for both event types
	jobConsumers := registry.GetConsumers("fieldops.job.completed")
	assert.Len(t, jobConsumers, 1)

	taskConsumers := registry.GetConsumers("fieldops.task.overdue")
	assert.Len(t, taskConsumers, 1)

	// Should return empty for unregistered types
	unknownConsumers := registry.GetConsumers("unknown.event.type")
	assert.Empty(t, unknownConsumers)
}

func TestConsumerRegistry_MultipleConsumers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	registry := eventbus.NewConsumerRegistry(logger)

	consumer1 := &mockConsumer{
		eventTypes: []string{"fieldops.job.created"},
	}
	consumer2 := &mockConsumer{
		eventTypes: []string{"fieldops.job.created", "fieldops.job.completed"},
	}

	registry.Register(consumer1)
	registry.Register(consumer2)

	// Should have 2 consumers for job.created
	jobCreatedConsumers := registry.GetConsumers("fieldops.job.created")
	assert.Len(t, jobCreatedConsumers, 2)

	// Should have 1 consumer for job.completed
	jobCompletedConsumers := registry.GetConsumers("fieldops.job.completed")
	assert.Len(t, jobCompletedConsumers, 1)
}

func TestConsumerRegistry_Dispatch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	registry := eventbus.NewConsumerRegistry(logger)

	consumer := &mockConsumer{
		eventTypes: []string{"fieldops.job.completed"},
	}
	registry.Register(consumer)

	event := &eventbus.ConsumedEvent{
		EventID:       uuid.New(),
		AggregateID:   uuid.New(),
		AggregateType: "job",
		RoutingKey:    "fieldops.job.completed",
	}

	err := registry.Dispatch(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, consumer.events, 1)
	assert.Equal(t, event.EventID, consumer.events[0].EventID)
}

func TestConsumerRegistry_DispatchNoConsumers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	registry := eventbus.NewConsumerRegistry(logger)

	event := &eventbus.ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: "no.consumers.here",
	}

	// Dispatching with no consumers should not error
	err := registry.Dispatch(context.Background(), event)
	assert.NoError(t, err)
}

func TestConsumerRegistry_DispatchConsumerError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	registry := eventbus.NewConsumerRegistry(logger)

	failing := &mockConsumer{
		eventTypes: []string{"fieldops.job.completed"},
		err:        errors.New("handler failed"),
	}
	healthy := &mockConsumer{
		eventTypes: []string{"fieldops.job.completed"},
	}
	registry.Register(failing)
	registry.Register(healthy)

	event := &eventbus.ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: "fieldops.job.completed",
	}

	err := registry.Dispatch(context.Background(), event)
	assert.Error(t, err)

	// The healthy consumer still receives the event
	assert.Len(t, healthy.events, 1)
}

func TestConsumerRegistry_GetAllEventTypes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	registry := eventbus.NewConsumerRegistry(logger)

	registry.Register(&mockConsumer{
		eventTypes: []string{"fieldops.job.created", "fieldops.job.completed"},
	})
	registry.Register(&mockConsumer{
		eventTypes: []string{"fieldops.task.overdue"},
	})

	types := registry.GetAllEventTypes()
	assert.Len(t, types, 3)
	assert.Contains(t, types, "fieldops.job.created")
	assert.Contains(t, types, "fieldops.job.completed")
	assert.Contains(t, types, "fieldops.task.overdue")
}

func TestConsumerRegistry_ConsumerCount(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	registry := eventbus.NewConsumerRegistry(logger)

	assert.Equal(t, 0, registry.ConsumerCount())

	registry.Register(&mockConsumer{
		eventTypes: []string{"fieldops.job.created", "fieldops.job.completed"},
	})

	// One consumer registered under two event types
	assert.Equal(t, 2, registry.ConsumerCount())
}
