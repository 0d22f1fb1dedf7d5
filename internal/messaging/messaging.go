// Package messaging provides task queue and event bus abstractions with
// RabbitMQ, Redis and in-process implementations.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/king-ai/king/internal/domain"
)

// ErrQueueClosed is returned by Publish on a queue that has been closed.
var ErrQueueClosed = errors.New("queue closed")

// Handler processes a single message payload. Returning an error causes the
// message to be redelivered where the backend supports it.
type Handler func(ctx context.Context, payload []byte) error

// Queue is a work queue for task dispatch
type Queue interface {
	// Publish enqueues a message
	Publish(ctx context.Context, payload []byte) error

	// Consume runs workerCount workers calling handler for each message
	// until ctx is cancelled
	Consume(ctx context.Context, workerCount int, handler Handler) error

	// Close releases broker resources
	Close() error
}

// EventHandler receives domain events from an EventBus subscription
type EventHandler func(ctx context.Context, event domain.Event)

// EventBus is a fan-out publish/subscribe channel for domain events
type EventBus interface {
	// Publish delivers an event to all subscribers of its type
	Publish(ctx context.Context, event domain.Event) error

	// Subscribe registers a handler for the given event type. Use "*" to
	// receive all events.
	Subscribe(eventType string, handler EventHandler)

	// Close releases broker resources
	Close() error
}

// EncodeEvent serializes an event for transport
func EncodeEvent(event domain.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

// DecodeEvent deserializes an event from transport
func DecodeEvent(data []byte) (domain.Event, error) {
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}
