package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event type names published by the services.
const (
	EventAgentCreated       = "agent.created"
	EventAgentStatusChanged = "agent.status_changed"
	EventTaskCreated        = "task.created"
	EventTaskAssigned       = "task.assigned"
	EventTaskCompleted      = "task.completed"
	EventTaskFailed         = "task.failed"
	EventMessageProcessed   = "message.processed"
	EventLLMGeneration      = "llm.generation"
)

// Event is a domain event carried over the event bus.
type Event struct {
	Type          string         `json:"type"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// NewEvent creates an event stamped with the current time and a fresh
// correlation ID.
func NewEvent(eventType string, payload map[string]any) Event {
	return Event{
		Type:          eventType,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
