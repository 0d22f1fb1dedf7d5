// Package domain defines the core entities of the agent service: agents,
// tasks, conversations and domain events.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	AgentCreated AgentStatus = "created"
	AgentActive  AgentStatus = "active"
	AgentIdle    AgentStatus = "idle"
	AgentBusy    AgentStatus = "busy"
	AgentError   AgentStatus = "error"
	AgentStopped AgentStatus = "stopped"
)

// ValidAgentStatus reports whether s names a known status.
func ValidAgentStatus(s AgentStatus) bool {
	switch s {
	case AgentCreated, AgentActive, AgentIdle, AgentBusy, AgentError, AgentStopped:
		return true
	}
	return false
}

// AgentType describes what kind of work an agent performs.
type AgentType string

const (
	AgentTypeLLM          AgentType = "llm"
	AgentTypeTaskExecutor AgentType = "task_executor"
	AgentTypeOrchestrator AgentType = "orchestrator"
	AgentTypeRAG          AgentType = "rag"
	AgentTypeMultimodal   AgentType = "multimodal"
)

// ValidAgentType reports whether t names a known type.
func ValidAgentType(t AgentType) bool {
	switch t {
	case AgentTypeLLM, AgentTypeTaskExecutor, AgentTypeOrchestrator, AgentTypeRAG, AgentTypeMultimodal:
		return true
	}
	return false
}

// Agent represents an AI agent registered in the system.
type Agent struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Type         AgentType         `json:"type"`
	Status       AgentStatus       `json:"status"`
	Capabilities map[string]any    `json:"capabilities"`
	Metadata     map[string]string `json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewAgent creates an agent in the created state.
func NewAgent(name string, agentType AgentType) *Agent {
	now := time.Now().UTC()
	return &Agent{
		ID:           uuid.New(),
		Name:         name,
		Type:         agentType,
		Status:       AgentCreated,
		Capabilities: make(map[string]any),
		Metadata:     make(map[string]string),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ChangeStatus moves the agent to a new status. Same-status changes are a
// no-op.
func (a *Agent) ChangeStatus(status AgentStatus) {
	if a.Status == status {
		return
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
}

// HasCapability reports whether the agent advertises the named capability.
func (a *Agent) HasCapability(name string) bool {
	_, ok := a.Capabilities[name]
	return ok
}

// Available reports whether the agent can accept a task.
func (a *Agent) Available() bool {
	return a.Status == AgentActive || a.Status == AgentIdle
}
