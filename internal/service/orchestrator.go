package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/king-ai/king/internal/domain"
	"github.com/king-ai/king/internal/messaging"
	"github.com/king-ai/king/internal/metrics"
	"github.com/king-ai/king/internal/repository"
)

// AgentOrchestrator manages the agent registry and task assignment
type AgentOrchestrator struct {
	agents  repository.AgentRepository
	tasks   repository.TaskRepository
	bus     messaging.EventBus
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAgentOrchestrator creates a new orchestrator
func NewAgentOrchestrator(
	agents repository.AgentRepository,
	tasks repository.TaskRepository,
	bus messaging.EventBus,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AgentOrchestrator {
	return &AgentOrchestrator{
		agents:  agents,
		tasks:   tasks,
		bus:     bus,
		metrics: m,
		logger:  logger,
	}
}

// CreateAgent registers a new agent and activates it
func (o *AgentOrchestrator) CreateAgent(ctx context.Context, name string, agentType domain.AgentType, capabilities map[string]any) (*domain.Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !domain.ValidAgentType(agentType) {
		return nil, fmt.Errorf("%w: unknown agent type %q", ErrInvalidInput, agentType)
	}

	agent := domain.NewAgent(name, agentType)
	for k, v := range capabilities {
		agent.Capabilities[k] = v
	}
	agent.ChangeStatus(domain.AgentActive)

	if err := o.agents.Create(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	o.publish(ctx, domain.NewEvent(domain.EventAgentCreated, map[string]any{
		"agent_id": agent.ID.String(),
		"name":     agent.Name,
		"type":     string(agent.Type),
	}))
	o.logger.Info("agent created", "agent_id", agent.ID, "name", agent.Name, "type", agent.Type)

	return agent, nil
}

// GetAgent retrieves an agent by ID
func (o *AgentOrchestrator) GetAgent(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	return o.agents.GetByID(ctx, id)
}

// ListAgents retrieves agents with pagination
func (o *AgentOrchestrator) ListAgents(ctx context.Context, limit, offset int) ([]*domain.Agent, int, error) {
	return o.agents.List(ctx, limit, offset)
}

// DeleteAgent removes an agent from the registry
func (o *AgentOrchestrator) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	return o.agents.Delete(ctx, id)
}

// UpdateAgentStatus moves an agent to a new status
func (o *AgentOrchestrator) UpdateAgentStatus(ctx context.Context, id uuid.UUID, status domain.AgentStatus) (*domain.Agent, error) {
	if !domain.ValidAgentStatus(status) {
		return nil, fmt.Errorf("%w: unknown agent status %q", ErrInvalidInput, status)
	}

	agent, err := o.agents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := agent.Status
	agent.ChangeStatus(status)

	if err := o.agents.Update(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to update agent: %w", err)
	}

	if previous != status {
		o.publish(ctx, domain.NewEvent(domain.EventAgentStatusChanged, map[string]any{
			"agent_id": agent.ID.String(),
			"from":     string(previous),
			"to":       string(status),
		}))
	}
	return agent, nil
}

// FindAvailableAgent returns an available agent that has all the required
// capabilities, or ErrNotFound when none qualifies
func (o *AgentOrchestrator) FindAvailableAgent(ctx context.Context, capabilities []string) (*domain.Agent, error) {
	available, err := o.agents.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	for _, agent := range available {
		if hasAll(agent, capabilities) {
			return agent, nil
		}
	}
	return nil, repository.ErrNotFound
}

func hasAll(agent *domain.Agent, capabilities []string) bool {
	for _, c := range capabilities {
		if !agent.HasCapability(c) {
			return false
		}
	}
	return true
}

// AssignTask binds a task to an agent and marks the agent busy
func (o *AgentOrchestrator) AssignTask(ctx context.Context, task *domain.Task, agent *domain.Agent) error {
	if !agent.Available() {
		return fmt.Errorf("agent %s is not available", agent.ID)
	}
	if err := task.Assign(agent.ID); err != nil {
		return err
	}
	if err := o.tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	agent.ChangeStatus(domain.AgentBusy)
	if err := o.agents.Update(ctx, agent); err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}

	o.publish(ctx, domain.NewEvent(domain.EventTaskAssigned, map[string]any{
		"task_id":  task.ID.String(),
		"agent_id": agent.ID.String(),
	}))
	o.metrics.ObserveTask(string(task.Type), string(task.Status))

	return nil
}

// ReleaseAgent returns a busy agent to the idle pool
func (o *AgentOrchestrator) ReleaseAgent(ctx context.Context, agentID uuid.UUID) error {
	agent, err := o.agents.GetByID(ctx, agentID)
	if err != nil {
		return err
	}
	agent.ChangeStatus(domain.AgentIdle)
	if err := o.agents.Update(ctx, agent); err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	return nil
}

func (o *AgentOrchestrator) publish(ctx context.Context, event domain.Event) {
	if err := o.bus.Publish(ctx, event); err != nil {
		o.logger.Warn("failed to publish event", "type", event.Type, "error", err)
		return
	}
	o.metrics.ObserveEvent(event.Type)
}
