// Package repository defines data access interfaces for agents, tasks and
// conversations.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/king-ai/king/internal/domain"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// AgentRepository defines operations for agent persistence
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Agent, int, error)
	ListByStatus(ctx context.Context, status domain.AgentStatus) ([]*domain.Agent, error)
	ListAvailable(ctx context.Context) ([]*domain.Agent, error)
	Update(ctx context.Context, agent *domain.Agent) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// TaskRepository defines operations for task persistence
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Task, int, error)
	ListByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
}

// ConversationRepository defines operations for conversation persistence
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Conversation, int, error)
	AppendMessage(ctx context.Context, convID uuid.UUID, msg *domain.Message) error
}
