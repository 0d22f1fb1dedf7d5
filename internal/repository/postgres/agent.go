package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/king-ai/king/internal/domain"
	"github.com/king-ai/king/internal/repository"
)

// AgentRepo implements repository.AgentRepository
type AgentRepo struct {
	db *DB
}

// NewAgentRepo creates a new agent repository
func NewAgentRepo(db *DB) *AgentRepo {
	return &AgentRepo{db: db}
}

// Create creates a new agent
func (r *AgentRepo) Create(ctx context.Context, agent *domain.Agent) error {
	capsJSON, err := json.Marshal(agent.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}
	metadataJSON, err := json.Marshal(agent.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO agents (id, name, type, status, capabilities, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		agent.ID, agent.Name, agent.Type, agent.Status,
		capsJSON, metadataJSON, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// GetByID retrieves an agent by ID
func (r *AgentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	query := `
		SELECT id, name, type, status, capabilities, metadata, created_at, updated_at
		FROM agents
		WHERE id = $1
	`
	var agent domain.Agent
	var capsJSON, metadataJSON []byte

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&agent.ID, &agent.Name, &agent.Type, &agent.Status,
		&capsJSON, &metadataJSON, &agent.CreatedAt, &agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	if err := unmarshalAgent(&agent, capsJSON, metadataJSON); err != nil {
		return nil, err
	}
	return &agent, nil
}

// List retrieves agents with pagination
func (r *AgentRepo) List(ctx context.Context, limit, offset int) ([]*domain.Agent, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM agents`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count agents: %w", err)
	}

	query := `
		SELECT id, name, type, status, capabilities, metadata, created_at, updated_at
		FROM agents
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	agents, err := r.queryAgents(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return agents, total, nil
}

// ListByStatus retrieves all agents in the given status
func (r *AgentRepo) ListByStatus(ctx context.Context, status domain.AgentStatus) ([]*domain.Agent, error) {
	query := `
		SELECT id, name, type, status, capabilities, metadata, created_at, updated_at
		FROM agents
		WHERE status = $1
		ORDER BY created_at DESC
	`
	return r.queryAgents(ctx, query, status)
}

// ListAvailable retrieves agents able to accept work
func (r *AgentRepo) ListAvailable(ctx context.Context) ([]*domain.Agent, error) {
	query := `
		SELECT id, name, type, status, capabilities, metadata, created_at, updated_at
		FROM agents
		WHERE status = ANY($1)
		ORDER BY created_at DESC
	`
	return r.queryAgents(ctx, query, []string{string(domain.AgentActive), string(domain.AgentIdle)})
}

func (r *AgentRepo) queryAgents(ctx context.Context, query string, args ...any) ([]*domain.Agent, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*domain.Agent
	for rows.Next() {
		var agent domain.Agent
		var capsJSON, metadataJSON []byte
		if err := rows.Scan(&agent.ID, &agent.Name, &agent.Type, &agent.Status,
			&capsJSON, &metadataJSON, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		if err := unmarshalAgent(&agent, capsJSON, metadataJSON); err != nil {
			return nil, err
		}
		agents = append(agents, &agent)
	}
	return agents, nil
}

func unmarshalAgent(agent *domain.Agent, capsJSON, metadataJSON []byte) error {
	agent.Capabilities = make(map[string]any)
	if err := json.Unmarshal(capsJSON, &agent.Capabilities); err != nil {
		return fmt.Errorf("failed to unmarshal capabilities: %w", err)
	}
	agent.Metadata = make(map[string]string)
	if err := json.Unmarshal(metadataJSON, &agent.Metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return nil
}

// Update updates an agent
func (r *AgentRepo) Update(ctx context.Context, agent *domain.Agent) error {
	capsJSON, err := json.Marshal(agent.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}
	metadataJSON, err := json.Marshal(agent.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE agents
		SET name = $2, type = $3, status = $4, capabilities = $5, metadata = $6, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Pool.Exec(ctx, query,
		agent.ID, agent.Name, agent.Type, agent.Status, capsJSON, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes an agent
func (r *AgentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure AgentRepo implements the interface
var _ repository.AgentRepository = (*AgentRepo)(nil)
