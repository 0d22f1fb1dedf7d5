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

// TaskRepo implements repository.TaskRepository
type TaskRepo struct {
	db *DB
}

// NewTaskRepo creates a new task repository
func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// Create creates a new task
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	payloadJSON, resultJSON, metadataJSON, err := marshalTask(task)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, type, status, payload, assigned_agent, result, error_message, metadata,
		                   created_at, updated_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		task.ID, task.Type, task.Status, payloadJSON, task.AssignedAgent,
		resultJSON, task.Error, metadataJSON,
		task.CreatedAt, task.UpdatedAt, task.StartedAt, task.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by ID
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT id, type, status, payload, assigned_agent, result, error_message, metadata,
		       created_at, updated_at, started_at, completed_at
		FROM tasks
		WHERE id = $1
	`
	var task domain.Task
	var payloadJSON, resultJSON, metadataJSON []byte

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&task.ID, &task.Type, &task.Status, &payloadJSON, &task.AssignedAgent,
		&resultJSON, &task.Error, &metadataJSON,
		&task.CreatedAt, &task.UpdatedAt, &task.StartedAt, &task.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if err := unmarshalTask(&task, payloadJSON, resultJSON, metadataJSON); err != nil {
		return nil, err
	}
	return &task, nil
}

// List retrieves tasks with pagination
func (r *TaskRepo) List(ctx context.Context, limit, offset int) ([]*domain.Task, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	query := `
		SELECT id, type, status, payload, assigned_agent, result, error_message, metadata,
		       created_at, updated_at, started_at, completed_at
		FROM tasks
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	tasks, err := r.queryTasks(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// ListByStatus retrieves all tasks in the given status
func (r *TaskRepo) ListByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	query := `
		SELECT id, type, status, payload, assigned_agent, result, error_message, metadata,
		       created_at, updated_at, started_at, completed_at
		FROM tasks
		WHERE status = $1
		ORDER BY created_at
	`
	return r.queryTasks(ctx, query, status)
}

// ListByAgent retrieves all tasks assigned to an agent
func (r *TaskRepo) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT id, type, status, payload, assigned_agent, result, error_message, metadata,
		       created_at, updated_at, started_at, completed_at
		FROM tasks
		WHERE assigned_agent = $1
		ORDER BY created_at DESC
	`
	return r.queryTasks(ctx, query, agentID)
}

func (r *TaskRepo) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		var task domain.Task
		var payloadJSON, resultJSON, metadataJSON []byte
		if err := rows.Scan(&task.ID, &task.Type, &task.Status, &payloadJSON, &task.AssignedAgent,
			&resultJSON, &task.Error, &metadataJSON,
			&task.CreatedAt, &task.UpdatedAt, &task.StartedAt, &task.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if err := unmarshalTask(&task, payloadJSON, resultJSON, metadataJSON); err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

// Update updates a task
func (r *TaskRepo) Update(ctx context.Context, task *domain.Task) error {
	payloadJSON, resultJSON, metadataJSON, err := marshalTask(task)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET type = $2, status = $3, payload = $4, assigned_agent = $5, result = $6,
		    error_message = $7, metadata = $8, updated_at = NOW(), started_at = $9, completed_at = $10
		WHERE id = $1
	`
	result, err := r.db.Pool.Exec(ctx, query,
		task.ID, task.Type, task.Status, payloadJSON, task.AssignedAgent,
		resultJSON, task.Error, metadataJSON, task.StartedAt, task.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func marshalTask(task *domain.Task) (payload, result, metadata []byte, err error) {
	payload, err = json.Marshal(task.Payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	result, err = json.Marshal(task.Result)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	metadata, err = json.Marshal(task.Metadata)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return payload, result, metadata, nil
}

func unmarshalTask(task *domain.Task, payloadJSON, resultJSON, metadataJSON []byte) error {
	task.Payload = make(map[string]any)
	if err := json.Unmarshal(payloadJSON, &task.Payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if len(resultJSON) > 0 && string(resultJSON) != "null" {
		task.Result = make(map[string]any)
		if err := json.Unmarshal(resultJSON, &task.Result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	task.Metadata = make(map[string]string)
	if err := json.Unmarshal(metadataJSON, &task.Metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return nil
}

// Ensure TaskRepo implements the interface
var _ repository.TaskRepository = (*TaskRepo)(nil)
