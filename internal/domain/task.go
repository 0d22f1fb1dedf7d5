package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskCreated    TaskStatus = "created"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// TaskType describes the work a task carries.
type TaskType string

const (
	TaskLLMGeneration  TaskType = "llm_generation"
	TaskRAGQuery       TaskType = "rag_query"
	TaskDataProcessing TaskType = "data_processing"
	TaskMultimodal     TaskType = "multimodal"
	TaskCustom         TaskType = "custom"
)

// ValidTaskType reports whether t names a known type.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskLLMGeneration, TaskRAGQuery, TaskDataProcessing, TaskMultimodal, TaskCustom:
		return true
	}
	return false
}

// Task represents a unit of work to be executed by an agent.
type Task struct {
	ID            uuid.UUID         `json:"id"`
	Type          TaskType          `json:"type"`
	Status        TaskStatus        `json:"status"`
	Payload       map[string]any    `json:"payload"`
	AssignedAgent *uuid.UUID        `json:"assigned_agent,omitempty"`
	Result        map[string]any    `json:"result,omitempty"`
	Error         string            `json:"error,omitempty"`
	Metadata      map[string]string `json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// NewTask creates a task in the created state.
func NewTask(taskType TaskType, payload map[string]any) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		Type:      taskType,
		Status:    TaskCreated,
		Payload:   payload,
		Metadata:  make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Assign binds the task to an agent. Only a freshly created task can be
// assigned.
func (t *Task) Assign(agentID uuid.UUID) error {
	if t.Status != TaskCreated {
		return fmt.Errorf("task %s cannot be assigned in status %s", t.ID, t.Status)
	}
	t.AssignedAgent = &agentID
	t.Status = TaskAssigned
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Start marks the task in progress.
func (t *Task) Start() error {
	if t.Status != TaskAssigned && t.Status != TaskCreated {
		return fmt.Errorf("task %s cannot start in status %s", t.ID, t.Status)
	}
	now := time.Now().UTC()
	t.Status = TaskInProgress
	t.StartedAt = &now
	t.UpdatedAt = now
	return nil
}

// Complete records a successful result.
func (t *Task) Complete(result map[string]any) error {
	if t.Status != TaskInProgress {
		return fmt.Errorf("task %s cannot complete in status %s", t.ID, t.Status)
	}
	now := time.Now().UTC()
	t.Status = TaskCompleted
	t.Result = result
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// Fail records a terminal failure.
func (t *Task) Fail(reason string) error {
	if t.Status == TaskCompleted || t.Status == TaskCancelled {
		return fmt.Errorf("task %s cannot fail in status %s", t.ID, t.Status)
	}
	now := time.Now().UTC()
	t.Status = TaskFailed
	t.Error = reason
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// Cancel aborts a task that has not finished.
func (t *Task) Cancel() error {
	if t.Status == TaskCompleted || t.Status == TaskFailed || t.Status == TaskCancelled {
		return fmt.Errorf("task %s cannot be cancelled in status %s", t.ID, t.Status)
	}
	t.Status = TaskCancelled
	t.UpdatedAt = time.Now().UTC()
	return nil
}
