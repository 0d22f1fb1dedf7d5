package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/king-ai/king/internal/domain"
	"github.com/king-ai/king/internal/llm"
	"github.com/king-ai/king/internal/messaging"
	"github.com/king-ai/king/internal/metrics"
	"github.com/king-ai/king/internal/repository"
)

// Capabilities required by each executable task type.
var taskCapabilities = map[domain.TaskType][]string{
	domain.TaskLLMGeneration: {"llm"},
	domain.TaskRAGQuery:      {"rag"},
}

// TaskScheduler creates tasks, dispatches them through the queue and
// executes them on available agents
type TaskScheduler struct {
	tasks        repository.TaskRepository
	orchestrator *AgentOrchestrator
	llm          *LLMService
	rag          *RAGService
	queue        messaging.Queue
	bus          messaging.EventBus
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewTaskScheduler creates a new scheduler
func NewTaskScheduler(
	tasks repository.TaskRepository,
	orchestrator *AgentOrchestrator,
	llmSvc *LLMService,
	rag *RAGService,
	queue messaging.Queue,
	bus messaging.EventBus,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TaskScheduler {
	return &TaskScheduler{
		tasks:        tasks,
		orchestrator: orchestrator,
		llm:          llmSvc,
		rag:          rag,
		queue:        queue,
		bus:          bus,
		metrics:      m,
		logger:       logger,
	}
}

// CreateTask stores a new task and enqueues it for execution
func (s *TaskScheduler) CreateTask(ctx context.Context, taskType domain.TaskType, payload map[string]any) (*domain.Task, error) {
	if !domain.ValidTaskType(taskType) {
		return nil, fmt.Errorf("%w: unknown task type %q", ErrInvalidInput, taskType)
	}
	if payload == nil {
		payload = make(map[string]any)
	}

	task := domain.NewTask(taskType, payload)
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.publish(ctx, domain.NewEvent(domain.EventTaskCreated, map[string]any{
		"task_id": task.ID.String(),
		"type":    string(task.Type),
	}))
	s.metrics.ObserveTask(string(task.Type), string(task.Status))

	if err := s.queue.Publish(ctx, []byte(task.ID.String())); err != nil {
		s.logger.Warn("failed to enqueue task", "task_id", task.ID, "error", err)
	}

	return task, nil
}

// GetTask retrieves a task by ID
func (s *TaskScheduler) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.tasks.GetByID(ctx, id)
}

// ListTasks retrieves tasks with pagination
func (s *TaskScheduler) ListTasks(ctx context.Context, limit, offset int) ([]*domain.Task, int, error) {
	return s.tasks.List(ctx, limit, offset)
}

// Schedule assigns a created task to an available agent and executes it.
// Tasks with no qualifying agent stay in the created state for a later pass.
func (s *TaskScheduler) Schedule(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskCreated {
		return task, nil
	}

	agent, err := s.orchestrator.FindAvailableAgent(ctx, taskCapabilities[task.Type])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("no available agent for task", "task_id", task.ID, "type", task.Type)
			return task, nil
		}
		return nil, err
	}

	if err := s.orchestrator.AssignTask(ctx, task, agent); err != nil {
		return nil, err
	}
	if err := s.execute(ctx, task); err != nil {
		return nil, err
	}
	if err := s.orchestrator.ReleaseAgent(ctx, agent.ID); err != nil {
		s.logger.Warn("failed to release agent", "agent_id", agent.ID, "error", err)
	}
	return task, nil
}

// ScheduleAllPending tries to schedule every task still in the created state
func (s *TaskScheduler) ScheduleAllPending(ctx context.Context) (int, error) {
	pending, err := s.tasks.ListByStatus(ctx, domain.TaskCreated)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, task := range pending {
		updated, err := s.Schedule(ctx, task.ID)
		if err != nil {
			s.logger.Warn("failed to schedule task", "task_id", task.ID, "error", err)
			continue
		}
		if updated.Status != domain.TaskCreated {
			scheduled++
		}
	}
	return scheduled, nil
}

// Run consumes the task queue until ctx is cancelled
func (s *TaskScheduler) Run(ctx context.Context, workerCount int) error {
	return s.queue.Consume(ctx, workerCount, func(ctx context.Context, payload []byte) error {
		taskID, err := uuid.Parse(string(payload))
		if err != nil {
			s.logger.Warn("dropping malformed task message", "payload", string(payload))
			return nil
		}
		if _, err := s.Schedule(ctx, taskID); err != nil {
			s.logger.Error("task scheduling failed", "task_id", taskID, "error", err)
			return err
		}
		return nil
	})
}

// execute runs the task body and records the outcome. Execution failures are
// captured on the task, not returned; only persistence errors propagate.
func (s *TaskScheduler) execute(ctx context.Context, task *domain.Task) error {
	if err := task.Start(); err != nil {
		return err
	}
	if err := s.tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	result, execErr := s.executeByType(ctx, task)
	if execErr != nil {
		if err := task.Fail(execErr.Error()); err != nil {
			return err
		}
		if err := s.tasks.Update(ctx, task); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		s.publish(ctx, domain.NewEvent(domain.EventTaskFailed, map[string]any{
			"task_id": task.ID.String(),
			"error":   execErr.Error(),
		}))
		s.metrics.ObserveTask(string(task.Type), string(task.Status))
		return nil
	}

	if err := task.Complete(result); err != nil {
		return err
	}
	if err := s.tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	s.publish(ctx, domain.NewEvent(domain.EventTaskCompleted, map[string]any{
		"task_id": task.ID.String(),
	}))
	s.metrics.ObserveTask(string(task.Type), string(task.Status))
	return nil
}

func (s *TaskScheduler) executeByType(ctx context.Context, task *domain.Task) (map[string]any, error) {
	switch task.Type {
	case domain.TaskLLMGeneration:
		return s.executeGeneration(ctx, task)
	case domain.TaskRAGQuery:
		return s.executeRAGQuery(ctx, task)
	default:
		return nil, fmt.Errorf("task type %s is not executable", task.Type)
	}
}

func (s *TaskScheduler) executeGeneration(ctx context.Context, task *domain.Task) (map[string]any, error) {
	prompt, _ := task.Payload["prompt"].(string)
	opts := optionsFromPayload(task.Payload)

	result, err := s.llm.Generate(ctx, prompt, nil, opts)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"content":       result.Content,
		"model":         result.Model,
		"finish_reason": string(result.FinishReason),
	}
	if result.Usage != nil {
		out["total_tokens"] = result.Usage.TotalTokens
	}
	return out, nil
}

func (s *TaskScheduler) executeRAGQuery(ctx context.Context, task *domain.Task) (map[string]any, error) {
	query, _ := task.Payload["query"].(string)
	collection, _ := task.Payload["collection"].(string)
	topK := intFromPayload(task.Payload, "top_k")

	result, sources, err := s.rag.GenerateWithContext(ctx, collection, query, topK, optionsFromPayload(task.Payload))
	if err != nil {
		return nil, err
	}

	sourceIDs := make([]any, 0, len(sources))
	for _, src := range sources {
		sourceIDs = append(sourceIDs, src.ID)
	}
	return map[string]any{
		"content": result.Content,
		"model":   result.Model,
		"sources": sourceIDs,
	}, nil
}

func optionsFromPayload(payload map[string]any) llm.GenerateOptions {
	opts := llm.GenerateOptions{}
	if v, ok := payload["model"].(string); ok {
		opts.Model = v
	}
	if v, ok := payload["system_prompt"].(string); ok {
		opts.SystemPrompt = v
	}
	if v, ok := payload["temperature"].(float64); ok {
		opts.Temperature = float32(v)
	}
	opts.MaxTokens = intFromPayload(payload, "max_tokens")
	return opts
}

// intFromPayload handles both float64 (JSON decoded) and int values
func intFromPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (s *TaskScheduler) publish(ctx context.Context, event domain.Event) {
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "type", event.Type, "error", err)
		return
	}
	s.metrics.ObserveEvent(event.Type)
}
