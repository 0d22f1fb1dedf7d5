// Package memory provides mutex-guarded in-memory implementations of the
// repository interfaces, used for single-node deployments and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/king-ai/king/internal/domain"
	"github.com/king-ai/king/internal/repository"
)

// AgentRepo is an in-memory repository.AgentRepository.
type AgentRepo struct {
	mu     sync.RWMutex
	agents map[uuid.UUID]*domain.Agent
}

// NewAgentRepo creates an empty agent repository.
func NewAgentRepo() *AgentRepo {
	return &AgentRepo{agents: make(map[uuid.UUID]*domain.Agent)}
}

func (r *AgentRepo) Create(_ context.Context, agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = cloneAgent(agent)
	return nil
}

func (r *AgentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAgent(agent), nil
}

func (r *AgentRepo) List(_ context.Context, limit, offset int) ([]*domain.Agent, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	total := len(all)
	page := paginate(all, limit, offset)
	out := make([]*domain.Agent, len(page))
	for i, a := range page {
		out[i] = cloneAgent(a)
	}
	return out, total, nil
}

func (r *AgentRepo) ListByStatus(_ context.Context, status domain.AgentStatus) ([]*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Agent
	for _, a := range r.agents {
		if a.Status == status {
			out = append(out, cloneAgent(a))
		}
	}
	return out, nil
}

func (r *AgentRepo) ListAvailable(_ context.Context) ([]*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Agent
	for _, a := range r.agents {
		if a.Available() {
			out = append(out, cloneAgent(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *AgentRepo) Update(_ context.Context, agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[agent.ID]; !ok {
		return repository.ErrNotFound
	}
	agent.UpdatedAt = time.Now().UTC()
	r.agents[agent.ID] = cloneAgent(agent)
	return nil
}

func (r *AgentRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.agents, id)
	return nil
}

// TaskRepo is an in-memory repository.TaskRepository.
type TaskRepo struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

// NewTaskRepo creates an empty task repository.
func NewTaskRepo() *TaskRepo {
	return &TaskRepo{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (r *TaskRepo) Create(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = cloneTask(task)
	return nil
}

func (r *TaskRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTask(task), nil
}

func (r *TaskRepo) List(_ context.Context, limit, offset int) ([]*domain.Task, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	total := len(all)
	page := paginate(all, limit, offset)
	out := make([]*domain.Task, len(page))
	for i, t := range page {
		out[i] = cloneTask(t)
	}
	return out, total, nil
}

func (r *TaskRepo) ListByStatus(_ context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Task
	for _, t := range r.tasks {
		if t.Status == status {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *TaskRepo) ListByAgent(_ context.Context, agentID uuid.UUID) ([]*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Task
	for _, t := range r.tasks {
		if t.AssignedAgent != nil && *t.AssignedAgent == agentID {
			out = append(out, cloneTask(t))
		}
	}
	return out, nil
}

func (r *TaskRepo) Update(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID]; !ok {
		return repository.ErrNotFound
	}
	r.tasks[task.ID] = cloneTask(task)
	return nil
}

// ConversationRepo is an in-memory repository.ConversationRepository.
type ConversationRepo struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*domain.Conversation
	maxMessages   int
}

// NewConversationRepo creates an empty conversation repository. Each
// conversation keeps at most maxMessages recent messages (0 means
// unbounded).
func NewConversationRepo(maxMessages int) *ConversationRepo {
	return &ConversationRepo{
		conversations: make(map[uuid.UUID]*domain.Conversation),
		maxMessages:   maxMessages,
	}
}

func (r *ConversationRepo) Create(_ context.Context, conv *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (r *ConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (r *ConversationRepo) List(_ context.Context, limit, offset int) ([]*domain.Conversation, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Conversation, 0, len(r.conversations))
	for _, c := range r.conversations {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	total := len(all)
	page := paginate(all, limit, offset)
	out := make([]*domain.Conversation, len(page))
	for i, c := range page {
		out[i] = cloneConversation(c)
	}
	return out, total, nil
}

func (r *ConversationRepo) AppendMessage(_ context.Context, convID uuid.UUID, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[convID]
	if !ok {
		return repository.ErrNotFound
	}
	conv.Append(msg)

	// Trim old messages, keeping the most recent ones.
	if r.maxMessages > 0 && len(conv.Messages) > r.maxMessages {
		conv.Messages = conv.Messages[len(conv.Messages)-r.maxMessages:]
	}
	return nil
}

// Clones keep callers from mutating stored state through shared pointers.

func cloneAgent(a *domain.Agent) *domain.Agent {
	c := *a
	c.Capabilities = make(map[string]any, len(a.Capabilities))
	for k, v := range a.Capabilities {
		c.Capabilities[k] = v
	}
	c.Metadata = make(map[string]string, len(a.Metadata))
	for k, v := range a.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.Payload = make(map[string]any, len(t.Payload))
	for k, v := range t.Payload {
		c.Payload[k] = v
	}
	if t.Result != nil {
		c.Result = make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			c.Result[k] = v
		}
	}
	c.Metadata = make(map[string]string, len(t.Metadata))
	for k, v := range t.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

func cloneConversation(conv *domain.Conversation) *domain.Conversation {
	c := *conv
	c.Messages = make([]*domain.Message, len(conv.Messages))
	for i, m := range conv.Messages {
		mc := *m
		c.Messages[i] = &mc
	}
	c.Context = make(map[string]string, len(conv.Context))
	for k, v := range conv.Context {
		c.Context[k] = v
	}
	return &c
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Interface checks
var (
	_ repository.AgentRepository        = (*AgentRepo)(nil)
	_ repository.TaskRepository         = (*TaskRepo)(nil)
	_ repository.ConversationRepository = (*ConversationRepo)(nil)
)
