package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/king-ai/king/internal/domain"
	"github.com/king-ai/king/internal/repository"
)

func TestAgentRepoCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewAgentRepo()

	agent := domain.NewAgent("worker", domain.AgentTypeLLM)
	if err := repo.Create(ctx, agent); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, agent.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "worker" {
		t.Errorf("Name = %q", got.Name)
	}

	// Mutating the returned copy must not touch the stored agent.
	got.Name = "mutated"
	again, _ := repo.GetByID(ctx, agent.ID)
	if again.Name != "worker" {
		t.Error("repository returned a shared reference, want a copy")
	}

	agent.ChangeStatus(domain.AgentActive)
	if err := repo.Update(ctx, agent); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	updated, _ := repo.GetByID(ctx, agent.ID)
	if updated.Status != domain.AgentActive {
		t.Errorf("Status = %s, want active", updated.Status)
	}

	if err := repo.Delete(ctx, agent.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, agent.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, agent.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestAgentRepoListPagination(t *testing.T) {
	ctx := context.Background()
	repo := NewAgentRepo()

	for i := 0; i < 5; i++ {
		agent := domain.NewAgent("a", domain.AgentTypeLLM)
		agent.CreatedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if err := repo.Create(ctx, agent); err != nil {
			t.Fatal(err)
		}
	}

	page, total, err := repo.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if !page[0].CreatedAt.Before(page[1].CreatedAt) {
		t.Error("page not ordered by creation time")
	}

	tail, _, err := repo.List(ctx, 10, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 1 {
		t.Errorf("tail page size = %d, want 1", len(tail))
	}

	empty, _, err := repo.List(ctx, 10, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("out-of-range page size = %d, want 0", len(empty))
	}
}

func TestAgentRepoListAvailable(t *testing.T) {
	ctx := context.Background()
	repo := NewAgentRepo()

	active := domain.NewAgent("active", domain.AgentTypeLLM)
	active.ChangeStatus(domain.AgentActive)
	busy := domain.NewAgent("busy", domain.AgentTypeLLM)
	busy.ChangeStatus(domain.AgentBusy)
	for _, a := range []*domain.Agent{active, busy} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	available, err := repo.ListAvailable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != 1 || available[0].Name != "active" {
		t.Fatalf("ListAvailable() = %v, want only the active agent", available)
	}
}

func TestTaskRepoByStatusAndAgent(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepo()

	agentID := uuid.New()
	assigned := domain.NewTask(domain.TaskLLMGeneration, nil)
	if err := assigned.Assign(agentID); err != nil {
		t.Fatal(err)
	}
	pending := domain.NewTask(domain.TaskRAGQuery, nil)

	for _, task := range []*domain.Task{assigned, pending} {
		if err := repo.Create(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	created, err := repo.ListByStatus(ctx, domain.TaskCreated)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 || created[0].ID != pending.ID {
		t.Fatalf("ListByStatus(created) = %v", created)
	}

	byAgent, err := repo.ListByAgent(ctx, agentID)
	if err != nil {
		t.Fatal(err)
	}
	if len(byAgent) != 1 || byAgent[0].ID != assigned.ID {
		t.Fatalf("ListByAgent() = %v", byAgent)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetByID(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestConversationRepoAppend(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepo(0)

	conv := domain.NewConversation()
	if err := repo.Create(ctx, conv); err != nil {
		t.Fatal(err)
	}

	msg := domain.NewMessage("user", "hello")
	if err := repo.AppendMessage(ctx, conv.ID, msg); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	got, err := repo.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Fatalf("Messages = %v", got.Messages)
	}
	if got.Messages[0].ConversationID != conv.ID {
		t.Error("message not stamped with conversation ID")
	}

	if err := repo.AppendMessage(ctx, uuid.New(), msg); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("AppendMessage(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestConversationRepoTrimsHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepo(3)

	conv := domain.NewConversation()
	if err := repo.Create(ctx, conv); err != nil {
		t.Fatal(err)
	}
	for _, content := range []string{"1", "2", "3", "4", "5"} {
		if err := repo.AppendMessage(ctx, conv.ID, domain.NewMessage("user", content)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("kept %d messages, want 3", len(got.Messages))
	}
	if got.Messages[0].Content != "3" || got.Messages[2].Content != "5" {
		t.Errorf("kept wrong window: %v", got.Messages)
	}
}
