package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestTaskLifecycle(t *testing.T) {
	task := NewTask(TaskLLMGeneration, map[string]any{"prompt": "hi"})
	if task.Status != TaskCreated {
		t.Fatalf("new task status = %s, want created", task.Status)
	}

	agentID := uuid.New()
	if err := task.Assign(agentID); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if task.Status != TaskAssigned || task.AssignedAgent == nil || *task.AssignedAgent != agentID {
		t.Fatalf("after Assign: status = %s, agent = %v", task.Status, task.AssignedAgent)
	}

	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if task.StartedAt == nil {
		t.Error("StartedAt not set")
	}

	if err := task.Complete(map[string]any{"content": "done"}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if task.Status != TaskCompleted || task.CompletedAt == nil {
		t.Fatalf("after Complete: status = %s", task.Status)
	}
}

func TestTaskInvalidTransitions(t *testing.T) {
	task := NewTask(TaskCustom, nil)

	if err := task.Complete(nil); err == nil {
		t.Error("Complete() on created task succeeded, want error")
	}

	if err := task.Assign(uuid.New()); err != nil {
		t.Fatal(err)
	}
	if err := task.Assign(uuid.New()); err == nil {
		t.Error("second Assign() succeeded, want error")
	}

	if err := task.Start(); err != nil {
		t.Fatal(err)
	}
	if err := task.Complete(nil); err != nil {
		t.Fatal(err)
	}
	if err := task.Fail("late"); err == nil {
		t.Error("Fail() on completed task succeeded, want error")
	}
	if err := task.Cancel(); err == nil {
		t.Error("Cancel() on completed task succeeded, want error")
	}
}

func TestTaskStartWithoutAssignment(t *testing.T) {
	task := NewTask(TaskCustom, nil)
	if err := task.Start(); err != nil {
		t.Fatalf("Start() on created task error = %v", err)
	}
}

func TestTaskFailFromInProgress(t *testing.T) {
	task := NewTask(TaskCustom, nil)
	if err := task.Start(); err != nil {
		t.Fatal(err)
	}
	if err := task.Fail("boom"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if task.Status != TaskFailed || task.Error != "boom" {
		t.Fatalf("after Fail: status = %s, error = %q", task.Status, task.Error)
	}
}

func TestAgentAvailability(t *testing.T) {
	agent := NewAgent("worker", AgentTypeLLM)
	if agent.Available() {
		t.Error("created agent reported available")
	}

	agent.ChangeStatus(AgentActive)
	if !agent.Available() {
		t.Error("active agent reported unavailable")
	}

	agent.ChangeStatus(AgentBusy)
	if agent.Available() {
		t.Error("busy agent reported available")
	}

	agent.ChangeStatus(AgentIdle)
	if !agent.Available() {
		t.Error("idle agent reported unavailable")
	}
}

func TestAgentCapabilities(t *testing.T) {
	agent := NewAgent("worker", AgentTypeRAG)
	agent.Capabilities["rag"] = true

	if !agent.HasCapability("rag") {
		t.Error("HasCapability(rag) = false")
	}
	if agent.HasCapability("vision") {
		t.Error("HasCapability(vision) = true")
	}
}

func TestConversationRecent(t *testing.T) {
	conv := NewConversation()
	for _, content := range []string{"one", "two", "three"} {
		conv.Append(NewMessage("user", content))
	}

	recent := conv.Recent(2)
	if len(recent) != 2 || recent[0].Content != "two" || recent[1].Content != "three" {
		t.Fatalf("Recent(2) = %v", recent)
	}
	if got := conv.Recent(10); len(got) != 3 {
		t.Fatalf("Recent(10) returned %d messages, want all 3", len(got))
	}
	for _, m := range conv.Messages {
		if m.ConversationID != conv.ID {
			t.Errorf("message %s not stamped with conversation ID", m.ID)
		}
	}
}
