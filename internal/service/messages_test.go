package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/king-ai/king/internal/domain"
	"github.com/king-ai/king/internal/llm"
	"github.com/king-ai/king/internal/messaging"
	"github.com/king-ai/king/internal/metrics"
	"github.com/king-ai/king/internal/repository"
	"github.com/king-ai/king/internal/repository/memory"
)

func newMessageProcessor(client *fakeLLM) (*MessageProcessor, *eventRecorder) {
	bus := messaging.NewMemoryBus()
	rec := &eventRecorder{}
	bus.Subscribe("*", rec.record)

	m := metrics.New()
	logger := testLogger()
	llmSvc := NewLLMService(client, bus, m, logger)
	return NewMessageProcessor(memory.NewConversationRepo(0), llmSvc, bus, m, logger), rec
}

func TestProcessStartsConversation(t *testing.T) {
	ctx := context.Background()
	client := &fakeLLM{}
	p, rec := newMessageProcessor(client)

	reply, conv, err := p.Process(ctx, uuid.Nil, "hello there", llm.GenerateOptions{})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if conv.ID == uuid.Nil {
		t.Fatal("conversation not created")
	}
	if reply.Role != "assistant" || reply.Content != "reply to hello there" {
		t.Errorf("reply = %+v", reply)
	}
	if reply.Metadata["model"] != "GigaChat" {
		t.Errorf("reply model = %s", reply.Metadata["model"])
	}

	stored, err := p.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if len(stored.Messages) != 2 {
		t.Fatalf("stored %d messages, want 2", len(stored.Messages))
	}
	if stored.Messages[0].Role != "user" || stored.Messages[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", stored.Messages[0].Role, stored.Messages[1].Role)
	}

	// The first turn has no prior context.
	if len(client.histories[0]) != 0 {
		t.Errorf("first turn history = %v, want empty", client.histories[0])
	}
	if events := rec.byType(domain.EventMessageProcessed); len(events) != 1 {
		t.Errorf("got %d message.processed events, want 1", len(events))
	}
}

func TestProcessCarriesHistory(t *testing.T) {
	ctx := context.Background()
	client := &fakeLLM{}
	p, _ := newMessageProcessor(client)

	_, conv, err := p.Process(ctx, uuid.Nil, "first", llm.GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.Process(ctx, conv.ID, "second", llm.GenerateOptions{}); err != nil {
		t.Fatal(err)
	}

	history := client.histories[1]
	if len(history) != 2 {
		t.Fatalf("second turn history has %d messages, want 2", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "first" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != "assistant" || history[1].Content != "reply to first" {
		t.Errorf("history[1] = %+v", history[1])
	}
	if client.prompts[1] != "second" {
		t.Errorf("second prompt = %q", client.prompts[1])
	}
}

func TestProcessValidation(t *testing.T) {
	ctx := context.Background()
	p, _ := newMessageProcessor(&fakeLLM{})

	if _, _, err := p.Process(ctx, uuid.Nil, "", llm.GenerateOptions{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty content error = %v, want ErrInvalidInput", err)
	}
	if _, _, err := p.Process(ctx, uuid.New(), "hi", llm.GenerateOptions{}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unknown conversation error = %v, want ErrNotFound", err)
	}
}

func TestListConversations(t *testing.T) {
	ctx := context.Background()
	p, _ := newMessageProcessor(&fakeLLM{})

	for i := 0; i < 3; i++ {
		if _, _, err := p.Process(ctx, uuid.Nil, "hi", llm.GenerateOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	convs, total, err := p.ListConversations(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(convs) != 2 {
		t.Errorf("page size = %d, want 2", len(convs))
	}
}
