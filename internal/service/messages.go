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

// historyWindow is how many recent messages are sent to the model as
// conversation context.
const historyWindow = 10

// MessageProcessor handles conversational exchanges: it stores user
// messages, generates assistant replies and maintains conversations
type MessageProcessor struct {
	conversations repository.ConversationRepository
	llm           *LLMService
	bus           messaging.EventBus
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewMessageProcessor creates a new message processor
func NewMessageProcessor(
	conversations repository.ConversationRepository,
	llmSvc *LLMService,
	bus messaging.EventBus,
	m *metrics.Metrics,
	logger *slog.Logger,
) *MessageProcessor {
	return &MessageProcessor{
		conversations: conversations,
		llm:           llmSvc,
		bus:           bus,
		metrics:       m,
		logger:        logger,
	}
}

// Process appends a user message to a conversation and returns the
// generated assistant reply. A zero conversationID starts a new
// conversation.
func (p *MessageProcessor) Process(ctx context.Context, conversationID uuid.UUID, content string, opts llm.GenerateOptions) (*domain.Message, *domain.Conversation, error) {
	if content == "" {
		return nil, nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}

	conv, err := p.loadOrCreate(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	userMsg := domain.NewMessage("user", content)
	conv.Append(userMsg)
	if err := p.conversations.AppendMessage(ctx, conv.ID, userMsg); err != nil {
		return nil, nil, fmt.Errorf("failed to store message: %w", err)
	}

	history := buildHistory(conv.Recent(historyWindow), userMsg.ID)
	result, err := p.llm.Generate(ctx, content, history, opts)
	if err != nil {
		return nil, nil, err
	}

	reply := domain.NewMessage("assistant", result.Content)
	reply.Metadata["model"] = result.Model
	reply.Metadata["finish_reason"] = string(result.FinishReason)
	conv.Append(reply)
	if err := p.conversations.AppendMessage(ctx, conv.ID, reply); err != nil {
		return nil, nil, fmt.Errorf("failed to store reply: %w", err)
	}

	p.publish(ctx, domain.NewEvent(domain.EventMessageProcessed, map[string]any{
		"conversation_id": conv.ID.String(),
		"message_id":      userMsg.ID.String(),
		"reply_id":        reply.ID.String(),
	}))

	return reply, conv, nil
}

// GetConversation retrieves a conversation by ID
func (p *MessageProcessor) GetConversation(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return p.conversations.GetByID(ctx, id)
}

// ListConversations retrieves conversations with pagination
func (p *MessageProcessor) ListConversations(ctx context.Context, limit, offset int) ([]*domain.Conversation, int, error) {
	return p.conversations.List(ctx, limit, offset)
}

func (p *MessageProcessor) loadOrCreate(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	if id == uuid.Nil {
		conv := domain.NewConversation()
		if err := p.conversations.Create(ctx, conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := p.conversations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}

// buildHistory converts stored messages to LLM turns, excluding the message
// being answered since it is passed as the prompt.
func buildHistory(messages []*domain.Message, excludeID uuid.UUID) []llm.Message {
	history := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.ID == excludeID {
			continue
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	return history
}

func (p *MessageProcessor) publish(ctx context.Context, event domain.Event) {
	if err := p.bus.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish event", "type", event.Type, "error", err)
		return
	}
	p.metrics.ObserveEvent(event.Type)
}
