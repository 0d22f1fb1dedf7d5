package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single message inside a conversation.
type Message struct {
	ID             uuid.UUID         `json:"id"`
	Role           string            `json:"role"` // "system", "user" or "assistant"
	Content        string            `json:"content"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata"`
	ConversationID uuid.UUID         `json:"conversation_id"`
}

// NewMessage creates a message with a fresh ID and timestamp.
func NewMessage(role, content string) *Message {
	return &Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
}

// ValidRole reports whether role is one the dialogue model accepts.
func ValidRole(role string) bool {
	return role == "system" || role == "user" || role == "assistant"
}

// Conversation is an ordered series of messages between a user and an agent.
type Conversation struct {
	ID        uuid.UUID         `json:"id"`
	Messages  []*Message        `json:"messages"`
	Context   map[string]string `json:"context"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        uuid.New(),
		Context:   make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the conversation and stamps it with the
// conversation ID.
func (c *Conversation) Append(m *Message) {
	m.ConversationID = c.ID
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = time.Now().UTC()
}

// Recent returns the last n messages, or all of them when fewer exist.
func (c *Conversation) Recent(n int) []*Message {
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}
