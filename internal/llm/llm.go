// Package llm provides interfaces and implementations for Large Language Model clients.
package llm

import (
	"context"
)

// Message is a single turn in a conversation history.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// GenerateOptions configures the LLM generation request.
type GenerateOptions struct {
	// Model overrides the client's default model.
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness in generation. Valid range is [0, 2].
	Temperature float32

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int
}

// Usage reports token consumption for a completed generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// FinishReason explains why the model stopped generating.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishError  FinishReason = "error"
)

// Result is the complete response of a non-streaming generation.
type Result struct {
	Content      string
	FinishReason FinishReason
	Model        string
	Usage        *Usage
}

// StreamChunk represents a single chunk of streamed response from the LLM.
type StreamChunk struct {
	// Delta contains the generated text fragment.
	Delta string

	// Final indicates whether this is the last chunk of a cleanly
	// terminated stream.
	Final bool

	// Err carries a terminal failure. Chunks delivered before it remain
	// valid; no further chunks follow a chunk with Err set.
	Err error
}

// Client defines the interface for Large Language Model clients.
type Client interface {
	// Generate sends a prompt to the LLM and returns the complete response.
	// It blocks until the full response is received or a terminal error occurs.
	Generate(ctx context.Context, prompt string, history []Message, opts GenerateOptions) (*Result, error)

	// GenerateStream sends a prompt to the LLM and returns a channel that
	// streams response chunks as they arrive. The channel is closed when
	// generation completes or fails. A mid-stream failure is delivered as the
	// final element with Err set; a clean completion ends with Final set.
	GenerateStream(ctx context.Context, prompt string, history []Message, opts GenerateOptions) (<-chan StreamChunk, error)

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// HealthCheck reports whether the provider is reachable and credentials
	// can be acquired.
	HealthCheck(ctx context.Context) bool
}
