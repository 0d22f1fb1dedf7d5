// Package service implements the application services that tie the LLM
// client, repositories, messaging and vector store together.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/king-ai/king/internal/domain"
	"github.com/king-ai/king/internal/llm"
	"github.com/king-ai/king/internal/messaging"
	"github.com/king-ai/king/internal/metrics"
)

// ErrInvalidInput marks request validation failures. Callers map it to a
// 400 response.
var ErrInvalidInput = errors.New("invalid input")

// LLMService validates generation requests and delegates to the LLM client
type LLMService struct {
	client  llm.Client
	bus     messaging.EventBus
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewLLMService creates a new LLM service
func NewLLMService(client llm.Client, bus messaging.EventBus, m *metrics.Metrics, logger *slog.Logger) *LLMService {
	return &LLMService{
		client:  client,
		bus:     bus,
		metrics: m,
		logger:  logger,
	}
}

func validateGenerate(prompt string, opts llm.GenerateOptions) error {
	if prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	if opts.Temperature < 0 || opts.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidInput)
	}
	if opts.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidInput)
	}
	return nil
}

// Generate runs a blocking generation
func (s *LLMService) Generate(ctx context.Context, prompt string, history []llm.Message, opts llm.GenerateOptions) (*llm.Result, error) {
	if err := validateGenerate(prompt, opts); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.client.Generate(ctx, prompt, history, opts)
	duration := time.Since(start)

	if err != nil {
		s.metrics.ObserveLLMRequest("generate", "error", duration)
		s.logger.Error("llm generation failed", "error", err, "duration", duration)
		return nil, err
	}

	s.metrics.ObserveLLMRequest("generate", "ok", duration)
	if result.Usage != nil {
		s.metrics.AddLLMTokens(result.Usage.PromptTokens, result.Usage.CompletionTokens)
	}
	s.publishGeneration(ctx, result, duration)

	return result, nil
}

// GenerateStream starts a streaming generation
func (s *LLMService) GenerateStream(ctx context.Context, prompt string, history []llm.Message, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	if err := validateGenerate(prompt, opts); err != nil {
		return nil, err
	}

	start := time.Now()
	chunks, err := s.client.GenerateStream(ctx, prompt, history, opts)
	if err != nil {
		s.metrics.ObserveLLMRequest("stream", "error", time.Since(start))
		return nil, err
	}
	s.metrics.ObserveLLMRequest("stream", "ok", time.Since(start))
	return chunks, nil
}

// Embed returns the embedding vector for a text
func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}

	start := time.Now()
	vector, err := s.client.Embed(ctx, text)
	if err != nil {
		s.metrics.ObserveLLMRequest("embed", "error", time.Since(start))
		return nil, err
	}
	s.metrics.ObserveLLMRequest("embed", "ok", time.Since(start))
	return vector, nil
}

// HealthCheck reports whether the LLM provider is reachable
func (s *LLMService) HealthCheck(ctx context.Context) bool {
	return s.client.HealthCheck(ctx)
}

func (s *LLMService) publishGeneration(ctx context.Context, result *llm.Result, duration time.Duration) {
	payload := map[string]any{
		"model":         result.Model,
		"finish_reason": string(result.FinishReason),
		"duration_ms":   duration.Milliseconds(),
	}
	if result.Usage != nil {
		payload["total_tokens"] = result.Usage.TotalTokens
	}
	event := domain.NewEvent(domain.EventLLMGeneration, payload)
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish generation event", "error", err)
		return
	}
	s.metrics.ObserveEvent(event.Type)
}
