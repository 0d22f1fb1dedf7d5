package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/king-ai/king/internal/domain"
	"github.com/king-ai/king/internal/llm"
	"github.com/king-ai/king/internal/messaging"
	"github.com/king-ai/king/internal/metrics"
)

// fakeLLM is a scriptable llm.Client shared by the service tests.
type fakeLLM struct {
	mu         sync.Mutex
	generateFn func(ctx context.Context, prompt string, history []llm.Message, opts llm.GenerateOptions) (*llm.Result, error)
	embedFn    func(ctx context.Context, text string) ([]float32, error)
	prompts    []string
	histories  [][]llm.Message
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, history []llm.Message, opts llm.GenerateOptions) (*llm.Result, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.histories = append(f.histories, history)
	f.mu.Unlock()

	if f.generateFn != nil {
		return f.generateFn(ctx, prompt, history, opts)
	}
	return &llm.Result{
		Content:      "reply to " + prompt,
		FinishReason: llm.FinishStop,
		Model:        "GigaChat",
		Usage:        &llm.Usage{PromptTokens: 4, CompletionTokens: 6, TotalTokens: 10},
	}, nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, prompt string, history []llm.Message, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	result, err := f.Generate(ctx, prompt, history, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Delta: result.Content}
	ch <- llm.StreamChunk{Final: true}
	close(ch)
	return ch, nil
}

// Embed returns a deterministic 3-dimensional vector derived from the text
// so similar strings do not collide.
func (f *fakeLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedFn != nil {
		return f.embedFn(ctx, text)
	}
	var a, b float32
	for i, r := range text {
		if i%2 == 0 {
			a += float32(r)
		} else {
			b += float32(r)
		}
	}
	return []float32{a, b, float32(len(text))}, nil
}

func (f *fakeLLM) HealthCheck(context.Context) bool { return true }

var _ llm.Client = (*fakeLLM)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// eventRecorder collects events published on a MemoryBus.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) record(_ context.Context, event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) byType(eventType string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newLLMService(client llm.Client) (*LLMService, *eventRecorder) {
	bus := messaging.NewMemoryBus()
	rec := &eventRecorder{}
	bus.Subscribe("*", rec.record)
	return NewLLMService(client, bus, metrics.New(), testLogger()), rec
}

func TestLLMServiceGenerate(t *testing.T) {
	svc, rec := newLLMService(&fakeLLM{})

	result, err := svc.Generate(context.Background(), "hello", nil, llm.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Content != "reply to hello" {
		t.Errorf("Content = %q", result.Content)
	}

	events := rec.byType(domain.EventLLMGeneration)
	if len(events) != 1 {
		t.Fatalf("got %d generation events, want 1", len(events))
	}
	if events[0].Payload["model"] != "GigaChat" {
		t.Errorf("event model = %v", events[0].Payload["model"])
	}
	if events[0].Payload["total_tokens"] != 10 {
		t.Errorf("event total_tokens = %v", events[0].Payload["total_tokens"])
	}
}

func TestLLMServiceValidation(t *testing.T) {
	svc, _ := newLLMService(&fakeLLM{})
	ctx := context.Background()

	tests := []struct {
		name   string
		prompt string
		opts   llm.GenerateOptions
	}{
		{"empty prompt", "", llm.GenerateOptions{}},
		{"temperature too high", "hi", llm.GenerateOptions{Temperature: 2.5}},
		{"negative temperature", "hi", llm.GenerateOptions{Temperature: -1}},
		{"negative max tokens", "hi", llm.GenerateOptions{MaxTokens: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Generate(ctx, tt.prompt, nil, tt.opts); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Generate() error = %v, want ErrInvalidInput", err)
			}
			if _, err := svc.GenerateStream(ctx, tt.prompt, nil, tt.opts); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("GenerateStream() error = %v, want ErrInvalidInput", err)
			}
		})
	}

	if _, err := svc.Embed(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Embed(\"\") error = %v, want ErrInvalidInput", err)
	}
}

func TestLLMServiceGenerateError(t *testing.T) {
	wantErr := fmt.Errorf("upstream down")
	svc, rec := newLLMService(&fakeLLM{
		generateFn: func(context.Context, string, []llm.Message, llm.GenerateOptions) (*llm.Result, error) {
			return nil, wantErr
		},
	})

	if _, err := svc.Generate(context.Background(), "hello", nil, llm.GenerateOptions{}); !errors.Is(err, wantErr) {
		t.Fatalf("Generate() error = %v, want %v", err, wantErr)
	}
	if events := rec.byType(domain.EventLLMGeneration); len(events) != 0 {
		t.Errorf("got %d generation events on failure, want 0", len(events))
	}
}

func TestLLMServiceGenerateStream(t *testing.T) {
	svc, _ := newLLMService(&fakeLLM{})

	chunks, err := svc.GenerateStream(context.Background(), "hello", nil, llm.GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateStream() error = %v", err)
	}

	var deltas []string
	sawFinal := false
	for chunk := range chunks {
		if chunk.Err != nil {
			t.Fatalf("unexpected chunk error: %v", chunk.Err)
		}
		if chunk.Final {
			sawFinal = true
			continue
		}
		deltas = append(deltas, chunk.Delta)
	}
	if !sawFinal {
		t.Error("stream ended without a final chunk")
	}
	if len(deltas) != 1 || deltas[0] != "reply to hello" {
		t.Errorf("deltas = %v", deltas)
	}
}
