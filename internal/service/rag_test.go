package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/king-ai/king/internal/llm"
	"github.com/king-ai/king/internal/vectorstore"
)

func newRAGService(client *fakeLLM) *RAGService {
	llmSvc, _ := newLLMService(client)
	return NewRAGService(llmSvc, vectorstore.NewMemoryStore(), 0, testLogger())
}

func TestAddDocuments(t *testing.T) {
	ctx := context.Background()
	svc := newRAGService(&fakeLLM{})

	ids, err := svc.AddDocuments(ctx, "", []DocumentInput{
		{ID: "doc-1", Content: "the sky is blue"},
		{Content: "grass is green", Metadata: map[string]string{"topic": "nature"}},
	})
	if err != nil {
		t.Fatalf("AddDocuments() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
	if ids[0] != "doc-1" {
		t.Errorf("ids[0] = %s, want doc-1", ids[0])
	}
	if ids[1] == "" {
		t.Error("missing ID was not generated")
	}

	results, err := svc.Search(ctx, "", "grass is green", 1, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != ids[1] {
		t.Fatalf("results = %v, want the grass document", results)
	}
	if results[0].Metadata["topic"] != "nature" {
		t.Errorf("metadata = %v", results[0].Metadata)
	}
}

func TestAddDocumentsValidation(t *testing.T) {
	ctx := context.Background()
	svc := newRAGService(&fakeLLM{})

	if _, err := svc.AddDocuments(ctx, "", nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty batch error = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.AddDocuments(ctx, "", []DocumentInput{{ID: "x"}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty content error = %v, want ErrInvalidInput", err)
	}
}

func TestSearchValidation(t *testing.T) {
	svc := newRAGService(&fakeLLM{})
	if _, err := svc.Search(context.Background(), "", "", 5, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty query error = %v, want ErrInvalidInput", err)
	}
}

func TestGenerateWithContext(t *testing.T) {
	ctx := context.Background()
	client := &fakeLLM{}
	svc := newRAGService(client)

	if _, err := svc.AddDocuments(ctx, "kb", []DocumentInput{
		{ID: "doc-1", Content: "the sky is blue"},
	}); err != nil {
		t.Fatal(err)
	}

	result, sources, err := svc.GenerateWithContext(ctx, "kb", "the sky is blue", 1, llm.GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateWithContext() error = %v", err)
	}
	if len(sources) != 1 || sources[0].ID != "doc-1" {
		t.Fatalf("sources = %v", sources)
	}
	if result.Content == "" {
		t.Error("empty result content")
	}

	prompt := client.prompts[len(client.prompts)-1]
	if !strings.Contains(prompt, "the sky is blue") {
		t.Errorf("prompt missing retrieved context: %q", prompt)
	}
	if !strings.Contains(prompt, "Question: the sky is blue") {
		t.Errorf("prompt missing question: %q", prompt)
	}
}

func TestGenerateWithContextNoMatches(t *testing.T) {
	ctx := context.Background()
	client := &fakeLLM{}
	svc := newRAGService(client)

	// Empty collection: the query goes to the model as-is.
	result, sources, err := svc.GenerateWithContext(ctx, "kb", "anything", 3, llm.GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateWithContext() error = %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("sources = %v, want none", sources)
	}
	if result.Content != "reply to anything" {
		t.Errorf("result = %q", result.Content)
	}
	if prompt := client.prompts[len(client.prompts)-1]; prompt != "anything" {
		t.Errorf("prompt = %q, want the bare query", prompt)
	}
}

func TestDeleteDocuments(t *testing.T) {
	ctx := context.Background()
	svc := newRAGService(&fakeLLM{})

	ids, err := svc.AddDocuments(ctx, "kb", []DocumentInput{{ID: "doc-1", Content: "the sky is blue"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteDocuments(ctx, "kb", ids); err != nil {
		t.Fatalf("DeleteDocuments() error = %v", err)
	}
	results, err := svc.Search(ctx, "kb", "the sky is blue", 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("results after delete = %v", results)
	}

	if err := svc.DeleteDocuments(ctx, "kb", nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty ids error = %v, want ErrInvalidInput", err)
	}
}
