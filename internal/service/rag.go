package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/king-ai/king/internal/llm"
	"github.com/king-ai/king/internal/vectorstore"
)

// Retrieval defaults applied when the request leaves them unset.
const (
	DefaultCollection = "documents"
	DefaultTopK       = 5
	DefaultMinScore   = 0.0
)

// DocumentInput is a document submitted for indexing
type DocumentInput struct {
	ID       string            `json:"id,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RAGService indexes documents and answers queries with retrieved context
type RAGService struct {
	llm       *LLMService
	store     vectorstore.VectorStore
	logger    *slog.Logger
	dimension int
}

// NewRAGService creates a new RAG service. The embedding dimension is fixed
// when the first collection is created.
func NewRAGService(llmSvc *LLMService, store vectorstore.VectorStore, dimension int, logger *slog.Logger) *RAGService {
	return &RAGService{
		llm:       llmSvc,
		store:     store,
		logger:    logger,
		dimension: dimension,
	}
}

// AddDocuments embeds and stores documents for retrieval
func (s *RAGService) AddDocuments(ctx context.Context, collection string, inputs []DocumentInput) ([]string, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one document is required", ErrInvalidInput)
	}
	if collection == "" {
		collection = DefaultCollection
	}

	docs := make([]vectorstore.Document, 0, len(inputs))
	ids := make([]string, 0, len(inputs))
	for i, input := range inputs {
		if input.Content == "" {
			return nil, fmt.Errorf("%w: document %d has empty content", ErrInvalidInput, i)
		}
		vector, err := s.llm.Embed(ctx, input.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to embed document %d: %w", i, err)
		}

		id := input.ID
		if id == "" {
			id = uuid.New().String()
		}
		docs = append(docs, vectorstore.Document{
			ID:       id,
			Content:  input.Content,
			Vector:   vector,
			Metadata: input.Metadata,
		})
		ids = append(ids, id)
	}

	if err := s.store.EnsureCollection(ctx, collection, s.dimensionFor(docs[0].Vector)); err != nil {
		return nil, err
	}
	if err := s.store.Upsert(ctx, collection, docs); err != nil {
		return nil, err
	}

	s.logger.Info("documents indexed", "collection", collection, "count", len(docs))
	return ids, nil
}

// Search embeds the query and returns the most similar documents
func (s *RAGService) Search(ctx context.Context, collection, query string, topK int, minScore float32) ([]vectorstore.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := s.llm.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if err := s.store.EnsureCollection(ctx, collection, s.dimensionFor(vector)); err != nil {
		return nil, err
	}
	return s.store.Search(ctx, collection, vector, topK, minScore)
}

// GenerateWithContext retrieves relevant documents and generates an answer
// grounded in them
func (s *RAGService) GenerateWithContext(ctx context.Context, collection, query string, topK int, opts llm.GenerateOptions) (*llm.Result, []vectorstore.SearchResult, error) {
	results, err := s.Search(ctx, collection, query, topK, DefaultMinScore)
	if err != nil {
		return nil, nil, err
	}

	prompt := query
	if len(results) > 0 {
		prompt = buildContextPrompt(query, results)
	}

	result, err := s.llm.Generate(ctx, prompt, nil, opts)
	if err != nil {
		return nil, nil, err
	}
	return result, results, nil
}

// DeleteDocuments removes documents from a collection
func (s *RAGService) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one document id is required", ErrInvalidInput)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return s.store.Delete(ctx, collection, ids)
}

func (s *RAGService) dimensionFor(vector []float32) int {
	if s.dimension > 0 {
		return s.dimension
	}
	return len(vector)
}

func buildContextPrompt(query string, results []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("Use the following context to answer the question.\n\nContext:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, r.Content)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}
