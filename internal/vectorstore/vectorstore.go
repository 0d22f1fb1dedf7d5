// Package vectorstore provides interfaces and implementations for vector
// similarity search used by the RAG service.
package vectorstore

import (
	"context"
)

// Document represents an embedded document stored for retrieval
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult represents a search hit from the vector store
type SearchResult struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]string
}

// VectorStore defines the interface for vector storage operations
type VectorStore interface {
	// EnsureCollection creates the named collection if it does not exist
	EnsureCollection(ctx context.Context, collection string, dimension int) error

	// Upsert inserts or updates documents in a collection
	Upsert(ctx context.Context, collection string, docs []Document) error

	// Search performs cosine similarity search
	Search(ctx context.Context, collection string, vector []float32, topK int, minScore float32) ([]SearchResult, error)

	// Delete removes documents by their IDs
	Delete(ctx context.Context, collection string, ids []string) error

	// Close releases client resources
	Close() error
}
