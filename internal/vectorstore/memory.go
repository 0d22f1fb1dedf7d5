package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore implements VectorStore in process memory. It is used when no
// Qdrant endpoint is configured and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	docs      map[string]Document
}

// NewMemoryStore creates an empty in-memory vector store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
	}
}

// EnsureCollection creates the collection if it does not exist
func (s *MemoryStore) EnsureCollection(_ context.Context, collection string, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.collections[collection]; ok {
		if existing.dimension != dimension {
			return fmt.Errorf("collection %s exists with dimension %d, requested %d",
				collection, existing.dimension, dimension)
		}
		return nil
	}
	s.collections[collection] = &memoryCollection{
		dimension: dimension,
		docs:      make(map[string]Document),
	}
	return nil
}

// Upsert inserts or updates documents in a collection
func (s *MemoryStore) Upsert(_ context.Context, collection string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s does not exist", collection)
	}
	for _, doc := range docs {
		if len(doc.Vector) != col.dimension {
			return fmt.Errorf("document %s has dimension %d, collection expects %d",
				doc.ID, len(doc.Vector), col.dimension)
		}
		col.docs[doc.ID] = cloneDocument(doc)
	}
	return nil
}

// Search performs cosine similarity search
func (s *MemoryStore) Search(_ context.Context, collection string, vector []float32, topK int, minScore float32) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist", collection)
	}
	if len(vector) != col.dimension {
		return nil, fmt.Errorf("query has dimension %d, collection expects %d", len(vector), col.dimension)
	}

	results := make([]SearchResult, 0, len(col.docs))
	for _, doc := range col.docs {
		score := cosineSimilarity(vector, doc.Vector)
		if score < minScore {
			continue
		}
		results = append(results, SearchResult{
			ID:       doc.ID,
			Content:  doc.Content,
			Score:    score,
			Metadata: cloneMetadata(doc.Metadata),
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes documents by their IDs
func (s *MemoryStore) Delete(_ context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s does not exist", collection)
	}
	for _, id := range ids {
		delete(col.docs, id)
	}
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func cloneDocument(doc Document) Document {
	out := doc
	out.Vector = append([]float32(nil), doc.Vector...)
	out.Metadata = cloneMetadata(doc.Metadata)
	return out
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Ensure MemoryStore implements VectorStore
var _ VectorStore = (*MemoryStore)(nil)
