package server

import (
	"net/http"

	"github.com/king-ai/king/internal/llm"
	"github.com/king-ai/king/internal/service"
	"github.com/king-ai/king/internal/vectorstore"
)

type addDocumentsRequest struct {
	Collection string                  `json:"collection,omitempty"`
	Documents  []service.DocumentInput `json:"documents"`
}

type addDocumentsResponse struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	var req addDocumentsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_body")
		return
	}

	ids, err := s.rag.AddDocuments(r.Context(), req.Collection, req.Documents)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, addDocumentsResponse{IDs: ids})
}

type ragSearchRequest struct {
	Collection string  `json:"collection,omitempty"`
	Query      string  `json:"query"`
	TopK       int     `json:"top_k,omitempty"`
	MinScore   float32 `json:"min_score,omitempty"`
}

type ragSearchResponse struct {
	Results []vectorstore.SearchResult `json:"results"`
}

func (s *Server) handleRAGSearch(w http.ResponseWriter, r *http.Request) {
	var req ragSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_body")
		return
	}

	results, err := s.rag.Search(r.Context(), req.Collection, req.Query, req.TopK, req.MinScore)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ragSearchResponse{Results: results})
}

type ragGenerateRequest struct {
	Collection   string  `json:"collection,omitempty"`
	Query        string  `json:"query"`
	TopK         int     `json:"top_k,omitempty"`
	Model        string  `json:"model,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Temperature  float32 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

type ragGenerateResponse struct {
	Content string                     `json:"content"`
	Model   string                     `json:"model"`
	Sources []vectorstore.SearchResult `json:"sources"`
}

func (s *Server) handleRAGGenerate(w http.ResponseWriter, r *http.Request) {
	var req ragGenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_body")
		return
	}

	opts := llm.GenerateOptions{
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}
	result, sources, err := s.rag.GenerateWithContext(r.Context(), req.Collection, req.Query, req.TopK, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ragGenerateResponse{
		Content: result.Content,
		Model:   result.Model,
		Sources: sources,
	})
}
