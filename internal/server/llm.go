package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/king-ai/king/internal/llm"
)

type generateRequest struct {
	Prompt       string        `json:"prompt"`
	History      []llm.Message `json:"history,omitempty"`
	Model        string        `json:"model,omitempty"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Temperature  float32       `json:"temperature,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
}

func (r generateRequest) options() llm.GenerateOptions {
	return llm.GenerateOptions{
		Model:        r.Model,
		SystemPrompt: r.SystemPrompt,
		Temperature:  r.Temperature,
		MaxTokens:    r.MaxTokens,
	}
}

type generateResponse struct {
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason"`
	Model        string     `json:"model"`
	Usage        *llm.Usage `json:"usage,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_body")
		return
	}

	result, err := s.llm.Generate(r.Context(), req.Prompt, req.History, req.options())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Content:      result.Content,
		FinishReason: string(result.FinishReason),
		Model:        result.Model,
		Usage:        result.Usage,
	})
}

type streamEvent struct {
	Delta string `json:"delta,omitempty"`
	Final bool   `json:"final,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleGenerateStream relays LLM stream chunks as server-sent events. A
// mid-stream failure is emitted as an "error" event before the stream ends.
func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "internal")
		return
	}

	chunks, err := s.llm.GenerateStream(r.Context(), req.Prompt, req.History, req.options())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range chunks {
		if chunk.Err != nil {
			writeSSE(w, "error", streamEvent{Error: chunk.Err.Error()})
			flusher.Flush()
			return
		}
		if chunk.Final {
			writeSSE(w, "", streamEvent{Final: true})
			flusher.Flush()
			return
		}
		writeSSE(w, "", streamEvent{Delta: chunk.Delta})
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
