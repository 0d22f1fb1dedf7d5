package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/king-ai/king/internal/domain"
	"github.com/king-ai/king/internal/llm"
)

type processMessageRequest struct {
	ConversationID string  `json:"conversation_id,omitempty"`
	Content        string  `json:"content"`
	Model          string  `json:"model,omitempty"`
	SystemPrompt   string  `json:"system_prompt,omitempty"`
	Temperature    float32 `json:"temperature,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty"`
}

type processMessageResponse struct {
	ConversationID uuid.UUID       `json:"conversation_id"`
	Reply          *domain.Message `json:"reply"`
}

func (s *Server) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req processMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_body")
		return
	}

	convID := uuid.Nil
	if req.ConversationID != "" {
		parsed, err := uuid.Parse(req.ConversationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid conversation id", "invalid_id")
			return
		}
		convID = parsed
	}

	opts := llm.GenerateOptions{
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}
	reply, conv, err := s.messages.Process(r.Context(), convID, req.Content, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, processMessageResponse{ConversationID: conv.ID, Reply: reply})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	convs, total, err := s.messages.ListConversations(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: convs, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id", "invalid_id")
		return
	}
	conv, err := s.messages.GetConversation(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleGetConversationMessages(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id", "invalid_id")
		return
	}
	conv, err := s.messages.GetConversation(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conv.ID,
		"messages":        conv.Messages,
	})
}
