package server

import (
	"net/http"

	"github.com/king-ai/king/internal/domain"
)

type createAgentRequest struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

type updateAgentStatusRequest struct {
	Status string `json:"status"`
}

type listResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_body")
		return
	}

	agent, err := s.orchestrator.CreateAgent(r.Context(), req.Name, domain.AgentType(req.Type), req.Capabilities)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	agents, total, err := s.orchestrator.ListAgents(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: agents, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id", "invalid_id")
		return
	}
	agent, err := s.orchestrator.GetAgent(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id", "invalid_id")
		return
	}
	if err := s.orchestrator.DeleteAgent(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id", "invalid_id")
		return
	}
	var req updateAgentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_body")
		return
	}

	agent, err := s.orchestrator.UpdateAgentStatus(r.Context(), id, domain.AgentStatus(req.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}
