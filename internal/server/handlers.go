package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/king-ai/king/internal/llm/gigachat"
	"github.com/king-ai/king/internal/repository"
	"github.com/king-ai/king/internal/service"
)

// Pagination bounds applied to list endpoints.
const (
	defaultLimit = 20
	maxLimit     = 100
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeServiceError maps service and LLM failures to HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_input")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", "not_found")
	default:
		var ge *gigachat.Error
		if errors.As(err, &ge) {
			switch ge.Kind {
			case gigachat.KindRateLimit:
				writeError(w, http.StatusTooManyRequests, "provider rate limited", "rate_limited")
			case gigachat.KindClient:
				writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
			default:
				writeError(w, http.StatusBadGateway, "provider request failed", "upstream_error")
			}
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error", "internal")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
