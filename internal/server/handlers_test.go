package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/king-ai/king/internal/llm/gigachat"
)

func TestUpstreamErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  *gigachat.Error
		want int
		code string
	}{
		{"rate limited", &gigachat.Error{Kind: gigachat.KindRateLimit, Status: 429}, http.StatusTooManyRequests, "rate_limited"},
		{"client error", &gigachat.Error{Kind: gigachat.KindClient, Status: 400, Msg: "unknown model"}, http.StatusBadRequest, "bad_request"},
		{"server error", &gigachat.Error{Kind: gigachat.KindServer, Status: 503}, http.StatusBadGateway, "upstream_error"},
		{"network error", &gigachat.Error{Kind: gigachat.KindNetwork, Msg: "connection refused"}, http.StatusBadGateway, "upstream_error"},
		{"auth error", &gigachat.Error{Kind: gigachat.KindAuth, Status: 401}, http.StatusBadGateway, "upstream_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Config{}, &stubLLM{healthy: true, generateErr: tt.err})
			rec := doRequest(t, s, http.MethodPost, "/api/v1/llm/generate", map[string]any{"prompt": "hi"}, nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body: %s)", rec.Code, tt.want, rec.Body.String())
			}
			var resp struct {
				Code string `json:"code"`
			}
			decodeBody(t, rec, &resp)
			if resp.Code != tt.code {
				t.Errorf("code = %s, want %s", resp.Code, tt.code)
			}
		})
	}
}

func TestRAGEndpoints(t *testing.T) {
	s := newTestServer(t, Config{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/rag/documents", map[string]any{
		"collection": "kb",
		"documents": []map[string]any{
			{"id": "doc-1", "content": "the sky is blue"},
			{"id": "doc-2", "content": "grass is green"},
		},
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add documents status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var added addDocumentsResponse
	decodeBody(t, rec, &added)
	if len(added.IDs) != 2 {
		t.Fatalf("ids = %v", added.IDs)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/rag/search", map[string]any{
		"collection": "kb",
		"query":      "the sky is blue",
		"top_k":      1,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var search ragSearchResponse
	decodeBody(t, rec, &search)
	if len(search.Results) != 1 || search.Results[0].ID != "doc-1" {
		t.Fatalf("search results = %v", search.Results)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/rag/generate", map[string]any{
		"collection": "kb",
		"query":      "the sky is blue",
		"top_k":      1,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var gen ragGenerateResponse
	decodeBody(t, rec, &gen)
	if gen.Content == "" || gen.Model != "GigaChat" {
		t.Errorf("generate response = %+v", gen)
	}
	if len(gen.Sources) != 1 || gen.Sources[0].ID != "doc-1" {
		t.Errorf("sources = %v", gen.Sources)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/rag/search", map[string]any{"query": ""}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, Config{}, &stubLLM{healthy: true})

	rec := doRequest(t, s, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/readyz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rec.Code)
	}

	down := newTestServer(t, Config{}, &stubLLM{healthy: false})
	rec = doRequest(t, down, http.MethodGet, "/readyz", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with llm down status = %d", rec.Code)
	}
}

func TestAuthProtection(t *testing.T) {
	s := newTestServer(t, Config{APIKey: "secret"}, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/agents/", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/agents/", nil, map[string]string{"X-API-Key": "secret"})
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}

	// Probes stay open for the load balancer.
	rec = doRequest(t, s, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Config{}, nil)

	if rec := doRequest(t, s, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatal("healthz failed")
	}
	rec := doRequest(t, s, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "king_http_requests_total") {
		t.Errorf("metrics body missing request counter:\n%.500s", body)
	}
}
