// Package server exposes the REST API over chi.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/king-ai/king/internal/auth"
	"github.com/king-ai/king/internal/metrics"
	"github.com/king-ai/king/internal/service"
)

// Config holds configuration for the HTTP server
type Config struct {
	Port           int
	AllowedOrigins []string
	APIKey         string
	JWTSecret      string
}

// Server wraps the HTTP server and its handlers
type Server struct {
	server *http.Server
	router *chi.Mux
	logger *slog.Logger

	llm          *service.LLMService
	orchestrator *service.AgentOrchestrator
	scheduler    *service.TaskScheduler
	messages     *service.MessageProcessor
	rag          *service.RAGService
}

// New creates the HTTP server with all routes mounted
func New(
	cfg Config,
	llmSvc *service.LLMService,
	orchestrator *service.AgentOrchestrator,
	scheduler *service.TaskScheduler,
	messages *service.MessageProcessor,
	rag *service.RAGService,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger:       logger,
		llm:          llmSvc,
		orchestrator: orchestrator,
		scheduler:    scheduler,
		messages:     messages,
		rag:          rag,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))
	router.Use(m.Middleware)

	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(auth.DefaultJWTConfig(cfg.JWTSecret))
	}
	router.Use(auth.NewMiddleware(cfg.APIKey, jwtManager).Handler)

	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)
	router.Method(http.MethodGet, "/metrics", m.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/agents", func(r chi.Router) {
			r.Post("/", s.handleCreateAgent)
			r.Get("/", s.handleListAgents)
			r.Get("/{id}", s.handleGetAgent)
			r.Delete("/{id}", s.handleDeleteAgent)
			r.Patch("/{id}/status", s.handleUpdateAgentStatus)
		})
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.handleCreateTask)
			r.Get("/", s.handleListTasks)
			r.Get("/{id}", s.handleGetTask)
			r.Post("/{id}/schedule", s.handleScheduleTask)
		})
		r.Post("/messages", s.handleProcessMessage)
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.handleListConversations)
			r.Get("/{id}", s.handleGetConversation)
			r.Get("/{id}/messages", s.handleGetConversationMessages)
		})
		r.Route("/llm", func(r chi.Router) {
			r.Post("/generate", s.handleGenerate)
			r.Post("/stream", s.handleGenerateStream)
		})
		r.Route("/rag", func(r chi.Router) {
			r.Post("/documents", s.handleAddDocuments)
			r.Post("/search", s.handleRAGSearch)
			r.Post("/generate", s.handleRAGGenerate)
		})
	})

	s.router = router
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // streaming LLM responses
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying chi router for tests
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.llm.HealthCheck(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "llm unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// requestLoggingMiddleware logs HTTP requests
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 {
				// If no origins specified, allow all in development
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-API-Key")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
