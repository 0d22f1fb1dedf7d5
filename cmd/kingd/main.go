package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/king-ai/king/internal/config"
	"github.com/king-ai/king/internal/llm"
	"github.com/king-ai/king/internal/llm/gigachat"
	"github.com/king-ai/king/internal/messaging"
	"github.com/king-ai/king/internal/metrics"
	"github.com/king-ai/king/internal/repository"
	"github.com/king-ai/king/internal/repository/memory"
	"github.com/king-ai/king/internal/repository/postgres"
	"github.com/king-ai/king/internal/server"
	"github.com/king-ai/king/internal/service"
	"github.com/king-ai/king/internal/vectorstore"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting agent service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
		"repository_backend", cfg.RepositoryBackend,
		"vector_backend", cfg.VectorBackend,
		"queue_backend", cfg.QueueBackend,
	)

	// Repositories
	var (
		agentRepo repository.AgentRepository
		taskRepo  repository.TaskRepository
		convRepo  repository.ConversationRepository
	)
	switch cfg.RepositoryBackend {
	case "postgres":
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		slog.Info("connected to PostgreSQL")
		agentRepo = postgres.NewAgentRepo(db)
		taskRepo = postgres.NewTaskRepo(db)
		// Conversations stay in memory; the dialogue window is ephemeral.
		convRepo = memory.NewConversationRepo(0)
	case "memory":
		agentRepo = memory.NewAgentRepo()
		taskRepo = memory.NewTaskRepo()
		convRepo = memory.NewConversationRepo(0)
	default:
		return fmt.Errorf("unknown repository backend %q", cfg.RepositoryBackend)
	}

	// Vector store
	var store vectorstore.VectorStore
	switch cfg.VectorBackend {
	case "qdrant":
		qdrantStore, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		slog.Info("connected to Qdrant")
		store = qdrantStore
	case "memory":
		store = vectorstore.NewMemoryStore()
	default:
		return fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
	defer store.Close()

	// Task queue
	var queue messaging.Queue
	switch cfg.QueueBackend {
	case "rabbitmq":
		queue, err = messaging.NewRabbitMQQueue(messaging.RabbitMQConfig{
			URL:      cfg.RabbitMQURL,
			Queue:    cfg.RabbitMQQueue,
			Prefetch: cfg.RabbitMQPrefetch,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		slog.Info("connected to RabbitMQ", "queue", cfg.RabbitMQQueue)
	case "redis":
		queue, err = messaging.NewRedisQueue(ctx, messaging.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Queue:     cfg.RedisQueue,
			BlockWait: cfg.RedisBlockWait,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		slog.Info("connected to Redis queue", "queue", cfg.RedisQueue)
	case "memory":
		queue = messaging.NewMemoryQueue(0)
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
	defer queue.Close()

	// Event bus
	var bus messaging.EventBus
	switch cfg.EventBusBackend {
	case "redis":
		bus, err = messaging.NewRedisEventBus(ctx, messaging.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisEventChannel,
		}, slog.Default())
		if err != nil {
			return fmt.Errorf("failed to connect to Redis event bus: %w", err)
		}
		slog.Info("connected to Redis event bus", "channel", cfg.RedisEventChannel)
	case "memory":
		bus = messaging.NewMemoryBus()
	default:
		return fmt.Errorf("unknown event bus backend %q", cfg.EventBusBackend)
	}
	defer bus.Close()

	// GigaChat client
	llmClient := gigachat.New(gigachat.Config{
		ClientID:          cfg.GigaChatClientID,
		ClientSecret:      cfg.GigaChatClientSecret,
		Scope:             cfg.GigaChatScope,
		BaseURL:           cfg.GigaChatBaseURL,
		TokenURL:          cfg.GigaChatTokenURL,
		Model:             cfg.GigaChatModel,
		MaxAttempts:       cfg.GigaChatMaxAttempts,
		RetryBaseDelay:    cfg.GigaChatRetryBase,
		RetryMaxDelay:     cfg.GigaChatRetryMax,
		RequestTimeout:    cfg.GigaChatTimeout,
		StreamIdleTimeout: cfg.GigaChatStreamIdle,
		TokenSafetyMargin: cfg.GigaChatTokenMargin,
	}, gigachat.WithLogger(slog.Default()))
	slog.Info("initialized GigaChat client", "model", cfg.GigaChatModel)

	// Services
	m := metrics.New()
	llmSvc := service.NewLLMService(llmClient, bus, m, slog.Default())
	orchestrator := service.NewAgentOrchestrator(agentRepo, taskRepo, bus, m, slog.Default())
	ragSvc := service.NewRAGService(llmSvc, store, cfg.EmbeddingDimension, slog.Default())
	scheduler := service.NewTaskScheduler(taskRepo, orchestrator, llmSvc, ragSvc, queue, bus, m, slog.Default())
	messagesSvc := service.NewMessageProcessor(convRepo, llmSvc, bus, m, slog.Default())

	httpServer := server.New(server.Config{
		Port:           cfg.HTTPPort,
		AllowedOrigins: cfg.AllowedOrigins,
		APIKey:         cfg.APIKey,
		JWTSecret:      cfg.JWTSecret,
	}, llmSvc, orchestrator, scheduler, messagesSvc, ragSvc, m, slog.Default())

	errCh := make(chan error, 2)

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	go func() {
		slog.Info("starting task workers", "count", cfg.TaskWorkers)
		if err := scheduler.Run(ctx, cfg.TaskWorkers); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("task worker error: %w", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.AgentRepository = (*postgres.AgentRepo)(nil)
	_ repository.TaskRepository  = (*postgres.TaskRepo)(nil)
	_ vectorstore.VectorStore    = (*vectorstore.QdrantStore)(nil)
	_ llm.Client                 = (*gigachat.Client)(nil)
)
