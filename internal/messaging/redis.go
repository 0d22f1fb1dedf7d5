package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/king-ai/king/internal/domain"
)

// RedisConfig holds connection parameters for the Redis backends
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	Channel   string
	BlockWait time.Duration
}

// RedisQueue implements Queue using a Redis list
type RedisQueue struct {
	client *redis.Client
	queue  string
	wait   time.Duration
}

// NewRedisQueue connects to Redis and verifies the connection
func NewRedisQueue(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "king:tasks"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisQueue{client: client, queue: queue, wait: wait}, nil
}

// Publish enqueues a message
func (q *RedisQueue) Publish(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis queue: %w", err)
	}
	return nil
}

// Consume runs workerCount workers pulling messages with BRPOP. Messages
// whose handler fails are pushed back for redelivery.
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}
				values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					if errors.Is(err, redis.Nil) {
						continue
					}
					errCh <- fmt.Errorf("failed to pop from redis queue: %w", err)
					return
				}
				if len(values) != 2 {
					continue
				}
				payload := []byte(values[1])
				if handlerErr := handler(ctx, payload); handlerErr != nil {
					_ = q.client.RPush(ctx, q.queue, payload).Err()
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close closes the Redis connection
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// RedisEventBus implements EventBus over Redis pub/sub. Events from other
// processes are dispatched to local subscribers by a background goroutine.
type RedisEventBus struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]EventHandler

	sub    *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisEventBus connects to Redis and starts the subscription loop
func NewRedisEventBus(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisEventBus, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "king:events"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		client:   client,
		channel:  channel,
		logger:   logger,
		handlers: make(map[string][]EventHandler),
		sub:      client.Subscribe(runCtx, channel),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go bus.receive(runCtx)
	return bus, nil
}

// Publish delivers an event through the Redis channel
func (b *RedisEventBus) Publish(ctx context.Context, event domain.Event) error {
	data, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe registers a handler for the given event type
func (b *RedisEventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

func (b *RedisEventBus) receive(ctx context.Context) {
	defer close(b.done)
	ch := b.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			event, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping malformed event", "error", err)
				continue
			}
			b.dispatch(ctx, event)
		}
	}
}

func (b *RedisEventBus) dispatch(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[event.Type]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, event)
	}
}

// Close stops the subscription loop and closes the connection
func (b *RedisEventBus) Close() error {
	b.cancel()
	_ = b.sub.Close()
	<-b.done
	return b.client.Close()
}

// Ensure interface compliance
var (
	_ Queue    = (*RedisQueue)(nil)
	_ EventBus = (*RedisEventBus)(nil)
)
