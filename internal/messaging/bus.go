package messaging

import (
	"context"
	"sync"

	"github.com/king-ai/king/internal/domain"
)

// MemoryBus implements EventBus in process memory. Handlers run
// synchronously on the publisher's goroutine.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewMemoryBus creates an empty in-process event bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]EventHandler)}
}

// Publish delivers an event to all matching subscribers
func (b *MemoryBus) Publish(ctx context.Context, event domain.Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[event.Type]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, event)
	}
	return nil
}

// Subscribe registers a handler for the given event type
func (b *MemoryBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Close is a no-op for the in-process bus
func (b *MemoryBus) Close() error {
	return nil
}

// MemoryQueue implements Queue with a buffered channel. It is used when no
// broker is configured and in tests.
type MemoryQueue struct {
	msgs   chan []byte
	closed sync.Once
	done   chan struct{}
}

// NewMemoryQueue creates an in-process queue with the given buffer size
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 128
	}
	return &MemoryQueue{
		msgs: make(chan []byte, size),
		done: make(chan struct{}),
	}
}

// Publish enqueues a message, blocking if the buffer is full
func (q *MemoryQueue) Publish(ctx context.Context, payload []byte) error {
	// Checked first: with buffer space free the select below would pick
	// between the closed queue and the send at random.
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	case q.msgs <- payload:
		return nil
	}
}

// Consume runs workerCount workers until ctx is cancelled
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case payload := <-q.msgs:
					_ = handler(ctx, payload)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Close stops all consumers
func (q *MemoryQueue) Close() error {
	q.closed.Do(func() { close(q.done) })
	return nil
}

// Ensure interface compliance
var (
	_ EventBus = (*MemoryBus)(nil)
	_ Queue    = (*MemoryQueue)(nil)
)
