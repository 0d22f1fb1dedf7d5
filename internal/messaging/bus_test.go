package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/king-ai/king/internal/domain"
)

func TestMemoryBusDispatch(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	var taskEvents, allEvents []string
	bus.Subscribe(domain.EventTaskCreated, func(_ context.Context, e domain.Event) {
		taskEvents = append(taskEvents, e.Type)
	})
	bus.Subscribe("*", func(_ context.Context, e domain.Event) {
		allEvents = append(allEvents, e.Type)
	})

	if err := bus.Publish(ctx, domain.NewEvent(domain.EventTaskCreated, nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := bus.Publish(ctx, domain.NewEvent(domain.EventAgentCreated, nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(taskEvents) != 1 || taskEvents[0] != domain.EventTaskCreated {
		t.Errorf("typed handler saw %v, want [task.created]", taskEvents)
	}
	if len(allEvents) != 2 {
		t.Errorf("wildcard handler saw %d events, want 2", len(allEvents))
	}
}

func TestMemoryBusMultipleSubscribers(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	calls := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe(domain.EventAgentCreated, func(context.Context, domain.Event) { calls++ })
	}
	if err := bus.Publish(ctx, domain.NewEvent(domain.EventAgentCreated, nil)); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("got %d handler calls, want 3", calls)
	}
}

func TestEventEncodeDecode(t *testing.T) {
	event := domain.NewEvent(domain.EventTaskCompleted, map[string]any{
		"task_id": "abc",
		"retries": float64(2),
	})

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}

	if decoded.Type != event.Type {
		t.Errorf("Type = %s, want %s", decoded.Type, event.Type)
	}
	if decoded.CorrelationID != event.CorrelationID {
		t.Errorf("CorrelationID = %s, want %s", decoded.CorrelationID, event.CorrelationID)
	}
	if decoded.Payload["task_id"] != "abc" || decoded.Payload["retries"] != float64(2) {
		t.Errorf("Payload = %v", decoded.Payload)
	}
	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", decoded.Timestamp, event.Timestamp)
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	if _, err := DecodeEvent([]byte("{not json")); err == nil {
		t.Error("DecodeEvent() with malformed input succeeded, want error")
	}
}

func TestMemoryQueueDelivery(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	got := make(map[string]bool)
	received := make(chan struct{}, 4)

	consumeDone := make(chan error, 1)
	go func() {
		consumeDone <- q.Consume(ctx, 2, func(_ context.Context, payload []byte) error {
			mu.Lock()
			got[string(payload)] = true
			mu.Unlock()
			received <- struct{}{}
			return nil
		})
	}()

	for _, msg := range []string{"a", "b", "c"} {
		if err := q.Publish(ctx, []byte(msg)); err != nil {
			t.Fatalf("Publish(%s) error = %v", msg, err)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case <-received:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	mu.Lock()
	for _, msg := range []string{"a", "b", "c"} {
		if !got[msg] {
			t.Errorf("message %s not delivered", msg)
		}
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-consumeDone:
		if err != context.Canceled {
			t.Errorf("Consume() returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Consume() did not stop after cancel")
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	// Repeated to catch the send racing the closed check when the buffer
	// has free space.
	for i := 0; i < 50; i++ {
		if err := q.Publish(ctx, []byte("x")); !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("Publish() after Close() error = %v, want ErrQueueClosed", err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- q.Consume(ctx, 1, func(context.Context, []byte) error { return nil }) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Consume() did not return on closed queue")
	}
}
