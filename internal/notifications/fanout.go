package notifications

import (
	"context"
	"fmt"
	"sync"

	"helpmatch/internal/models"
	"helpmatch/internal/observability"
	"helpmatch/internal/repository"
)

// Sink receives every persisted notification.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, env Envelope) error
}

// FanOutConfig sizes the worker pool.
type FanOutConfig struct {
	Workers   int
	QueueSize int
}

type job struct {
	ctx   context.Context
	event models.NotificationEvent
}

// FanOut persists and delivers notification events in the background.
// Emit never blocks the caller and delivery failures never reach it.
type FanOut struct {
	store repository.NotificationRepository
	sinks []Sink
	queue chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewFanOut starts cfg.Workers goroutines reading from a queue of cfg.QueueSize.
func NewFanOut(store repository.NotificationRepository, cfg FanOutConfig, sinks ...Sink) *FanOut {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	f := &FanOut{
		store: store,
		sinks: sinks,
		queue: make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		f.wg.Add(1)
		go f.worker()
	}
	return f
}

// Emit enqueues events. When the queue is full the event is dropped.
func (f *FanOut) Emit(ctx context.Context, events ...models.NotificationEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		for range events {
			observability.FanOutEvents.WithLabelValues("queue", "closed").Inc()
		}
		return
	}

	detached := context.WithoutCancel(ctx)
	for _, ev := range events {
		select {
		case f.queue <- job{ctx: detached, event: ev}:
			observability.FanOutQueueDepth.Inc()
		default:
			observability.FanOutEvents.WithLabelValues("queue", "dropped").Inc()
			observability.LogAsyncOperationError(ctx, "notification_fanout", fmt.Errorf("queue full"), map[string]interface{}{
				"user_id":    ev.UserID,
				"kind":       string(ev.Kind),
				"request_id": ev.RequestID,
			})
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered or ctx to end.
func (f *FanOut) Close(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FanOut) worker() {
	defer f.wg.Done()
	for j := range f.queue {
		observability.FanOutQueueDepth.Dec()
		f.deliver(j.ctx, j.event)
	}
}

func (f *FanOut) deliver(ctx context.Context, ev models.NotificationEvent) {
	fields := map[string]interface{}{
		"user_id":    ev.UserID,
		"kind":       string(ev.Kind),
		"request_id": ev.RequestID,
	}
	observability.LogAsyncOperationStart(ctx, "notification_fanout", fields)

	if f.store != nil {
		f.record(ctx, "store", "notification_persist", fields, func() error {
			return f.store.Create(ctx, &ev)
		})
	}

	env := NewEnvelope(ev)
	for _, sink := range f.sinks {
		f.record(ctx, sink.Name(), "notification_deliver", map[string]interface{}{
			"sink":     sink.Name(),
			"user_id":  ev.UserID,
			"kind":     string(ev.Kind),
			"event_id": env.ID,
		}, func() error {
			return sink.Deliver(ctx, env)
		})
	}

	observability.LogAsyncOperationEnd(ctx, "notification_fanout", fields)
}

// record runs one delivery step and counts its outcome under name. A panic is
// contained to that step.
func (f *FanOut) record(ctx context.Context, name, operation string, fields map[string]interface{}, step func() error) {
	defer func() {
		if r := recover(); r != nil {
			observability.FanOutEvents.WithLabelValues(name, "panic").Inc()
			observability.LogAsyncOperationError(ctx, operation, fmt.Errorf("panic: %v", r), fields)
		}
	}()

	if err := step(); err != nil {
		observability.FanOutEvents.WithLabelValues(name, "error").Inc()
		observability.LogAsyncOperationError(ctx, operation, err, fields)
		return
	}
	observability.FanOutEvents.WithLabelValues(name, "ok").Inc()
}
