package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Listener drains a publisher on its own goroutine and hands each event to handler.
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	logger    *slog.Logger
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewListener creates a stopped listener
func NewListener[T any](publisher *Publisher[T], handler func(*Event[T]), logger *slog.Logger) *Listener[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener[T]{publisher: publisher, handler: handler, logger: logger}
}

// Start begins consuming; calling Start on a running listener is a no-op.
func (l *Listener[T]) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *Listener[T]) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		message, err := l.publisher.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			l.logger.Warn("failed to consume event", "error", err)
			continue
		}
		if message == nil {
			continue
		}
		if err = l.dispatch(message.T()); err != nil {
			err = message.Nack(err)
		} else {
			err = message.Ack()
		}
		if err != nil {
			l.logger.Warn("failed to settle event", "id", message.ID(), "error", err)
		}
	}
}

// dispatch runs the handler; a panic is returned as an error so the message is
// redelivered or dead lettered by the queue.
func (l *Listener[T]) dispatch(event *Event[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event handler panic", "event", event.Type(), "panic", r)
			err = fmt.Errorf("event handler panic: %v", r)
		}
	}()
	l.handler(event)
	return nil
}

// Stop cancels the consumer and waits for it to exit.
func (l *Listener[T]) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
