package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 1024

// AsyncPublisher enqueues events without blocking the request path. A Worker
// drains the queue into a sink. When the queue is full the event is dropped
// and counted.
type AsyncPublisher struct {
	inbox   chan Event
	dropped atomic.Int64
	logger  *slog.Logger
}

// AsyncOption configures an AsyncPublisher.
type AsyncOption func(*AsyncPublisher)

func WithBufferSize(n int) AsyncOption {
	return func(p *AsyncPublisher) {
		if n > 0 {
			p.inbox = make(chan Event, n)
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) AsyncOption {
	return func(p *AsyncPublisher) {
		p.logger = logger
	}
}

func NewAsyncPublisher(opts ...AsyncOption) *AsyncPublisher {
	p := &AsyncPublisher{inbox: make(chan Event, defaultBufferSize)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit never blocks and never fails the caller; a full queue drops the event.
func (p *AsyncPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		p.dropped.Add(1)
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit queue full, dropping event",
				"action", string(event.Action),
				"game_id", event.GameID.String(),
			)
		}
	}
	return nil
}

// Dropped returns how many events were discarded because the queue was full.
func (p *AsyncPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Inbox exposes the queue for a Worker.
func (p *AsyncPublisher) Inbox() <-chan Event {
	return p.inbox
}

// Worker consumes audit events from a channel and persists them.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run drains the inbox until ctx is cancelled, then flushes whatever is
// already queued. Sink failures are logged and the event is skipped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil
		case event := <-w.inbox:
			w.append(ctx, event)
		}
	}
}

func (w *Worker) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-w.inbox:
			w.append(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, event Event) {
	if err := w.sink.Append(ctx, event); err != nil && w.logger != nil {
		w.logger.ErrorContext(ctx, "failed to persist audit event",
			"error", err,
			"action", string(event.Action),
			"game_id", event.GameID.String(),
			"request_id", event.RequestID,
		)
	}
}
