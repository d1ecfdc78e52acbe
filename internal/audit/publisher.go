package audit

import (
	"context"
	"time"
)

// Sink persists audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher writes events straight to a sink on the caller's goroutine.
type Publisher struct {
	sink Sink
}

func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.sink.Append(ctx, event)
}
