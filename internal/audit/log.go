package audit

import (
	"context"
	"log/slog"
)

// LogSink writes events to a structured logger. The server uses it when no
// broker is configured so the trail is not kept in memory forever.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, event Event) error {
	w := event.wire()
	s.logger.InfoContext(ctx, w.Action,
		"log_type", "audit",
		"timestamp", w.Timestamp,
		"game_id", w.GameID,
		"user_id", w.UserID,
		"actor_id", w.ActorID,
		"request_id", w.RequestID,
	)
	return nil
}
