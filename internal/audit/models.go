package audit

import (
	"time"

	id "dropin/pkg/domain"
)

// EventName is the action recorded by a roster audit event.
type EventName string

const (
	EventGameCreated        EventName = "game_created"
	EventGameDeleted        EventName = "game_deleted"
	EventSeatClaimed        EventName = "seat_claimed"
	EventSeatReleased       EventName = "seat_released"
	EventParticipantRemoved EventName = "participant_removed"
	EventStudentAdded       EventName = "student_added"
	EventAccountCreated     EventName = "account_created"
)

// Event is emitted from domain logic after a committed change. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp time.Time
	Action    EventName
	GameID    id.GameID
	// UserID is the identity whose seat or account changed.
	UserID id.UserID
	// ActorID is who asked for the change; equal to UserID for self-service.
	ActorID   id.UserID
	RequestID string
}

// wireEvent is the JSON form written to external sinks.
type wireEvent struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	GameID    string `json:"game_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (e Event) wire() wireEvent {
	w := wireEvent{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:    string(e.Action),
		RequestID: e.RequestID,
	}
	if !e.GameID.IsNil() {
		w.GameID = e.GameID.String()
	}
	if !e.UserID.IsNil() {
		w.UserID = e.UserID.String()
	}
	if !e.ActorID.IsNil() {
		w.ActorID = e.ActorID.String()
	}
	return w
}
