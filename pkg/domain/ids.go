package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "dropin/pkg/domain-errors"
)

// UserID identifies a participant or organizer. Stable for the life of the
// account; never reused.
type UserID uuid.UUID

// GameID identifies a scheduled game.
type GameID uuid.UUID

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id GameID) String() string { return uuid.UUID(id).String() }
func (id GameID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewGameID allocates a random game id.
func NewGameID() GameID { return GameID(uuid.New()) }

// NewUserID allocates a random user id.
func NewUserID() UserID { return UserID(uuid.New()) }

// ParseUserID parses external input into a UserID.
//
// Errors: CodeInvalidArgument when the value is empty, malformed or the nil
// UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseGameID parses external input into a GameID.
//
// Errors: CodeInvalidArgument when the value is empty, malformed or the nil
// UUID.
func ParseGameID(s string) (GameID, error) {
	u, err := parseUUID(s, "game id")
	return GameID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidArgument, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidArgument, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidArgument, "invalid "+label)
	}
	return u, nil
}
