package models

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	id "dropin/pkg/domain"
	dErrors "dropin/pkg/domain-errors"
)

const maxGameNameLength = 128

// Game is the immutable part of a roster record.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - Capacity is positive and never changes after construction
//   - StartsAt is set
//
// Occupancy is not a field: it is always the size of the membership set held
// by the store, so the two can never disagree.
type Game struct {
	ID        id.GameID
	Name      string
	StartsAt  time.Time
	Capacity  int
	CreatedBy id.UserID
	CreatedAt time.Time
}

// NewGame validates invariants and builds a Game.
func NewGame(gameID id.GameID, name string, startsAt time.Time, capacity int, createdBy id.UserID, now time.Time) (*Game, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "game name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxGameNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "game name must be 128 characters or less")
	}
	if startsAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "game start time is required")
	}
	if capacity <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "game capacity must be a positive integer")
	}
	return &Game{
		ID:        gameID,
		Name:      name,
		StartsAt:  startsAt.UTC(),
		Capacity:  capacity,
		CreatedBy: createdBy,
		CreatedAt: now.UTC(),
	}, nil
}

// GameView is a consistent point-in-time copy of one roster record.
// Members is sorted by id string and len(Members) == Occupancy.
type GameView struct {
	Game
	Occupancy int
	Members   []id.UserID
}

// NewGameView builds a view from a game and its membership set, keeping the
// occupancy derived from the set.
func NewGameView(g Game, members []id.UserID) *GameView {
	sorted := slices.Clone(members)
	SortMembers(sorted)
	return &GameView{Game: g, Occupancy: len(sorted), Members: sorted}
}

// IsMember reports whether userID held a seat when the view was taken.
func (v *GameView) IsMember(userID id.UserID) bool {
	return slices.Contains(v.Members, userID)
}

func (v *GameView) SeatsLeft() int {
	return v.Capacity - v.Occupancy
}

func (v *GameView) IsFull() bool {
	return v.Occupancy >= v.Capacity
}

// Redacted returns a copy without the membership list.
func (v *GameView) Redacted() *GameView {
	out := *v
	out.Members = nil
	return &out
}

// SortMembers orders ids by their string form.
func SortMembers(members []id.UserID) {
	slices.SortFunc(members, func(a, b id.UserID) int {
		return strings.Compare(a.String(), b.String())
	})
}

// SortViews orders views by start time, then id. Any two reads of the same
// state produce the same order.
func SortViews(views []*GameView) {
	slices.SortFunc(views, func(a, b *GameView) int {
		if c := a.StartsAt.Compare(b.StartsAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

// InsertOutcome is the result of the atomic check-capacity-and-insert step.
type InsertOutcome int

const (
	InsertOutcomeInserted InsertOutcome = iota
	InsertOutcomeAlreadyMember
	InsertOutcomeFull
)

func (o InsertOutcome) String() string {
	switch o {
	case InsertOutcomeInserted:
		return "inserted"
	case InsertOutcomeAlreadyMember:
		return "already_member"
	case InsertOutcomeFull:
		return "full"
	default:
		return "unknown"
	}
}
