package store

import (
	"context"
	"sync"

	"dropin/internal/roster/models"
	id "dropin/pkg/domain"
	"dropin/pkg/platform/sentinel"
)

// gameRecord is one game's arena slot. mu is the game's exclusive mutation
// scope; nothing else guards members.
type gameRecord struct {
	mu      sync.RWMutex
	game    models.Game
	members map[id.UserID]struct{}
	// deleted is set under mu before the record becomes unreachable, so a
	// mutator that looked the record up before the delete fails instead of
	// writing into a dead record.
	deleted bool
}

// InMemory is the reference roster store. Each game has its own lock; the
// index lock is held only to find or unlink a record, never across a
// mutation, so unrelated games never serialize.
type InMemory struct {
	mu    sync.RWMutex
	games map[id.GameID]*gameRecord
}

// NewInMemory creates an empty in-memory roster store.
func NewInMemory() *InMemory {
	return &InMemory{games: make(map[id.GameID]*gameRecord)}
}

func (s *InMemory) lookup(gameID id.GameID) (*gameRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.games[gameID]
	return rec, ok
}

func (s *InMemory) CreateGame(ctx context.Context, game *models.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[game.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.games[game.ID] = &gameRecord{
		game:    *game,
		members: make(map[id.UserID]struct{}),
	}
	return nil
}

// DeleteGame unlinks the record from the index, then tombstones it under its
// own lock. Mutations already holding the record lock finish first.
func (s *InMemory) DeleteGame(ctx context.Context, gameID id.GameID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	rec, ok := s.games[gameID]
	if ok {
		delete(s.games, gameID)
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	rec.mu.Lock()
	rec.deleted = true
	rec.members = nil
	rec.mu.Unlock()
	return true, nil
}

// TryInsert is the atomic check-capacity-and-insert step.
func (s *InMemory) TryInsert(ctx context.Context, gameID id.GameID, userID id.UserID) (models.InsertOutcome, error) {
	rec, ok := s.lookup(gameID)
	if !ok {
		return 0, sentinel.ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return 0, sentinel.ErrNotFound
	}
	// Last point at which an abandoned request may still back out.
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, member := rec.members[userID]; member {
		return models.InsertOutcomeAlreadyMember, nil
	}
	if len(rec.members) >= rec.game.Capacity {
		return models.InsertOutcomeFull, nil
	}
	rec.members[userID] = struct{}{}
	return models.InsertOutcomeInserted, nil
}

func (s *InMemory) RemoveIfPresent(ctx context.Context, gameID id.GameID, userID id.UserID) (bool, error) {
	rec, ok := s.lookup(gameID)
	if !ok {
		return false, sentinel.ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return false, sentinel.ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, member := rec.members[userID]; !member {
		return false, nil
	}
	delete(rec.members, userID)
	return true, nil
}

func (s *InMemory) ReadSnapshot(_ context.Context, gameID id.GameID) (*models.GameView, error) {
	rec, ok := s.lookup(gameID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	view, ok := rec.snapshot()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return view, nil
}

// ListGames copies every live record. Each view is consistent on its own;
// records are read one at a time under their shared lock.
func (s *InMemory) ListGames(_ context.Context) ([]*models.GameView, error) {
	records := s.records()
	views := make([]*models.GameView, 0, len(records))
	for _, rec := range records {
		if view, ok := rec.snapshot(); ok {
			views = append(views, view)
		}
	}
	models.SortViews(views)
	return views, nil
}

// Ping always succeeds; the in-process store has no medium to lose.
func (s *InMemory) Ping(_ context.Context) error {
	return nil
}

func (s *InMemory) records() []*gameRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]*gameRecord, 0, len(s.games))
	for _, rec := range s.games {
		recs = append(recs, rec)
	}
	return recs
}

func (r *gameRecord) snapshot() (*models.GameView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.deleted {
		return nil, false
	}
	members := make([]id.UserID, 0, len(r.members))
	for userID := range r.members {
		members = append(members, userID)
	}
	return models.NewGameView(r.game, members), true
}
