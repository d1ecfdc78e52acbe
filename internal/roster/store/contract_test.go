package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"dropin/internal/roster/models"
	id "dropin/pkg/domain"
	"dropin/pkg/platform/sentinel"
)

type rosterStore interface {
	CreateGame(ctx context.Context, game *models.Game) error
	DeleteGame(ctx context.Context, gameID id.GameID) (bool, error)
	TryInsert(ctx context.Context, gameID id.GameID, userID id.UserID) (models.InsertOutcome, error)
	RemoveIfPresent(ctx context.Context, gameID id.GameID, userID id.UserID) (bool, error)
	ReadSnapshot(ctx context.Context, gameID id.GameID) (*models.GameView, error)
	ListGames(ctx context.Context) ([]*models.GameView, error)
	Ping(ctx context.Context) error
}

// rosterContractSuite holds the behavior every backend must share. Backend
// suites embed it and set store in SetupTest.
type rosterContractSuite struct {
	suite.Suite
	store rosterStore
}

func (s *rosterContractSuite) createGame(capacity int) *models.Game {
	now := time.Now().Truncate(time.Millisecond)
	game, err := models.NewGame(id.NewGameID(), "Contract Game", now.Add(time.Hour), capacity, id.NewUserID(), now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateGame(context.Background(), game))
	return game
}

func (s *rosterContractSuite) TestContractCapacityScenario() {
	ctx := context.Background()
	game := s.createGame(2)
	a, b, c := id.NewUserID(), id.NewUserID(), id.NewUserID()

	outcome, err := s.store.TryInsert(ctx, game.ID, a)
	s.Require().NoError(err)
	s.Equal(models.InsertOutcomeInserted, outcome)
	outcome, err = s.store.TryInsert(ctx, game.ID, b)
	s.Require().NoError(err)
	s.Equal(models.InsertOutcomeInserted, outcome)
	outcome, err = s.store.TryInsert(ctx, game.ID, c)
	s.Require().NoError(err)
	s.Equal(models.InsertOutcomeFull, outcome)

	removed, err := s.store.RemoveIfPresent(ctx, game.ID, b)
	s.Require().NoError(err)
	s.True(removed)

	outcome, err = s.store.TryInsert(ctx, game.ID, c)
	s.Require().NoError(err)
	s.Equal(models.InsertOutcomeInserted, outcome)

	view, err := s.store.ReadSnapshot(ctx, game.ID)
	s.Require().NoError(err)
	s.Equal(2, view.Occupancy)
	s.ElementsMatch([]id.UserID{a, c}, view.Members)
	s.Equal(game.Name, view.Name)
	s.True(game.StartsAt.Equal(view.StartsAt))
}

func (s *rosterContractSuite) TestContractDuplicateAndAbsent() {
	ctx := context.Background()
	game := s.createGame(3)
	a := id.NewUserID()

	_, err := s.store.TryInsert(ctx, game.ID, a)
	s.Require().NoError(err)
	outcome, err := s.store.TryInsert(ctx, game.ID, a)
	s.Require().NoError(err)
	s.Equal(models.InsertOutcomeAlreadyMember, outcome)

	removed, err := s.store.RemoveIfPresent(ctx, game.ID, id.NewUserID())
	s.Require().NoError(err)
	s.False(removed)

	s.ErrorIs(s.store.CreateGame(ctx, game), sentinel.ErrAlreadyUsed)
}

func (s *rosterContractSuite) TestContractDeletedGameIsGone() {
	ctx := context.Background()
	game := s.createGame(3)
	a := id.NewUserID()
	_, err := s.store.TryInsert(ctx, game.ID, a)
	s.Require().NoError(err)

	deleted, err := s.store.DeleteGame(ctx, game.ID)
	s.Require().NoError(err)
	s.True(deleted)

	deleted, err = s.store.DeleteGame(ctx, game.ID)
	s.Require().NoError(err)
	s.False(deleted)

	_, err = s.store.TryInsert(ctx, game.ID, a)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.RemoveIfPresent(ctx, game.ID, a)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.ReadSnapshot(ctx, game.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	views, err := s.store.ListGames(ctx)
	s.Require().NoError(err)
	for _, v := range views {
		s.NotEqual(game.ID, v.ID)
	}
}

func (s *rosterContractSuite) TestContractListOrderingAndMembers() {
	ctx := context.Background()
	first := s.createGame(2)
	second := s.createGame(2)
	viewer := id.NewUserID()
	_, err := s.store.TryInsert(ctx, second.ID, viewer)
	s.Require().NoError(err)

	views, err := s.store.ListGames(ctx)
	s.Require().NoError(err)

	var listed, joined []id.GameID
	for _, v := range views {
		listed = append(listed, v.ID)
		s.Equal(len(v.Members), v.Occupancy)
		if v.IsMember(viewer) {
			joined = append(joined, v.ID)
		}
	}
	s.Contains(listed, first.ID)
	s.Contains(listed, second.ID)
	for i := 1; i < len(views); i++ {
		s.False(views[i].StartsAt.Before(views[i-1].StartsAt), "views are ordered by start time")
	}

	s.Equal([]id.GameID{second.ID}, joined)
}

func (s *rosterContractSuite) TestContractConcurrentLastSeat() {
	ctx := context.Background()
	game := s.createGame(3)
	for range 2 {
		_, err := s.store.TryInsert(ctx, game.ID, id.NewUserID())
		s.Require().NoError(err)
	}

	const goroutines = 20
	var wg sync.WaitGroup
	var inserted, full atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := s.store.TryInsert(ctx, game.ID, id.NewUserID())
			if err != nil {
				return
			}
			switch outcome {
			case models.InsertOutcomeInserted:
				inserted.Add(1)
			case models.InsertOutcomeFull:
				full.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), inserted.Load())
	s.Equal(int32(goroutines-1), full.Load())

	view, err := s.store.ReadSnapshot(ctx, game.ID)
	s.Require().NoError(err)
	s.Equal(3, view.Occupancy)
}

func (s *rosterContractSuite) TestContractDeleteRace() {
	ctx := context.Background()
	game := s.createGame(50)

	const goroutines = 20
	var wg sync.WaitGroup
	var unexpected atomic.Int32
	start := make(chan struct{})
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			outcome, err := s.store.TryInsert(ctx, game.ID, id.NewUserID())
			if errors.Is(err, sentinel.ErrNotFound) {
				return
			}
			if err != nil || outcome != models.InsertOutcomeInserted {
				unexpected.Add(1)
			}
		}()
	}
	close(start)
	_, err := s.store.DeleteGame(ctx, game.ID)
	s.Require().NoError(err)
	wg.Wait()

	s.Zero(unexpected.Load())
	_, err = s.store.ReadSnapshot(ctx, game.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *rosterContractSuite) TestContractPing() {
	s.NoError(s.store.Ping(context.Background()))
}
