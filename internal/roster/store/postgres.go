package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"dropin/internal/platform/postgres"
	"dropin/internal/roster/models"
	id "dropin/pkg/domain"
	"dropin/pkg/platform/sentinel"
)

// PostgresStore persists rosters in PostgreSQL. Every mutation locks the
// game row with SELECT ... FOR UPDATE, which is the per-game exclusive scope;
// occupancy is counted from game_members under that lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed roster store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateGame(ctx context.Context, game *models.Game) error {
	query := `
		INSERT INTO games (id, name, starts_at, capacity, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(game.ID), game.Name, game.StartsAt, game.Capacity,
		uuid.UUID(game.CreatedBy), game.CreatedAt,
	)
	if err != nil {
		return classify("create game", err)
	}
	return nil
}

// DeleteGame removes the game; member rows go with it via ON DELETE CASCADE.
// The DELETE waits for any transaction holding the row lock, so racing
// claims either commit first or find no row.
func (s *PostgresStore) DeleteGame(ctx context.Context, gameID id.GameID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = $1`, uuid.UUID(gameID))
	if err != nil {
		return false, classify("delete game", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, classify("delete game", err)
	}
	return rows > 0, nil
}

func (s *PostgresStore) TryInsert(ctx context.Context, gameID id.GameID, userID id.UserID) (outcome models.InsertOutcome, err error) {
	err = s.withGameLock(ctx, gameID, "claim seat", func(tx *sql.Tx, capacity int) error {
		var occupancy int
		var member bool
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(BOOL_OR(user_id = $2), FALSE)
			FROM game_members
			WHERE game_id = $1
		`, uuid.UUID(gameID), uuid.UUID(userID)).Scan(&occupancy, &member)
		if err != nil {
			return err
		}
		if member {
			outcome = models.InsertOutcomeAlreadyMember
			return nil
		}
		if occupancy >= capacity {
			outcome = models.InsertOutcomeFull
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO game_members (game_id, user_id, registered_at)
			VALUES ($1, $2, $3)
		`, uuid.UUID(gameID), uuid.UUID(userID), time.Now().UTC())
		if err != nil {
			return err
		}
		outcome = models.InsertOutcomeInserted
		return nil
	})
	return outcome, err
}

func (s *PostgresStore) RemoveIfPresent(ctx context.Context, gameID id.GameID, userID id.UserID) (removed bool, err error) {
	err = s.withGameLock(ctx, gameID, "release seat", func(tx *sql.Tx, _ int) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM game_members WHERE game_id = $1 AND user_id = $2`,
			uuid.UUID(gameID), uuid.UUID(userID),
		)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = rows > 0
		return nil
	})
	return removed, err
}

// withGameLock runs fn in a transaction holding the game's row lock.
// fn's changes commit only if it returns nil.
func (s *PostgresStore) withGameLock(ctx context.Context, gameID id.GameID, op string, fn func(tx *sql.Tx, capacity int) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var capacity int
	err = tx.QueryRowContext(ctx,
		`SELECT capacity FROM games WHERE id = $1 FOR UPDATE`,
		uuid.UUID(gameID),
	).Scan(&capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return classify(op, err)
	}

	if err := fn(tx, capacity); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

const snapshotQuery = `
	SELECT g.id, g.name, g.starts_at, g.capacity, g.created_by, g.created_at, m.user_id
	FROM games g
	LEFT JOIN game_members m ON m.game_id = g.id
`

// ReadSnapshot reads the game and its members in one statement, so the view
// is a single point in time.
func (s *PostgresStore) ReadSnapshot(ctx context.Context, gameID id.GameID) (*models.GameView, error) {
	views, err := s.querySnapshots(ctx, snapshotQuery+` WHERE g.id = $1`, uuid.UUID(gameID))
	if err != nil {
		return nil, classify("read snapshot", err)
	}
	if len(views) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return views[0], nil
}

func (s *PostgresStore) ListGames(ctx context.Context) ([]*models.GameView, error) {
	views, err := s.querySnapshots(ctx, snapshotQuery+` ORDER BY g.starts_at, g.id`)
	if err != nil {
		return nil, classify("list games", err)
	}
	models.SortViews(views)
	return views, nil
}

func (s *PostgresStore) querySnapshots(ctx context.Context, query string, args ...any) ([]*models.GameView, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type acc struct {
		game    models.Game
		members []id.UserID
	}
	var order []uuid.UUID
	byID := make(map[uuid.UUID]*acc)
	for rows.Next() {
		var (
			gameID, createdBy uuid.UUID
			member            uuid.NullUUID
			g                 models.Game
		)
		if err := rows.Scan(&gameID, &g.Name, &g.StartsAt, &g.Capacity, &createdBy, &g.CreatedAt, &member); err != nil {
			return nil, err
		}
		a, ok := byID[gameID]
		if !ok {
			g.ID = id.GameID(gameID)
			g.CreatedBy = id.UserID(createdBy)
			g.StartsAt = g.StartsAt.UTC()
			g.CreatedAt = g.CreatedAt.UTC()
			a = &acc{game: g}
			byID[gameID] = a
			order = append(order, gameID)
		}
		if member.Valid {
			a.members = append(a.members, id.UserID(member.UUID))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	views := make([]*models.GameView, 0, len(order))
	for _, gameID := range order {
		a := byID[gameID]
		views = append(views, models.NewGameView(a.game, a.members))
	}
	return views, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

func classify(op string, err error) error {
	return postgres.Classify(op, err)
}
