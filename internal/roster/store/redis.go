package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "dropin/internal/platform/redis"
	"dropin/internal/roster/models"
	id "dropin/pkg/domain"
	"dropin/pkg/platform/sentinel"
)

const defaultKeyPrefix = "dropin:"

// Claim result codes returned by claimScript.
const (
	claimInserted      = 0
	claimAlreadyMember = 1
	claimFull          = 2
	claimNoGame        = -1
)

// KEYS[1] game hash, KEYS[2] member set. ARGV[1] user id.
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
	return 1
end
local capacity = tonumber(redis.call('HGET', KEYS[1], 'capacity'))
if redis.call('SCARD', KEYS[2]) >= capacity then
	return 2
end
redis.call('SADD', KEYS[2], ARGV[1])
return 0
`)

// KEYS[1] game hash, KEYS[2] member set. ARGV[1] user id.
var releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('SREM', KEYS[2], ARGV[1])
`)

// KEYS[1] game hash, KEYS[2] index. ARGV: id, name, starts_at, capacity,
// created_by, created_at, index score.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'name', ARGV[2], 'starts_at', ARGV[3], 'capacity', ARGV[4],
	'created_by', ARGV[5], 'created_at', ARGV[6])
redis.call('ZADD', KEYS[2], ARGV[7], ARGV[1])
return 1
`)

// KEYS[1] game hash, KEYS[2] member set, KEYS[3] index. ARGV[1] game id.
var deleteScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('ZREM', KEYS[3], ARGV[1])
return 1
`)

// RedisStore keeps one hash and one member set per game. Every mutation is a
// single Lua script, which Redis runs without interleaving, so the script is
// the per-game exclusive scope.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces every key; tests use it to isolate suites.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedis constructs a Redis-backed roster store.
func NewRedis(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// The hash tag keeps a game's keys in one cluster slot.
func (s *RedisStore) gameKey(gameID id.GameID) string {
	return s.prefix + "game:{" + gameID.String() + "}"
}

func (s *RedisStore) membersKey(gameID id.GameID) string {
	return s.gameKey(gameID) + ":members"
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "games"
}

func (s *RedisStore) CreateGame(ctx context.Context, game *models.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	created, err := createScript.Run(ctx, s.client,
		[]string{s.gameKey(game.ID), s.indexKey()},
		game.ID.String(),
		game.Name,
		game.StartsAt.UTC().Format(time.RFC3339Nano),
		game.Capacity,
		game.CreatedBy.String(),
		game.CreatedAt.UTC().Format(time.RFC3339Nano),
		game.StartsAt.UnixMilli(),
	).Int()
	if err != nil {
		return classifyRedis("create game", err)
	}
	if created == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *RedisStore) DeleteGame(ctx context.Context, gameID id.GameID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	deleted, err := deleteScript.Run(ctx, s.client,
		[]string{s.gameKey(gameID), s.membersKey(gameID), s.indexKey()},
		gameID.String(),
	).Int()
	if err != nil {
		return false, classifyRedis("delete game", err)
	}
	return deleted == 1, nil
}

func (s *RedisStore) TryInsert(ctx context.Context, gameID id.GameID, userID id.UserID) (models.InsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	code, err := claimScript.Run(ctx, s.client,
		[]string{s.gameKey(gameID), s.membersKey(gameID)},
		userID.String(),
	).Int()
	if err != nil {
		return 0, classifyRedis("claim seat", err)
	}
	switch code {
	case claimInserted:
		return models.InsertOutcomeInserted, nil
	case claimAlreadyMember:
		return models.InsertOutcomeAlreadyMember, nil
	case claimFull:
		return models.InsertOutcomeFull, nil
	case claimNoGame:
		return 0, sentinel.ErrNotFound
	default:
		return 0, fmt.Errorf("claim seat: unexpected script result %d", code)
	}
}

func (s *RedisStore) RemoveIfPresent(ctx context.Context, gameID id.GameID, userID id.UserID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	code, err := releaseScript.Run(ctx, s.client,
		[]string{s.gameKey(gameID), s.membersKey(gameID)},
		userID.String(),
	).Int()
	if err != nil {
		return false, classifyRedis("release seat", err)
	}
	if code == claimNoGame {
		return false, sentinel.ErrNotFound
	}
	return code == 1, nil
}

type snapshotCmds struct {
	gameID  id.GameID
	fields  *redis.MapStringStringCmd
	members *redis.StringSliceCmd
}

// readSnapshots reads every requested game inside one MULTI/EXEC block so
// each hash and its member set come from the same instant. Games deleted in
// the meantime are skipped.
func (s *RedisStore) readSnapshots(ctx context.Context, gameIDs []id.GameID) ([]*models.GameView, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}
	cmds := make([]snapshotCmds, 0, len(gameIDs))
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, gameID := range gameIDs {
			cmds = append(cmds, snapshotCmds{
				gameID:  gameID,
				fields:  pipe.HGetAll(ctx, s.gameKey(gameID)),
				members: pipe.SMembers(ctx, s.membersKey(gameID)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	views := make([]*models.GameView, 0, len(cmds))
	for _, c := range cmds {
		fields := c.fields.Val()
		if len(fields) == 0 {
			continue
		}
		game, err := decodeGame(c.gameID, fields)
		if err != nil {
			return nil, err
		}
		members := make([]id.UserID, 0, len(c.members.Val()))
		for _, raw := range c.members.Val() {
			userID, err := id.ParseUserID(raw)
			if err != nil {
				return nil, fmt.Errorf("decode member of game %s: %w", c.gameID, err)
			}
			members = append(members, userID)
		}
		views = append(views, models.NewGameView(game, members))
	}
	return views, nil
}

func (s *RedisStore) ReadSnapshot(ctx context.Context, gameID id.GameID) (*models.GameView, error) {
	views, err := s.readSnapshots(ctx, []id.GameID{gameID})
	if err != nil {
		return nil, classifyRedis("read snapshot", err)
	}
	if len(views) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return views[0], nil
}

func (s *RedisStore) gameIDs(ctx context.Context) ([]id.GameID, error) {
	raw, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]id.GameID, 0, len(raw))
	for _, r := range raw {
		gameID, err := id.ParseGameID(r)
		if err != nil {
			return nil, fmt.Errorf("decode game index entry %q: %w", r, err)
		}
		out = append(out, gameID)
	}
	return out, nil
}

func (s *RedisStore) ListGames(ctx context.Context) ([]*models.GameView, error) {
	ids, err := s.gameIDs(ctx)
	if err != nil {
		return nil, classifyRedis("list games", err)
	}
	views, err := s.readSnapshots(ctx, ids)
	if err != nil {
		return nil, classifyRedis("list games", err)
	}
	models.SortViews(views)
	return views, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return classifyRedis("ping", err)
	}
	return nil
}

func decodeGame(gameID id.GameID, fields map[string]string) (models.Game, error) {
	capacity, err := strconv.Atoi(fields["capacity"])
	if err != nil {
		return models.Game{}, fmt.Errorf("decode capacity of game %s: %w", gameID, err)
	}
	startsAt, err := time.Parse(time.RFC3339Nano, fields["starts_at"])
	if err != nil {
		return models.Game{}, fmt.Errorf("decode start time of game %s: %w", gameID, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return models.Game{}, fmt.Errorf("decode creation time of game %s: %w", gameID, err)
	}
	createdBy, err := id.ParseUserID(fields["created_by"])
	if err != nil {
		return models.Game{}, fmt.Errorf("decode creator of game %s: %w", gameID, err)
	}
	return models.Game{
		ID:        gameID,
		Name:      fields["name"],
		StartsAt:  startsAt.UTC(),
		Capacity:  capacity,
		CreatedBy: createdBy,
		CreatedAt: createdAt.UTC(),
	}, nil
}

func classifyRedis(op string, err error) error {
	return platformredis.Classify(op, err)
}
