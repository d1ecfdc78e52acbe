package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dropin/internal/identity/models"
	platformredis "dropin/internal/platform/redis"
	id "dropin/pkg/domain"
	"dropin/pkg/platform/sentinel"
)

const defaultKeyPrefix = "dropin:"

// Results returned by createUserScript.
const (
	createUserOK = iota
	createUserUsernameTaken
	createUserIDTaken
	createUserStudentUnknown
	createUserStudentClaimed
)

// KEYS[1] username index, KEYS[2] user hash, KEYS[3] student hash.
// ARGV: username, user id, claim student id (may be empty), password hash,
// role, first name, student id, created at.
var createUserScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
	return 1
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 2
end
if ARGV[3] ~= '' then
	if redis.call('EXISTS', KEYS[3]) == 0 then
		return 3
	end
	local claimed = redis.call('HGET', KEYS[3], 'claimed_by')
	if claimed and claimed ~= '' then
		return 4
	end
	redis.call('HSET', KEYS[3], 'claimed_by', ARGV[2])
end
redis.call('HSET', KEYS[2],
	'username', ARGV[1], 'password_hash', ARGV[4], 'role', ARGV[5],
	'first_name', ARGV[6], 'student_id', ARGV[7], 'created_at', ARGV[8])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 0
`)

// KEYS[1] student hash. ARGV: first name, last name, email, program,
// created at.
var createStudentScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'first_name', ARGV[1], 'last_name', ARGV[2], 'email', ARGV[3],
	'program', ARGV[4], 'claimed_by', '', 'created_at', ARGV[5])
return 1
`)

// RedisStore keeps accounts and student profiles in hashes plus a
// username index. All directory keys share one hash tag so account creation
// and the student claim run as one script, also on a cluster.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) usernamesKey() string {
	return s.prefix + "{directory}:usernames"
}

func (s *RedisStore) userKey(userID id.UserID) string {
	return s.prefix + "{directory}:user:" + userID.String()
}

func (s *RedisStore) studentKey(studentID string) string {
	return s.prefix + "{directory}:student:" + studentID
}

// CreateUser inserts user and, when claimStudentID is set, claims the
// student profile in the same script.
func (s *RedisStore) CreateUser(ctx context.Context, user *models.User, claimStudentID string) error {
	code, err := createUserScript.Run(ctx, s.client,
		[]string{s.usernamesKey(), s.userKey(user.ID), s.studentKey(claimStudentID)},
		user.Username,
		user.ID.String(),
		claimStudentID,
		string(user.PasswordHash),
		string(user.Role),
		user.FirstName,
		user.StudentID,
		user.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return platformredis.Classify("create user", err)
	}
	switch code {
	case createUserOK:
		return nil
	case createUserUsernameTaken:
		return ErrUsernameTaken
	case createUserIDTaken:
		return sentinel.ErrAlreadyUsed
	case createUserStudentUnknown:
		return ErrStudentUnknown
	case createUserStudentClaimed:
		return ErrStudentClaimed
	default:
		return fmt.Errorf("create user: unexpected script result %d", code)
	}
}

func (s *RedisStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	fields, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, platformredis.Classify("find user", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return decodeUser(userID, fields)
}

func (s *RedisStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	raw, err := s.client.HGet(ctx, s.usernamesKey(), models.NormalizeUsername(username)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, platformredis.Classify("find user by username", err)
	}
	userID, err := id.ParseUserID(raw)
	if err != nil {
		return nil, fmt.Errorf("decode username index entry: %w", err)
	}
	return s.FindByID(ctx, userID)
}

func (s *RedisStore) CreateStudent(ctx context.Context, student *models.Student) error {
	created, err := createStudentScript.Run(ctx, s.client,
		[]string{s.studentKey(student.StudentID)},
		student.FirstName,
		student.LastName,
		student.Email,
		student.Program,
		student.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return platformredis.Classify("create student", err)
	}
	if created == 0 {
		return ErrStudentExists
	}
	return nil
}

func (s *RedisStore) FindStudent(ctx context.Context, studentID string) (*models.Student, error) {
	fields, err := s.client.HGetAll(ctx, s.studentKey(studentID)).Result()
	if err != nil {
		return nil, platformredis.Classify("find student", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return decodeStudent(studentID, fields)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return platformredis.Classify("ping", err)
	}
	return nil
}

func decodeUser(userID id.UserID, fields map[string]string) (*models.User, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("decode creation time of user %s: %w", userID, err)
	}
	role, err := id.ParseRole(fields["role"])
	if err != nil {
		return nil, fmt.Errorf("decode role of user %s: %w", userID, err)
	}
	return &models.User{
		ID:           userID,
		Username:     fields["username"],
		PasswordHash: []byte(fields["password_hash"]),
		Role:         role,
		FirstName:    fields["first_name"],
		StudentID:    fields["student_id"],
		CreatedAt:    createdAt.UTC(),
	}, nil
}

func decodeStudent(studentID string, fields map[string]string) (*models.Student, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("decode creation time of student %s: %w", studentID, err)
	}
	student := &models.Student{
		StudentID: studentID,
		FirstName: fields["first_name"],
		LastName:  fields["last_name"],
		Email:     fields["email"],
		Program:   fields["program"],
		CreatedAt: createdAt.UTC(),
	}
	if raw := fields["claimed_by"]; raw != "" {
		claimedBy, err := id.ParseUserID(raw)
		if err != nil {
			return nil, fmt.Errorf("decode claimant of student %s: %w", studentID, err)
		}
		student.ClaimedBy = claimedBy
	}
	return student, nil
}
