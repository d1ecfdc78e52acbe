package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"dropin/internal/identity/models"
	"dropin/internal/platform/postgres"
	id "dropin/pkg/domain"
	"dropin/pkg/platform/sentinel"
)

// PostgresStore persists the directory in the users and students tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, username, password_hash, role, first_name, COALESCE(student_id, ''), created_at`

// CreateUser inserts user and, when claimStudentID is set, claims the
// student profile in the same transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User, claimStudentID string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return postgres.Classify("create user", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var studentID sql.NullString
	if user.StudentID != "" {
		studentID = sql.NullString{String: user.StudentID, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, first_name, student_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO NOTHING`,
		uuid.UUID(user.ID), user.Username, user.PasswordHash, string(user.Role), user.FirstName, studentID, user.CreatedAt,
	)
	if err != nil {
		return postgres.Classify("create user", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return postgres.Classify("create user", err)
	} else if n == 0 {
		return ErrUsernameTaken
	}

	if claimStudentID != "" {
		if err := claimStudent(ctx, tx, claimStudentID, user.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return postgres.Classify("create user", err)
	}
	return nil
}

// claimStudent binds the profile to userID only if nobody holds it. The
// UPDATE row lock serializes racing sign-ups for the same student id.
func claimStudent(ctx context.Context, tx *sql.Tx, studentID string, userID id.UserID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE students SET claimed_by = $1 WHERE student_id = $2 AND claimed_by IS NULL`,
		uuid.UUID(userID), studentID,
	)
	if err != nil {
		return postgres.Classify("claim student", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return postgres.Classify("claim student", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT TRUE FROM students WHERE student_id = $1`, studentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStudentUnknown
	}
	if err != nil {
		return postgres.Classify("claim student", err)
	}
	return ErrStudentClaimed
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	return scanUser(row)
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, models.NormalizeUsername(username))
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		user   models.User
		userID uuid.UUID
		role   string
	)
	err := row.Scan(&userID, &user.Username, &user.PasswordHash, &role, &user.FirstName, &user.StudentID, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, postgres.Classify("find user", err)
	}
	user.ID = id.UserID(userID)
	user.Role = id.Role(role)
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *PostgresStore) CreateStudent(ctx context.Context, student *models.Student) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO students (student_id, first_name, last_name, email, program, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id) DO NOTHING`,
		student.StudentID, student.FirstName, student.LastName, student.Email, student.Program, student.CreatedAt,
	)
	if err != nil {
		return postgres.Classify("create student", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return postgres.Classify("create student", err)
	}
	if n == 0 {
		return ErrStudentExists
	}
	return nil
}

func (s *PostgresStore) FindStudent(ctx context.Context, studentID string) (*models.Student, error) {
	var (
		student   models.Student
		claimedBy uuid.NullUUID
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT student_id, first_name, last_name, email, program, claimed_by, created_at
		FROM students WHERE student_id = $1`, studentID,
	).Scan(&student.StudentID, &student.FirstName, &student.LastName, &student.Email, &student.Program, &claimedBy, &student.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, postgres.Classify("find student", err)
	}
	if claimedBy.Valid {
		student.ClaimedBy = id.UserID(claimedBy.UUID)
	}
	student.CreatedAt = student.CreatedAt.UTC()
	return &student, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return postgres.Classify("ping", s.db.PingContext(ctx))
}
