package models

import (
	"net/mail"
	"strings"
	"time"

	id "dropin/pkg/domain"
	dErrors "dropin/pkg/domain-errors"
)

const (
	maxUsernameLength = 64
	minPasswordLength = 8
	maxStudentIDChars = 32
)

// User is an account in the identity directory.
//
// Invariants:
//   - Username is lower case, trimmed and non-empty
//   - PasswordHash is a bcrypt hash, never the password
//   - Role is member or organizer
type User struct {
	ID           id.UserID
	Username     string
	PasswordHash []byte
	Role         id.Role
	FirstName    string
	StudentID    string
	CreatedAt    time.Time
}

// Identity is the part of a user the engine sees.
func (u *User) Identity() id.Identity {
	return id.Identity{UserID: u.ID, Role: u.Role}
}

// NormalizeUsername folds usernames so lookups are case-insensitive.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateCredentials checks the shape of a username and password before
// any hashing happens.
func ValidateCredentials(username, password string) error {
	username = NormalizeUsername(username)
	if username == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "username is required")
	}
	if len(username) > maxUsernameLength {
		return dErrors.New(dErrors.CodeInvalidArgument, "username must be 64 characters or less")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return dErrors.New(dErrors.CodeInvalidArgument, "username cannot contain whitespace")
	}
	if len(password) < minPasswordLength {
		return dErrors.New(dErrors.CodeInvalidArgument, "password must be at least 8 characters")
	}
	// bcrypt ignores everything past 72 bytes.
	if len(password) > 72 {
		return dErrors.New(dErrors.CodeInvalidArgument, "password must be 72 bytes or less")
	}
	return nil
}

// NewUser builds a User from an already hashed password.
func NewUser(userID id.UserID, username string, passwordHash []byte, role id.Role, firstName, studentID string, now time.Time) (*User, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username cannot be empty")
	}
	if len(passwordHash) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash is required")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid role")
	}
	return &User{
		ID:           userID,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		FirstName:    strings.TrimSpace(firstName),
		StudentID:    strings.TrimSpace(studentID),
		CreatedAt:    now.UTC(),
	}, nil
}

// Student is a profile an organizer registers ahead of sign-up. A member
// account claims it once.
type Student struct {
	StudentID string
	FirstName string
	LastName  string
	Email     string
	Program   string
	ClaimedBy id.UserID
	CreatedAt time.Time
}

// IsClaimed reports whether an account already owns this profile.
func (s *Student) IsClaimed() bool {
	return !s.ClaimedBy.IsNil()
}

// NewStudent validates and builds a student profile.
func NewStudent(studentID, firstName, lastName, email, program string, now time.Time) (*Student, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "student id is required")
	}
	if len(studentID) > maxStudentIDChars {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "student id must be 32 characters or less")
	}
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "first name is required")
	}
	email = strings.TrimSpace(email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid email address")
		}
	}
	return &Student{
		StudentID: studentID,
		FirstName: firstName,
		LastName:  strings.TrimSpace(lastName),
		Email:     email,
		Program:   strings.TrimSpace(program),
		CreatedAt: now.UTC(),
	}, nil
}
