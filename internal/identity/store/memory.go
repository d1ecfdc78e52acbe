package store

import (
	"context"
	"sync"

	"dropin/internal/identity/models"
	id "dropin/pkg/domain"
	"dropin/pkg/platform/sentinel"
)

// InMemory keeps the directory in maps behind one lock. Account creation
// and the student claim happen under the same lock.
type InMemory struct {
	mu         sync.RWMutex
	users      map[id.UserID]*models.User
	byUsername map[string]id.UserID
	students   map[string]*models.Student
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:      make(map[id.UserID]*models.User),
		byUsername: make(map[string]id.UserID),
		students:   make(map[string]*models.Student),
	}
}

// CreateUser inserts user. When claimStudentID is set the student profile is
// bound to the new account in the same step.
func (s *InMemory) CreateUser(_ context.Context, user *models.User, claimStudentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[user.Username]; taken {
		return ErrUsernameTaken
	}
	if _, exists := s.users[user.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	var student *models.Student
	if claimStudentID != "" {
		var ok bool
		student, ok = s.students[claimStudentID]
		if !ok {
			return ErrStudentUnknown
		}
		if student.IsClaimed() {
			return ErrStudentClaimed
		}
	}

	stored := *user
	s.users[user.ID] = &stored
	s.byUsername[user.Username] = user.ID
	if student != nil {
		student.ClaimedBy = user.ID
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *user
	return &out, nil
}

func (s *InMemory) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byUsername[models.NormalizeUsername(username)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *s.users[userID]
	return &out, nil
}

func (s *InMemory) CreateStudent(_ context.Context, student *models.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.students[student.StudentID]; exists {
		return ErrStudentExists
	}
	stored := *student
	s.students[student.StudentID] = &stored
	return nil
}

func (s *InMemory) FindStudent(_ context.Context, studentID string) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	student, ok := s.students[studentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *student
	return &out, nil
}

func (s *InMemory) Ping(context.Context) error {
	return nil
}
