package store

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"dropin/internal/identity/models"
	id "dropin/pkg/domain"
	"dropin/pkg/platform/sentinel"
)

type directoryStore interface {
	CreateUser(ctx context.Context, user *models.User, claimStudentID string) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	FindStudent(ctx context.Context, studentID string) (*models.Student, error)
	Ping(ctx context.Context) error
}

// directoryContractSuite holds behaviour every directory backend must share.
type directoryContractSuite struct {
	suite.Suite
	store directoryStore
}

func (s *directoryContractSuite) newUser(username string, role id.Role, studentID string) *models.User {
	user, err := models.NewUser(id.NewUserID(), username, []byte("$2a$04$hash"), role, "Pat", studentID, time.Now())
	s.Require().NoError(err)
	return user
}

func (s *directoryContractSuite) newStudent(studentID string) *models.Student {
	student, err := models.NewStudent(studentID, "Pat", "Doe", "pat@example.edu", "Math", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateStudent(context.Background(), student))
	return student
}

func (s *directoryContractSuite) TestContractUserLookup() {
	ctx := context.Background()
	user := s.newUser("Organizer1", id.RoleOrganizer, "")
	s.Require().NoError(s.store.CreateUser(ctx, user, ""))

	byID, err := s.store.FindByID(ctx, user.ID)
	s.Require().NoError(err)
	s.Equal(user.Username, byID.Username)
	s.Equal(id.RoleOrganizer, byID.Role)
	s.Equal(user.PasswordHash, byID.PasswordHash)

	byName, err := s.store.FindByUsername(ctx, "ORGANIZER1")
	s.Require().NoError(err)
	s.Equal(user.ID, byName.ID)

	_, err = s.store.FindByID(ctx, id.NewUserID())
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByUsername(ctx, "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *directoryContractSuite) TestContractUsernameUnique() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateUser(ctx, s.newUser("casey", id.RoleMember, ""), ""))
	err := s.store.CreateUser(ctx, s.newUser("Casey", id.RoleMember, ""), "")
	s.ErrorIs(err, ErrUsernameTaken)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *directoryContractSuite) TestContractStudentClaim() {
	ctx := context.Background()
	s.newStudent("S-100")

	first := s.newUser("first", id.RoleMember, "S-100")
	s.Require().NoError(s.store.CreateUser(ctx, first, "S-100"))

	student, err := s.store.FindStudent(ctx, "S-100")
	s.Require().NoError(err)
	s.Equal(first.ID, student.ClaimedBy)

	second := s.newUser("second", id.RoleMember, "S-100")
	s.ErrorIs(s.store.CreateUser(ctx, second, "S-100"), ErrStudentClaimed)
	_, err = s.store.FindByUsername(ctx, "second")
	s.ErrorIs(err, sentinel.ErrNotFound, "failed claim must not leave an account behind")

	s.ErrorIs(s.store.CreateUser(ctx, s.newUser("third", id.RoleMember, "S-404"), "S-404"), ErrStudentUnknown)
}

func (s *directoryContractSuite) TestContractDuplicateStudent() {
	s.newStudent("S-200")
	dup, err := models.NewStudent("S-200", "Other", "", "", "", time.Now())
	s.Require().NoError(err)
	s.ErrorIs(s.store.CreateStudent(context.Background(), dup), ErrStudentExists)

	_, err = s.store.FindStudent(context.Background(), "S-999")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *directoryContractSuite) TestContractConcurrentClaim() {
	ctx := context.Background()
	s.newStudent("S-300")

	const racers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := models.NewUser(id.NewUserID(), "racer"+string(rune('a'+i)), []byte("h"), id.RoleMember, "", "S-300", time.Now())
			if err != nil {
				return
			}
			if s.store.CreateUser(ctx, user, "S-300") == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, success)
}

func (s *directoryContractSuite) TestContractPing() {
	s.NoError(s.store.Ping(context.Background()))
}
