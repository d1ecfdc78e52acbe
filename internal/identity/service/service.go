package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dropin/internal/audit"
	"dropin/internal/identity/models"
	"dropin/internal/identity/store"
	"dropin/internal/platform/config"
	id "dropin/pkg/domain"
	dErrors "dropin/pkg/domain-errors"
	"dropin/pkg/platform/sentinel"
	"dropin/pkg/requestcontext"
)

const defaultTokenTTL = 12 * time.Hour

// Store is the persistence the directory needs.
type Store interface {
	CreateUser(ctx context.Context, user *models.User, claimStudentID string) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	FindStudent(ctx context.Context, studentID string) (*models.Student, error)
}

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, now time.Time, expiresIn time.Duration) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// AuthResult is returned by Login and SignUp.
type AuthResult struct {
	User  *models.User
	Token string
}

// AddStudentRequest carries an organizer's new student profile.
type AddStudentRequest struct {
	StudentID string
	FirstName string
	LastName  string
	Email     string
	Program   string
}

// Service is the identity directory: accounts, student profiles and the
// server-side role lookup behind every authenticated request.
type Service struct {
	store          Store
	tokens         TokenIssuer
	logger         *slog.Logger
	auditPublisher AuditPublisher
	tokenTTL       time.Duration
	bcryptCost     int
	// dummyHash equalizes login timing for unknown usernames.
	dummyHash []byte
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

func New(st Store, tokens TokenIssuer, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("identity store is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	s := &Service{
		store:      st,
		tokens:     tokens,
		tokenTTL:   defaultTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("dropin-dummy-password"), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy
	return s, nil
}

// Login checks credentials and issues an access token. Unknown usernames
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.store.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, translate(err, "failed to look up user")
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.logWarn(ctx, "login failed", "reason", "unknown_username")
		return nil, errInvalidCredentials()
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		s.logWarn(ctx, "login failed", "reason", "wrong_password", "user_id", user.ID.String())
		return nil, errInvalidCredentials()
	}
	return s.issue(ctx, user)
}

// SignUp creates a member account bound to a student profile an organizer
// added earlier. Each student id can back one account.
func (s *Service) SignUp(ctx context.Context, username, password, studentID string) (*AuthResult, error) {
	if err := models.ValidateCredentials(username, password); err != nil {
		return nil, err
	}
	if studentID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "student id is required")
	}
	student, err := s.store.FindStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidArgument, "unknown student id")
		}
		return nil, translate(err, "failed to look up student")
	}

	user, err := s.newUser(ctx, username, password, id.RoleMember, student.FirstName, student.StudentID)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateUser(ctx, user, student.StudentID); err != nil {
		return nil, translate(err, "failed to create account")
	}

	s.logAudit(ctx, audit.EventAccountCreated, user.ID, user.ID, "student_id", student.StudentID)
	return s.issue(ctx, user)
}

// CreateOrganizer adds an organizer account. Used for bootstrap seeding;
// there is no HTTP route for it.
func (s *Service) CreateOrganizer(ctx context.Context, username, password, firstName string) (*models.User, error) {
	if err := models.ValidateCredentials(username, password); err != nil {
		return nil, err
	}
	user, err := s.newUser(ctx, username, password, id.RoleOrganizer, firstName, "")
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateUser(ctx, user, ""); err != nil {
		return nil, translate(err, "failed to create organizer")
	}
	s.logAudit(ctx, audit.EventAccountCreated, user.ID, user.ID, "role", string(id.RoleOrganizer))
	return user, nil
}

// AddStudent registers a student profile. Organizer only.
func (s *Service) AddStudent(ctx context.Context, requester id.Identity, req AddStudentRequest) (*models.Student, error) {
	if requester.UserID.IsNil() || !requester.Role.IsOrganizer() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only organizers can add students")
	}
	student, err := models.NewStudent(req.StudentID, req.FirstName, req.LastName, req.Email, req.Program, requestcontext.Now(ctx))
	if err != nil {
		return nil, asValidation(err)
	}
	if err := s.store.CreateStudent(ctx, student); err != nil {
		return nil, translate(err, "failed to add student")
	}
	s.logAudit(ctx, audit.EventStudentAdded, id.UserID{}, requester.UserID, "student_id", student.StudentID)
	return student, nil
}

// Resolve returns the current identity for userID. Roles always come from
// the directory, never from the client.
func (s *Service) Resolve(ctx context.Context, userID id.UserID) (id.Identity, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.Identity{}, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return id.Identity{}, translate(err, "failed to resolve identity")
	}
	return user.Identity(), nil
}

// Seed loads bootstrap organizers and student profiles. Entries that
// already exist are skipped so restarts against a durable store are safe.
func (s *Service) Seed(ctx context.Context, seed *config.Seed) error {
	if seed == nil {
		return nil
	}
	for _, org := range seed.Organizers {
		_, err := s.CreateOrganizer(ctx, org.Username, org.Password, org.FirstName)
		if err != nil && !errors.Is(err, store.ErrUsernameTaken) {
			return err
		}
	}
	for _, st := range seed.Students {
		student, err := models.NewStudent(st.StudentID, st.FirstName, st.LastName, st.Email, st.Program, time.Now())
		if err != nil {
			return asValidation(err)
		}
		if err := s.store.CreateStudent(ctx, student); err != nil && !errors.Is(err, store.ErrStudentExists) {
			return translate(err, "failed to seed student")
		}
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "identity directory seeded",
			"organizers", len(seed.Organizers),
			"students", len(seed.Students),
		)
	}
	return nil
}

func (s *Service) newUser(ctx context.Context, username, password string, role id.Role, firstName, studentID string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	user, err := models.NewUser(id.NewUserID(), username, hash, role, firstName, studentID, requestcontext.Now(ctx))
	if err != nil {
		return nil, asValidation(err)
	}
	return user, nil
}

func (s *Service) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	token, err := s.tokens.GenerateAccessToken(user.ID, requestcontext.Now(ctx), s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.EventName, userID, actorID id.UserID, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if s.logger != nil {
		args := append(attributes,
			"event", string(event),
			"log_type", "audit",
			"actor_id", actorID.String(),
		)
		if !userID.IsNil() {
			args = append(args, "user_id", userID.String())
		}
		if requestID != "" {
			args = append(args, "request_id", requestID)
		}
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Action:    event,
		UserID:    userID,
		ActorID:   actorID,
		RequestID: requestID,
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"error", err,
			"event", string(event),
			"request_id", requestID,
		)
	}
}

func (s *Service) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	args = append(args, "request_id", requestcontext.RequestID(ctx))
	s.logger.WarnContext(ctx, msg, args...)
}

func errInvalidCredentials() error {
	return dErrors.New(dErrors.CodeUnauthenticated, "invalid username or password")
}

// asValidation converts model invariant violations into validation errors.
func asValidation(err error) error {
	var invariant *dErrors.Error
	if errors.As(err, &invariant) && invariant.Code == dErrors.CodeInvariantViolation {
		return dErrors.New(dErrors.CodeInvalidArgument, invariant.Message)
	}
	return err
}

func translate(err error, msg string) error {
	switch {
	case errors.Is(err, store.ErrUsernameTaken):
		return dErrors.Wrap(err, dErrors.CodeInvalidArgument, "username already taken")
	case errors.Is(err, store.ErrStudentClaimed):
		return dErrors.Wrap(err, dErrors.CodeInvalidArgument, "student id already has an account")
	case errors.Is(err, store.ErrStudentUnknown):
		return dErrors.Wrap(err, dErrors.CodeInvalidArgument, "unknown student id")
	case errors.Is(err, store.ErrStudentExists):
		return dErrors.Wrap(err, dErrors.CodeInvalidArgument, "student id already exists")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
