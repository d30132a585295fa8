package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/observability"
	"taskboard/internal/repository"
	"taskboard/internal/utils"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrDuplicateAccount = errors.New("account with this username already exists")
	ErrMissingField     = errors.New("missing required fields: username and password")
	ErrAuthentication   = errors.New("invalid username or password")
	ErrPasswordTooLong  = errors.New("password exceeds 72 bytes")
)

// TokenIssuer signs tokens for authenticated accounts.
type TokenIssuer interface {
	GenerateToken(user *model.User) (string, error)
}

// EventPublisher receives account events. Publish must not block.
type EventPublisher interface {
	Publish(ev model.Event) int
}

// AuthService provides authentication related services
type AuthService interface {
	Signup(ctx context.Context, username, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (*model.User, string, error)
	ListUsers(ctx context.Context) ([]model.User, error)
}

type authService struct {
	userRepo     repository.UserRepository
	issuer       TokenIssuer
	publisher    EventPublisher
	logger       observability.Logger
	initialAdmin string
	now          func() time.Time
}

// Option configures the auth service.
type Option func(*authService)

// WithInitialAdmin makes signup of this username create an ADMIN account.
func WithInitialAdmin(username string) Option {
	return func(s *authService) {
		s.initialAdmin = username
	}
}

// WithPublisher sets the sink for USER_CREATED and USER_LOGGED_IN events.
func WithPublisher(p EventPublisher) Option {
	return func(s *authService) {
		s.publisher = p
	}
}

// WithLogger sets the service logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *authService) {
		s.logger = logger
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *authService) {
		s.now = now
	}
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo repository.UserRepository, issuer TokenIssuer, opts ...Option) AuthService {
	s := &authService{
		userRepo: userRepo,
		issuer:   issuer,
		logger:   observability.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup creates a new account with the default USER role
func (s *authService) Signup(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingField
	}

	existing, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateAccount
	}

	hashedPassword, err := utils.HashPassword(password)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrPasswordTooLong
	}
	if err != nil {
		return nil, err
	}

	role := model.RoleUser
	if s.initialAdmin != "" && username == s.initialAdmin {
		role = model.RoleAdmin
		s.logger.WithContext(ctx).Info("registering initial admin account", observability.String("username", username))
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hashedPassword,
		Role:         role,
		CreatedAt:    s.now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// A concurrent signup can win between the lookup and the insert.
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("failed to create user in repository: %w", err)
	}

	s.publish(model.Event{Type: model.EventUserCreated, Username: user.Username, User: user})
	return user, nil
}

// Login authenticates a user and returns a signed token
func (s *authService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", ErrMissingField
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, "", fmt.Errorf("error finding user by username: %w", err)
	}
	if user == nil || !utils.CheckPasswordHash(password, user.PasswordHash) {
		return nil, "", ErrAuthentication
	}

	token, err := s.issuer.GenerateToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.publish(model.Event{Type: model.EventUserLoggedIn, Username: user.Username})
	return user, token, nil
}

// ListUsers returns every account
func (s *authService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.userRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *authService) publish(ev model.Event) {
	if s.publisher == nil {
		return
	}
	ev.OccurredAt = s.now()
	s.publisher.Publish(ev)
}
