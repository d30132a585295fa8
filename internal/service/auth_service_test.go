package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskboard/internal/events"
	"taskboard/internal/model"
	"taskboard/internal/repository"
	"taskboard/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *mockUserRepo) FindAll(ctx context.Context) ([]model.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]model.User)
	return users, args.Error(1)
}

// memRepo is an in-memory credential store used for round-trip tests.
type memRepo struct {
	users map[string]*model.User
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]*model.User{}}
}

func (r *memRepo) Create(_ context.Context, user *model.User) error {
	if _, ok := r.users[user.Username]; ok {
		return repository.ErrDuplicateUsername
	}
	user.ID = int64(len(r.users) + 1)
	stored := *user
	r.users[user.Username] = &stored
	return nil
}

func (r *memRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	if u, ok := r.users[username]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *memRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) FindAll(_ context.Context) ([]model.User, error) {
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func newJWT() *utils.JWTUtil {
	return utils.NewJWTUtil("test-secret", 2*time.Hour)
}

func TestSignupThenLogin(t *testing.T) {
	jwtUtil := newJWT()
	svc := NewAuthService(newMemRepo(), jwtUtil)
	ctx := context.Background()

	credentials := []struct{ username, password string }{
		{"alice@example.com", "password123"},
		{"bob@example.com", "p"},
		{"carol+tag@example.org", "correct horse battery staple"},
	}
	for _, c := range credentials {
		user, err := svc.Signup(ctx, c.username, c.password)
		require.NoError(t, err)
		assert.Equal(t, model.RoleUser, user.Role)
		assert.NotEqual(t, c.password, user.PasswordHash)

		_, token, err := svc.Login(ctx, c.username, c.password)
		require.NoError(t, err)

		claims, err := jwtUtil.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, c.username, claims.Username)
		assert.Equal(t, model.RoleUser, claims.Role)
	}
}

func TestSignup_DuplicateKeepsOriginalHash(t *testing.T) {
	repo := newMemRepo()
	svc := NewAuthService(repo, newJWT())
	ctx := context.Background()

	_, err := svc.Signup(ctx, "alice@example.com", "first-password")
	require.NoError(t, err)
	originalHash := repo.users["alice@example.com"].PasswordHash

	_, err = svc.Signup(ctx, "alice@example.com", "second-password")
	assert.ErrorIs(t, err, ErrDuplicateAccount)
	assert.Equal(t, originalHash, repo.users["alice@example.com"].PasswordHash)

	_, _, err = svc.Login(ctx, "alice@example.com", "first-password")
	assert.NoError(t, err)
	_, _, err = svc.Login(ctx, "alice@example.com", "second-password")
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestSignup_MissingFields(t *testing.T) {
	repo := &mockUserRepo{}
	svc := NewAuthService(repo, newJWT())

	for _, c := range []struct{ username, password string }{{"", "pw"}, {"alice@example.com", ""}, {"   ", "pw"}} {
		_, err := svc.Signup(context.Background(), c.username, c.password)
		assert.ErrorIs(t, err, ErrMissingField)
	}
	repo.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
}

func TestSignup_InsertRaceMapsToDuplicate(t *testing.T) {
	repo := &mockUserRepo{}
	repo.On("FindByUsername", mock.Anything, "alice@example.com").Return(nil, nil)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(repository.ErrDuplicateUsername)

	_, err := NewAuthService(repo, newJWT()).Signup(context.Background(), "alice@example.com", "pw")
	assert.ErrorIs(t, err, ErrDuplicateAccount)
	repo.AssertExpectations(t)
}

func TestSignup_PasswordTooLong(t *testing.T) {
	repo := newMemRepo()
	svc := NewAuthService(repo, newJWT())

	_, err := svc.Signup(context.Background(), "bob@example.com", strings.Repeat("p", 80))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	assert.Empty(t, repo.users)

	_, err = svc.Signup(context.Background(), "bob@example.com", strings.Repeat("p", 72))
	assert.NoError(t, err)
}

func TestSignup_RepositoryError(t *testing.T) {
	repo := &mockUserRepo{}
	repo.On("FindByUsername", mock.Anything, "alice@example.com").Return(nil, errors.New("db down"))

	_, err := NewAuthService(repo, newJWT()).Signup(context.Background(), "alice@example.com", "pw")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateAccount)
}

func TestSignup_InitialAdmin(t *testing.T) {
	svc := NewAuthService(newMemRepo(), newJWT(), WithInitialAdmin("root@example.com"))

	admin, err := svc.Signup(context.Background(), "root@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)

	user, err := svc.Signup(context.Background(), "alice@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, user.Role)
}

func TestLogin_UniformFailure(t *testing.T) {
	svc := NewAuthService(newMemRepo(), newJWT())
	ctx := context.Background()
	_, err := svc.Signup(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	_, _, unknownErr := svc.Login(ctx, "nobody@example.com", "password123")
	_, _, wrongErr := svc.Login(ctx, "alice@example.com", "wrong")

	assert.ErrorIs(t, unknownErr, ErrAuthentication)
	assert.ErrorIs(t, wrongErr, ErrAuthentication)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestLogin_MissingFields(t *testing.T) {
	_, _, err := NewAuthService(&mockUserRepo{}, newJWT()).Login(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestPublishesEvents(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()
	sub, err := hub.Subscribe()
	require.NoError(t, err)

	fixed := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	svc := NewAuthService(newMemRepo(), newJWT(), WithPublisher(hub), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	_, err = svc.Signup(ctx, "alice@example.com", "pw")
	require.NoError(t, err)
	_, _, err = svc.Login(ctx, "alice@example.com", "pw")
	require.NoError(t, err)
	_, _, err = svc.Login(ctx, "alice@example.com", "bad")
	require.Error(t, err)

	created := <-sub.Events()
	assert.Equal(t, model.EventUserCreated, created.Type)
	assert.Equal(t, "alice@example.com", created.Username)
	require.NotNil(t, created.User)
	assert.Equal(t, fixed, created.OccurredAt)

	loggedIn := <-sub.Events()
	assert.Equal(t, model.EventUserLoggedIn, loggedIn.Type)
	assert.Nil(t, loggedIn.User)

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestListUsers(t *testing.T) {
	repo := &mockUserRepo{}
	repo.On("FindAll", mock.Anything).Return([]model.User{{ID: 1, Username: "alice@example.com"}}, nil)

	users, err := NewAuthService(repo, newJWT()).ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)

	failing := &mockUserRepo{}
	failing.On("FindAll", mock.Anything).Return(nil, errors.New("db down"))
	_, err = NewAuthService(failing, newJWT()).ListUsers(context.Background())
	assert.Error(t, err)
}
