package repository

import (
	"context"
	"errors"
	"fmt"

	"taskboard/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateUsername is returned when the username unique constraint is violated
var ErrDuplicateUsername = errors.New("username already exists")

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DBTX is the subset of pgxpool.Pool used by repositories
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// UserRepository defines operations for account data
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindAll(ctx context.Context) ([]model.User, error)
}

type userRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new account into the database
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	sql := `INSERT INTO user_dt (username, password, role, created_at)
            VALUES ($1, $2, $3, $4) RETURNING id`
	err := r.db.QueryRow(ctx, sql, user.Username, user.PasswordHash, string(user.Role), user.CreatedAt).Scan(&user.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByUsername retrieves an account by username. Returns nil, nil when absent.
func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	sql := `SELECT id, username, password, role, created_at FROM user_dt WHERE username = $1`
	user, err := scanUser(r.db.QueryRow(ctx, sql, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	return user, nil
}

// FindByID retrieves an account by its ID. Returns nil, nil when absent.
func (r *userRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	sql := `SELECT id, username, password, role, created_at FROM user_dt WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindAll lists every account ordered by ID
func (r *userRepository) FindAll(ctx context.Context) ([]model.User, error) {
	sql := `SELECT id, username, password, role, created_at FROM user_dt ORDER BY id`
	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	user := &model.User{}
	var role string
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &role, &user.CreatedAt); err != nil {
		return nil, err
	}
	r, ok := model.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("unknown role %q for user %d", role, user.ID)
	}
	user.Role = r
	return user, nil
}
