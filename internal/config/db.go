package config

import (
	"context"
	"fmt"
	"time"

	"taskboard/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBConfig holds database connection parameters
type DBConfig struct {
	DSN           string
	MaxRetries    int
	RetryInterval time.Duration
}

// LoadDBConfig loads database configuration from environment variables
func LoadDBConfig() (*DBConfig, error) {
	dbHost := getEnv("DB_HOST", "")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbName := getEnv("DB_NAME", "")

	if dbHost == "" || dbUser == "" || dbName == "" {
		return nil, fmt.Errorf("database environment variables not set (DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME)")
	}

	retries, err := getEnvInt("DB_CONNECT_RETRIES", 5)
	if err != nil {
		return nil, err
	}
	interval, err := getEnvDuration("DB_CONNECT_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbHost, dbPort, dbUser, dbPassword, dbName, getEnv("DB_SSLMODE", "disable"))

	return &DBConfig{DSN: dsn, MaxRetries: retries, RetryInterval: interval}, nil
}

// ConnectDB establishes a connection to the PostgreSQL database
func ConnectDB(ctx context.Context, cfg *DBConfig, logger observability.Logger) (*pgxpool.Pool, error) {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var err error
	for i := 0; i < maxRetries; i++ {
		var pool *pgxpool.Pool
		pool, err = pgxpool.New(ctx, cfg.DSN)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.Info("connected to PostgreSQL")
				return pool, nil
			}
			pool.Close()
		}
		logger.Warn("failed to connect to database",
			observability.Int("attempt", i+1),
			observability.Int("max_attempts", maxRetries),
			observability.Duration("retry_in", cfg.RetryInterval),
			observability.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, fmt.Errorf("unable to connect to database after %d attempts: %w", maxRetries, err)
}

// schema bootstraps the credential store. It is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS user_dt (
	id BIGSERIAL PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('USER', 'ADMIN')) DEFAULT 'USER',
	created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);
`

// Execer is the subset of pgxpool.Pool needed to apply the schema.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// AutoMigrate creates the account table if it does not exist
func AutoMigrate(ctx context.Context, db Execer, logger observability.Logger) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("unable to apply migrations: %w", err)
	}
	logger.Info("schema bootstrap applied")
	return nil
}
