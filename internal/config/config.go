// Package config loads runtime configuration for the auth service and the
// gateway from the environment, an optional .env file and a route file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"taskboard/internal/observability"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadLogConfig reads LOG_LEVEL, LOG_FORMAT and LOG_OUTPUT.
func LoadLogConfig() observability.LogConfig {
	def := observability.DefaultLogConfig()
	return observability.LogConfig{
		Level:  getEnv("LOG_LEVEL", def.Level),
		Format: getEnv("LOG_FORMAT", def.Format),
		Output: getEnv("LOG_OUTPUT", def.Output),
	}
}

// AuthConfig configures the authentication service.
type AuthConfig struct {
	Addr                 string
	TokenLifetime        time.Duration
	InitialAdminUsername string
	UsersRequireAdmin    bool
	EventsBuffer         int
	EventsOverflow       string
}

// LoadAuthConfig reads the auth service settings from the environment.
func LoadAuthConfig() (*AuthConfig, error) {
	lifetime, err := getEnvDuration("JWT_LIFETIME", 2*time.Hour)
	if err != nil {
		return nil, err
	}
	requireAdmin, err := getEnvBool("AUTH_USERS_REQUIRE_ADMIN", false)
	if err != nil {
		return nil, err
	}
	buffer, err := getEnvInt("EVENTS_BUFFER", 64)
	if err != nil {
		return nil, err
	}
	if buffer <= 0 {
		return nil, fmt.Errorf("EVENTS_BUFFER must be positive, got %d", buffer)
	}

	return &AuthConfig{
		Addr:                 getEnv("SERVER_ADDR", ":8081"),
		TokenLifetime:        lifetime,
		InitialAdminUsername: getEnv("INITIAL_ADMIN_USERNAME", ""),
		UsersRequireAdmin:    requireAdmin,
		EventsBuffer:         buffer,
		EventsOverflow:       getEnv("EVENTS_OVERFLOW", "drop-oldest"),
	}, nil
}

// GatewayConfig configures the edge router.
type GatewayConfig struct {
	Addr           string
	RoutesFile     string
	Backends       map[string]string
	RateLimitRPS   int
	RateLimitBurst int
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
}

// Backend service names used by the route table.
const (
	BackendAuth    = "auth"
	BackendTask    = "task"
	BackendProject = "project"
	BackendMessage = "message"
)

// LoadGatewayConfig reads the gateway settings from the environment.
func LoadGatewayConfig() (*GatewayConfig, error) {
	rps, err := getEnvInt("RATE_LIMIT_RPS", 0)
	if err != nil {
		return nil, err
	}
	burst, err := getEnvInt("RATE_LIMIT_BURST", rps)
	if err != nil {
		return nil, err
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	return &GatewayConfig{
		Addr:       getEnv("SERVER_ADDR", ":8080"),
		RoutesFile: getEnv("ROUTES_FILE", ""),
		Backends: map[string]string{
			BackendAuth:    getEnv("AUTH_SERVICE_URL", "http://auth-service:8081"),
			BackendTask:    getEnv("TASK_SERVICE_URL", "http://task-service:8082"),
			BackendProject: getEnv("PROJECT_SERVICE_URL", "http://project-service:8083"),
			BackendMessage: getEnv("MESSAGE_SERVICE_URL", "http://message-service:8084"),
		},
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        redisDB,
	}, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
