package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
)

// ErrSecretNotFound is returned when no signing secret can be resolved.
var ErrSecretNotFound = errors.New("jwt signing secret not configured")

// SecretConfig tells both binaries where the shared signing secret lives.
// When VaultAddr is set the secret is read from Vault KV v2 and
// JWT_SECRET_KEY is ignored.
type SecretConfig struct {
	EnvValue   string
	VaultAddr  string
	VaultToken string
	Mount      string
	Path       string
	Key        string
}

// LoadSecretConfig reads the secret source from the environment.
func LoadSecretConfig() SecretConfig {
	return SecretConfig{
		EnvValue:   getEnv("JWT_SECRET_KEY", ""),
		VaultAddr:  getEnv("VAULT_ADDR", ""),
		VaultToken: getEnv("VAULT_TOKEN", ""),
		Mount:      getEnv("VAULT_SECRET_MOUNT", "secret"),
		Path:       getEnv("VAULT_SECRET_PATH", "taskboard/jwt"),
		Key:        getEnv("VAULT_SECRET_KEY", "secret"),
	}
}

// ResolveJWTSecret returns the process-wide signing secret.
func ResolveJWTSecret(ctx context.Context, cfg SecretConfig) (string, error) {
	if cfg.VaultAddr == "" {
		if cfg.EnvValue == "" {
			return "", fmt.Errorf("%w: set JWT_SECRET_KEY or VAULT_ADDR", ErrSecretNotFound)
		}
		return cfg.EnvValue, nil
	}
	return readVaultSecret(ctx, cfg)
}

func readVaultSecret(ctx context.Context, cfg SecretConfig) (string, error) {
	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.VaultAddr

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return "", fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.VaultToken != "" {
		client.SetToken(cfg.VaultToken)
	}

	fullPath := strings.Trim(cfg.Mount, "/") + "/data/" + strings.Trim(cfg.Path, "/")
	secret, err := client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to read vault secret %s: %w", fullPath, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: no secret at %s", ErrSecretNotFound, fullPath)
	}

	// KV v2 nests the payload under "data".
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("%w: malformed KV v2 payload at %s", ErrSecretNotFound, fullPath)
	}
	value, ok := data[cfg.Key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: key %q missing at %s", ErrSecretNotFound, cfg.Key, fullPath)
	}
	return value, nil
}
