package secrets

import (
	"context"
	"errors"
	"os"
	"strings"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// EnvManager reads secrets from environment variables under a fixed prefix
type EnvManager struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvManager creates a Manager over the process environment. Key "api-key" with
// prefix "CHAT_" reads CHAT_API_KEY.
func NewEnvManager(prefix string) *EnvManager {
	return &EnvManager{prefix: prefix, lookup: os.LookupEnv}
}

// NewMapManager creates a Manager over a fixed set of variables, for tests
func NewMapManager(prefix string, vars map[string]string) *EnvManager {
	return &EnvManager{
		prefix: prefix,
		lookup: func(k string) (string, bool) {
			v, ok := vars[k]
			return v, ok
		},
	}
}

// EnvKey returns the environment variable name that backs key
func (m *EnvManager) EnvKey(key string) string {
	replacer := strings.NewReplacer("-", "_", ".", "_")
	return m.prefix + strings.ToUpper(replacer.Replace(key))
}

// GetSecret returns the value of the variable backing key. Empty values count as missing.
func (m *EnvManager) GetSecret(ctx context.Context, key string) (string, error) {
	value, ok := m.lookup(m.EnvKey(key))
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func (m *EnvManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		return defaultValue
	}
	return value
}
