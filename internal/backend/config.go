// Package backend reads the backend configuration once and connects the identity and
// document store adapters, or reports why it could not.
package backend

import (
	"context"
	"fmt"
	"regexp"

	"cio-chat/backend/pkg/secrets"
)

// Configuration key names, as read through the secrets manager
const (
	KeyAPIKey            = "API_KEY"
	KeyAuthDomain        = "AUTH_DOMAIN"
	KeyProjectID         = "PROJECT_ID"
	KeyStorageBucket     = "STORAGE_BUCKET"
	KeyMessagingSenderID = "MESSAGING_SENDER_ID"
	KeyAppID             = "APP_ID"
)

// Config is the connection configuration of the hosted backend. Only the API key and
// project id are required.
type Config struct {
	APIKey            string
	AuthDomain        string
	ProjectID         string
	StorageBucket     string
	MessagingSenderID string
	AppID             string
}

// LoadConfig reads every key through m. Absent keys are left empty.
func LoadConfig(ctx context.Context, m secrets.Manager) Config {
	return Config{
		APIKey:            m.GetSecretWithDefault(ctx, KeyAPIKey, ""),
		AuthDomain:        m.GetSecretWithDefault(ctx, KeyAuthDomain, ""),
		ProjectID:         m.GetSecretWithDefault(ctx, KeyProjectID, ""),
		StorageBucket:     m.GetSecretWithDefault(ctx, KeyStorageBucket, ""),
		MessagingSenderID: m.GetSecretWithDefault(ctx, KeyMessagingSenderID, ""),
		AppID:             m.GetSecretWithDefault(ctx, KeyAppID, ""),
	}
}

// MissingKeys lists the required keys that are empty, API_KEY first
func (c Config) MissingKeys() []string {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, KeyAPIKey)
	}
	if c.ProjectID == "" {
		missing = append(missing, KeyProjectID)
	}
	return missing
}

var apiKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)

// ValidateAPIKey rejects keys the backend would refuse at initialization
func ValidateAPIKey(key string) error {
	if !apiKeyPattern.MatchString(key) {
		return fmt.Errorf("malformed API key: expected at least 20 characters of [A-Za-z0-9_-]")
	}
	return nil
}
