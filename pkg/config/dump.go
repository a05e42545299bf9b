package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/crawlpoint/connector/pkg/secrets"
)

// Dump renders the effective configuration as YAML with secret values
// redacted. Used by "connectord config dump" and by the startup banner.
func Dump(cfg *Config) (string, error) {
	redacted := *cfg
	redacted.Session.JWTSecret = secrets.Redact(redacted.Session.JWTSecret)
	redacted.Feed.S3.SecretAccessKey = secrets.Redact(redacted.Feed.S3.SecretAccessKey)
	redacted.Dashboard.PasswordHash = secrets.Redact(redacted.Dashboard.PasswordHash)

	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}
