// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the connection parameters for the hosted services and the listen address.
type Config struct {
	// Address the HTTP server listens on.
	Addr string `env:"QUEUE_ADDR" envDefault:":8080"`

	// Firebase/Firestore project.
	ProjectID string `env:"QUEUE_PROJECT_ID" envDefault:"queue-society"`

	// Web API key used for password sign-in and sign-up through the Identity Toolkit.
	APIKey string `env:"QUEUE_API_KEY"`

	// Optional service account file; application default credentials are used when empty.
	CredentialsFile string `env:"QUEUE_CREDENTIALS_FILE"`

	EventsTopic string `env:"QUEUE_EVENTS_TOPIC" envDefault:"queue_events"`
	LogName     string `env:"QUEUE_LOG_NAME" envDefault:"queue_info"`

	// Directory with the browser UI, served at / when set.
	StaticDir string `env:"QUEUE_STATIC_DIR"`

	// Origins allowed to open a websocket. Empty allows every origin.
	AllowedOrigins []string `env:"QUEUE_ALLOWED_ORIGINS" envSeparator:","`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("QUEUE_PROJECT_ID must not be empty")
	}
	return cfg, nil
}

// OriginAllowed reports whether a websocket upgrade from origin should be accepted.
func (c *Config) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}
