// Package connect exposes the tools of a user's connected accounts on the
// Pipedream Connect platform through its remote MCP endpoint.
package connect

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v9"
)

const (
	// DefaultEnvironment is the project environment used when none is set.
	DefaultEnvironment = "development"
	// DefaultTokenURL is the OAuth client-credentials token endpoint.
	DefaultTokenURL = "https://api.pipedream.com/v1/oauth/token"
	// DefaultMCPURL is the remote MCP endpoint.
	DefaultMCPURL = "https://remote.mcp.pipedream.net"
)

// ErrMissingCredentials is returned when the client credentials are not set.
var ErrMissingCredentials = errors.New("missing required Pipedream credentials: PIPEDREAM_CLIENT_ID and PIPEDREAM_CLIENT_SECRET must be set")

// Config holds the Connect project credentials.
type Config struct {
	ClientID     string `env:"PIPEDREAM_CLIENT_ID"`
	ClientSecret string `env:"PIPEDREAM_CLIENT_SECRET"`
	ProjectID    string `env:"PIPEDREAM_PROJECT_ID"`
	Environment  string `env:"PIPEDREAM_PROJECT_ENVIRONMENT" envDefault:"development"`

	TokenURL string
	MCPURL   string
}

// ConfigFromEnv reads the PIPEDREAM_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("connect config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg.withDefaults(), nil
}

// Validate reports ErrMissingCredentials unless both client credentials are
// set.
func (c Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.MCPURL == "" {
		c.MCPURL = DefaultMCPURL
	}
	return c
}
