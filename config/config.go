// Package config holds runtime configuration assembled from defaults,
// an optional YAML file, RETSH_* environment variables, and flags.
package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"retsh/internal/identity"
)

// Config is the effective configuration for one retsh invocation.
type Config struct {
	// Mode: serve when true, interactive client otherwise.
	Listen bool `yaml:"-"`

	// IdentityPath is where the Ed25519 seed lives.  A missing file is
	// created with a fresh identity on startup.
	IdentityPath string `yaml:"identity_path"`

	// SAMAddress is the host:port of the I2P router's SAM bridge.
	SAMAddress string `yaml:"sam_address"`

	// ServerDestination names the server to connect to: either a
	// 64-char hex destination hash or a full destination string.
	ServerDestination string `yaml:"server_destination"`

	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	CommandTimeout     time.Duration `yaml:"command_timeout"`
	ReadyTimeout       time.Duration `yaml:"ready_timeout"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`

	// MaxSessions caps concurrent server sessions; further clients are
	// rejected with a server-full code.
	MaxSessions int `yaml:"max_sessions"`

	// AllowedClients is a hex-encoded public-key allow list.  Empty
	// means every client is admitted.
	AllowedClients []string `yaml:"allowed_clients"`

	// AuthTokenHash is a bcrypt hash the server checks connect tokens
	// against.  Empty disables token auth.
	AuthTokenHash string `yaml:"auth_token_hash"`

	// AuthToken is the client-side token sent on connect.
	AuthToken string `yaml:"-"`

	// PromptAuthToken asks for the token interactively instead.
	PromptAuthToken bool `yaml:"-"`

	Verbose    int    `yaml:"-"`
	ConfigPath string `yaml:"-"`
}

// New returns a Config with defaults applied.
func New() *Config {
	return &Config{
		IdentityPath:       DefaultIdentityPath,
		SAMAddress:         DefaultSAMAddress,
		ConnectTimeout:     DefaultConnectTimeout,
		CommandTimeout:     DefaultCommandTimeout,
		ReadyTimeout:       DefaultReadyTimeout,
		SessionIdleTimeout: DefaultSessionIdleTimeout,
		MaxSessions:        DefaultMaxSessions,
	}
}

// Validate checks cross-field consistency for the selected mode.
func (c *Config) Validate() error {
	if !c.Listen && c.ServerDestination == "" {
		return fmt.Errorf("a server destination is required in client mode")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive, got %d", c.MaxSessions)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got %s", c.CommandTimeout)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got %s", c.ConnectTimeout)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive, got %s", c.SessionIdleTimeout)
	}
	for _, k := range c.AllowedClients {
		raw, err := hex.DecodeString(k)
		if err != nil {
			return fmt.Errorf("allowed client %q is not hex: %w", k, err)
		}
		if len(raw) != identity.KeySize {
			return fmt.Errorf("allowed client %q: want %d key bytes, got %d", k, identity.KeySize, len(raw))
		}
	}
	if c.AuthToken != "" && c.PromptAuthToken {
		return fmt.Errorf("--auth-token and --prompt-token are mutually exclusive")
	}
	return nil
}
