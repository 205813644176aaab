package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables understood by LoadFromEnv.  Flags still win
// over the environment; the environment wins over the file.
const (
	EnvIdentityPath      = "RETSH_IDENTITY"
	EnvSAMAddress        = "RETSH_SAM_ADDRESS"
	EnvServerDestination = "RETSH_SERVER_DESTINATION"
	EnvConnectTimeout    = "RETSH_CONNECT_TIMEOUT"
	EnvCommandTimeout    = "RETSH_COMMAND_TIMEOUT"
	EnvMaxSessions       = "RETSH_MAX_SESSIONS"
	EnvAuthToken         = "RETSH_AUTH_TOKEN"
	EnvAuthTokenHash     = "RETSH_AUTH_TOKEN_HASH"
	EnvAllowedClients    = "RETSH_ALLOWED_CLIENTS"
)

// LoadFromFile overlays values from a YAML config file.
func LoadFromFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// SaveToFile writes the file-persistable fields as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overlays RETSH_* environment variables.  Malformed
// values are an error rather than a silent fallback.
func LoadFromEnv(c *Config) error {
	if v := os.Getenv(EnvIdentityPath); v != "" {
		c.IdentityPath = v
	}
	if v := os.Getenv(EnvSAMAddress); v != "" {
		c.SAMAddress = v
	}
	if v := os.Getenv(EnvServerDestination); v != "" {
		c.ServerDestination = v
	}
	if v := os.Getenv(EnvConnectTimeout); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvConnectTimeout, err)
		}
		c.ConnectTimeout = d
	}
	if v := os.Getenv(EnvCommandTimeout); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCommandTimeout, err)
		}
		c.CommandTimeout = d
	}
	if v := os.Getenv(EnvMaxSessions); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxSessions, err)
		}
		c.MaxSessions = n
	}
	if v := os.Getenv(EnvAuthToken); v != "" {
		c.AuthToken = v
	}
	if v := os.Getenv(EnvAuthTokenHash); v != "" {
		c.AuthTokenHash = v
	}
	if v := os.Getenv(EnvAllowedClients); v != "" {
		c.AllowedClients = splitList(v)
	}
	return nil
}

// parseDuration accepts Go duration syntax and, for convenience, bare
// integers meaning seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
