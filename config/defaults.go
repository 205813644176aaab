package config

import "time"

// Defaults for everything a flag, file, or environment variable can
// override.
const (
	DefaultIdentityPath = "retsh.identity"
	DefaultSAMAddress   = "127.0.0.1:7656"

	DefaultConnectTimeout     = 30 * time.Second
	DefaultCommandTimeout     = 300 * time.Second
	DefaultReadyTimeout       = 2 * time.Minute
	DefaultSessionIdleTimeout = 30 * time.Minute

	DefaultMaxSessions = 10

	// DefaultSweepInterval is how often the server evicts idle and
	// closed sessions.
	DefaultSweepInterval = time.Minute
)
