// Package cmd wires up the CLI flags and dispatches to server or
// client mode.
package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"retsh/config"
	"retsh/internal/client"
	"retsh/internal/identity"
	"retsh/internal/repl"
	"retsh/internal/router"
	"retsh/internal/server"
	"retsh/internal/transport"
	"retsh/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X retsh/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the appropriate retsh mode.
// Precedence, lowest to highest: defaults, config file, RETSH_*
// environment, flags.
func Execute(ctx context.Context, args []string) error {
	cfg := config.New()

	// The config file path itself comes from a flag, so it is fished
	// out first and the file applied before anything can override it.
	if path := prescanConfigPath(args); path != "" {
		cfg.ConfigPath = path
		if err := config.LoadFromFile(cfg, path); err != nil {
			return err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return err
	}

	fs := flag.NewFlagSet("retsh", flag.ContinueOnError)

	// ── mode ─────────────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Serve incoming shell sessions")

	// ── network ──────────────────────────────────────────────────
	fs.StringVar(&cfg.SAMAddress, "sam", cfg.SAMAddress, "SAM bridge address of the overlay router")
	fs.StringVarP(&cfg.IdentityPath, "identity", "i", cfg.IdentityPath, "Identity key file (created if missing)")
	fs.StringVarP(&cfg.ConfigPath, "config", "C", cfg.ConfigPath, "YAML config file")

	// ── timeouts ─────────────────────────────────────────────────
	var commandTimeoutSec, connectTimeoutSec int
	fs.IntVarP(&commandTimeoutSec, "timeout", "w", 0, "Remote command timeout in seconds")
	fs.IntVar(&connectTimeoutSec, "connect-timeout", 0, "Connect handshake timeout in seconds")
	fs.DurationVar(&cfg.SessionIdleTimeout, "idle-timeout", cfg.SessionIdleTimeout, "Evict sessions idle longer than this (with -l)")

	// ── server access control ────────────────────────────────────
	fs.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "Concurrent session limit (with -l)")
	fs.StringSliceVar(&cfg.AllowedClients, "allow", cfg.AllowedClients, "Hex client public key to admit (repeatable; empty allows all)")
	fs.StringVar(&cfg.AuthTokenHash, "auth-token-hash", cfg.AuthTokenHash, "Bcrypt hash connect tokens must match (with -l)")

	// ── client auth ──────────────────────────────────────────────
	fs.StringVar(&cfg.AuthToken, "auth-token", cfg.AuthToken, "Token to present on connect")
	fs.BoolVar(&cfg.PromptAuthToken, "prompt-token", false, "Prompt for the connect token")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("retsh %s\n", version)
		return nil
	}

	if commandTimeoutSec > 0 {
		cfg.CommandTimeout = time.Duration(commandTimeoutSec) * time.Second
	}
	if connectTimeoutSec > 0 {
		cfg.ConnectTimeout = time.Duration(connectTimeoutSec) * time.Second
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	id, err := loadOrCreateIdentity(cfg.IdentityPath, logger)
	if err != nil {
		return err
	}

	rt := router.NewExternal(cfg.SAMAddress, logger)
	logger.Verbose("waiting for the overlay router at %s", rt.SAMAddress())
	rctx, cancel := context.WithTimeout(ctx, cfg.ReadyTimeout)
	err = rt.AwaitReady(rctx)
	cancel()
	if err != nil {
		return fmt.Errorf("overlay router at %s not ready: %w", cfg.SAMAddress, err)
	}

	tr, err := transport.NewI2P(ctx, rt.SAMAddress(), logger)
	if err != nil {
		return err
	}
	defer tr.Close()

	if cfg.Listen {
		return runServer(ctx, cfg, id, tr, logger)
	}
	return runClient(ctx, cfg, id, tr, logger)
}

func runServer(ctx context.Context, cfg *config.Config, id *identity.Identity, tr *transport.I2P, logger *util.Logger) error {
	// Clients need both of these: the full destination to route to us,
	// its hash as the packet address.
	fmt.Fprintf(os.Stderr, "destination:      %s\n", tr.LocalDestination())
	fmt.Fprintf(os.Stderr, "destination hash: %s\n", tr.LocalHash())

	return server.New(cfg, id, tr, logger).Run(ctx)
}

func runClient(ctx context.Context, cfg *config.Config, id *identity.Identity, tr *transport.I2P, logger *util.Logger) error {
	if cfg.PromptAuthToken {
		token, err := repl.PromptAuthToken()
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		cfg.AuthToken = token
	}

	serverAddr, err := resolveServer(tr, cfg.ServerDestination)
	if err != nil {
		return err
	}

	cl := client.New(cfg, id, tr, serverAddr, logger)
	if err := cl.Connect(ctx); err != nil {
		return err
	}
	return repl.New(cl, os.Stdin, os.Stdout, os.Stderr, logger).Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// prescanConfigPath extracts --config/-C without tripping over flags
// that are not registered yet.
func prescanConfigPath(args []string) string {
	pre := flag.NewFlagSet("retsh-prescan", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	pre.SetOutput(io.Discard)

	var path string
	pre.StringVarP(&path, "config", "C", "", "")
	_ = pre.Parse(args)
	return path
}

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		if len(remaining) > 0 {
			return fmt.Errorf("listen mode takes no arguments")
		}
		return nil
	}

	// Connect mode: retsh [options] <destination>
	switch len(remaining) {
	case 0:
		// Maybe supplied via config file or environment.
	case 1:
		cfg.ServerDestination = remaining[0]
	default:
		return fmt.Errorf("too many arguments (one server destination expected)")
	}
	return nil
}

// resolveServer turns the configured destination into a packet
// address.  A 64-char hex string is taken as a destination hash the
// transport already knows how to reach; anything else is treated as a
// full destination and registered for routing.
func resolveServer(tr *transport.I2P, dest string) (identity.Hash, error) {
	if len(dest) == 2*identity.HashSize {
		if raw, err := hex.DecodeString(dest); err == nil {
			var h identity.Hash
			copy(h[:], raw)
			return h, nil
		}
	}
	return tr.RegisterDestination(dest), nil
}

func loadOrCreateIdentity(path string, logger *util.Logger) (*identity.Identity, error) {
	if _, err := os.Stat(path); err == nil {
		id, err := identity.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		logger.Verbose("loaded identity %s from %s", util.ShortHex(id.PublicKey()), path)
		return id, nil
	}

	id := identity.Generate()
	if err := id.SaveToFile(path); err != nil {
		return nil, err
	}
	logger.Info("generated new identity %s at %s", util.ShortHex(id.PublicKey()), path)
	return id, nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `retsh – remote shell over an anonymous overlay network v%s

Both sides attach to a running overlay router through its SAM bridge.

Usage:
  retsh -l [options]                          Serve shell sessions
  retsh [options] <destination>               Connect and open a prompt

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  retsh -l --max-sessions 5                   Serve up to five clients
  retsh -l --auth-token-hash '$2a$...'        Require a connect token
  RETSH_SERVER_DESTINATION=<hash> retsh       Destination from the env
  retsh --prompt-token -w 60 <destination>    Token auth, 60s commands
`)
}
