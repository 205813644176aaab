// Package router abstracts the overlay router the transports attach
// to.  The only implementation talks to an externally managed router
// through its SAM bridge.
package router

import (
	"context"

	"retsh/internal/errors"
	"retsh/internal/retry"
	"retsh/internal/sam"
	"retsh/util"
)

// Router is a handle on the overlay router process.
type Router interface {
	// SAMAddress is the bridge address transports should dial.
	SAMAddress() string
	// AwaitReady blocks until the bridge answers a handshake.
	AwaitReady(ctx context.Context) error
	// Shutdown releases whatever the handle owns.
	Shutdown(ctx context.Context) error
}

// External is a router owned by someone else (i2pd, the Java router).
// Readiness is probed by completing a SAM handshake; tunnel building
// can take minutes after a cold start, hence the backoff.
type External struct {
	addr    string
	backoff retry.Backoff
	log     *util.Logger
}

// NewExternal points at an already running router's SAM bridge.
func NewExternal(addr string, logger *util.Logger) *External {
	return &External{
		addr:    addr,
		backoff: retry.Default(),
		log:     logger.With("router"),
	}
}

// SAMAddress implements Router.
func (e *External) SAMAddress() string { return e.addr }

// AwaitReady implements Router.  A deadline expiring before the bridge
// answers is reported as ErrTimeout so callers can distinguish "router
// never came up" from a hard probe failure.
func (e *External) AwaitReady(ctx context.Context) error {
	err := e.backoff.Do(ctx, func(attempt int) error {
		conn, err := sam.Dial(ctx, e.addr, e.log)
		if err != nil {
			e.log.Verbose("bridge %s not ready (attempt %d): %v", e.addr, attempt, err)
			return err
		}
		conn.Close()
		e.log.Verbose("bridge %s answered on attempt %d", e.addr, attempt)
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.WrapNetwork("await-ready", e.addr, errors.ErrTimeout)
	}
	return err
}

// Shutdown implements Router.  An external router's lifecycle is not
// ours to manage.
func (e *External) Shutdown(context.Context) error { return nil }
