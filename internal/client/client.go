// Package client implements the connecting side: a small state
// machine over the transport that performs the connect handshake and
// correlates command requests with their responses.
package client

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"retsh/config"
	"retsh/internal/errors"
	"retsh/internal/identity"
	"retsh/internal/packet"
	"retsh/internal/proto"
	"retsh/internal/transport"
	"retsh/util"
)

// ConnState is the client connection lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Client drives one logical connection to a server.
type Client struct {
	id         *identity.Identity
	iface      transport.Interface
	serverAddr identity.Hash

	authToken      string
	connectTimeout time.Duration
	commandTimeout time.Duration

	mu        sync.RWMutex
	state     ConnState
	sessionID proto.SessionID
	serverKey []byte
	caps      []string

	// opMu admits one outstanding round trip at a time so responses
	// cannot be attributed to the wrong request.
	opMu   sync.Mutex
	nextID atomic.Uint64

	log *util.Logger
}

// New builds a client over an open transport.  serverAddr is the
// destination hash the server listens on.
func New(cfg *config.Config, id *identity.Identity, iface transport.Interface, serverAddr identity.Hash, logger *util.Logger) *Client {
	return &Client{
		id:             id,
		iface:          iface,
		serverAddr:     serverAddr,
		authToken:      cfg.AuthToken,
		connectTimeout: cfg.ConnectTimeout,
		commandTimeout: cfg.CommandTimeout,
		log:            logger.With("client"),
	}
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether commands can be executed.
func (c *Client) IsConnected() bool { return c.State() == StateConnected }

// SessionID returns the id granted by the server.  Valid only while
// connected.
func (c *Client) SessionID() proto.SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// ServerIdentity returns the server's public key from the handshake.
func (c *Client) ServerIdentity() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverKey
}

// Connect performs the handshake.  Connecting while connected is a
// no-op; a rejected or garbled handshake leaves the client
// disconnected and returns the cause.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting, StateDisconnecting:
		st := c.state
		c.mu.Unlock()
		return &errors.ProtocolError{Reason: fmt.Sprintf("connect while %s", st)}
	}
	c.state = StateConnecting
	c.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	c.log.Verbose("connecting to %s", util.ShortHex(c.serverAddr[:]))
	reply, err := c.roundTrip(cctx, proto.Connect{
		ProtocolVersion: proto.CurrentProtocolVersion,
		ClientIdentity:  c.id.PublicKey(),
		Capabilities:    []string{proto.CapabilityCommandExec},
		AuthToken:       c.authToken,
	})
	if err != nil {
		c.setDisconnected()
		return err
	}

	switch m := reply.(type) {
	case proto.Accept:
		if m.ProtocolVersion != proto.CurrentProtocolVersion {
			c.setDisconnected()
			return &errors.VersionMismatch{Expected: proto.CurrentProtocolVersion, Actual: m.ProtocolVersion}
		}
		c.mu.Lock()
		c.state = StateConnected
		c.sessionID = m.SessionID
		c.serverKey = m.ServerIdentity
		c.caps = m.Capabilities
		c.mu.Unlock()
		c.log.Info("connected, session %s", m.SessionID)
		return nil

	case proto.Reject:
		c.setDisconnected()
		return &errors.RejectedError{Reason: m.Reason, Code: m.ErrorCode}

	default:
		c.setDisconnected()
		return &errors.ProtocolError{Reason: fmt.Sprintf("unexpected %s reply to connect", reply.Kind())}
	}
}

// ExecuteCommand runs one command on the server and waits for its
// response.  Request ids are monotonic for the life of the client so a
// stale response can never match a newer request.
func (c *Client) ExecuteCommand(ctx context.Context, command string, args []string) (proto.CommandResponse, error) {
	if !c.IsConnected() {
		return proto.CommandResponse{}, errors.ErrNotConnected
	}

	id := c.nextID.Add(1)
	req := proto.CommandRequest{
		ID:      id,
		Command: command,
		Args:    args,
		Timeout: uint64(c.commandTimeout / time.Second),
	}

	// The response wait covers the server-side execution window plus
	// transport slack.
	cctx, cancel := context.WithTimeout(ctx, c.commandTimeout+30*time.Second)
	defer cancel()

	reply, err := c.roundTrip(cctx, req)
	if err != nil {
		return proto.CommandResponse{}, err
	}
	resp, ok := reply.(proto.CommandResponse)
	if !ok {
		return proto.CommandResponse{}, &errors.ProtocolError{Reason: fmt.Sprintf("unexpected %s reply to command request", reply.Kind())}
	}
	if resp.ID != id {
		return proto.CommandResponse{}, &errors.ProtocolError{Reason: fmt.Sprintf("response id %d does not match request %d", resp.ID, id)}
	}
	return resp, nil
}

// Ping checks connection liveness.
func (c *Client) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return errors.ErrNotConnected
	}
	cctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	reply, err := c.roundTrip(cctx, proto.Ping{})
	if err != nil {
		return err
	}
	if _, ok := reply.(proto.Pong); !ok {
		return &errors.ProtocolError{Reason: fmt.Sprintf("unexpected %s reply to ping", reply.Kind())}
	}
	return nil
}

// Disconnect tells the server we are leaving and resets local state.
// It is idempotent and never fails on a dead transport: the notice is
// best effort and no ack is awaited.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	wasConnected := c.state == StateConnected
	c.state = StateDisconnecting
	c.mu.Unlock()

	if wasConnected {
		if err := c.send(ctx, proto.Disconnect{Reason: "client disconnect"}); err != nil {
			c.log.Debug("disconnect notice not delivered: %v", err)
		}
	}
	c.setDisconnected()
	c.log.Info("disconnected")
	return nil
}

func (c *Client) setDisconnected() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.sessionID = proto.SessionID{}
	c.serverKey = nil
	c.caps = nil
	c.mu.Unlock()
}

func (c *Client) send(ctx context.Context, msg proto.Message) error {
	data, err := proto.Encode(msg)
	if err != nil {
		return err
	}
	return c.iface.Send(ctx, packet.Data(c.serverAddr, data))
}

// roundTrip sends one message and waits for exactly one reply message
// from the server, skipping datagrams from other sources.
func (c *Client) roundTrip(ctx context.Context, msg proto.Message) (proto.Message, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.send(ctx, msg); err != nil {
		return nil, err
	}

	for {
		rcv, err := c.iface.Receive(ctx)
		if err != nil {
			return nil, err
		}
		if rcv.Source != c.serverAddr {
			c.log.Debug("ignoring datagram from %s", util.ShortHex(rcv.Source[:]))
			continue
		}
		reply, err := proto.Decode(bytes.NewBuffer(rcv.Packet.Payload))
		if err != nil {
			return nil, err
		}
		if reply == nil {
			return nil, &errors.ProtocolError{Reason: "truncated reply frame"}
		}
		// Disconnect acks are never awaited, so one may still be queued
		// from a previous connection.
		if _, stale := reply.(proto.Ack); stale {
			c.log.Debug("discarding stale ack")
			continue
		}
		return reply, nil
	}
}
