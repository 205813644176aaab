// Package session tracks the server side of one accepted client
// connection and the registry of all live connections.
package session

import (
	"context"
	"sync"
	"time"

	"retsh/internal/errors"
	"retsh/internal/identity"
	"retsh/internal/proto"
	"retsh/internal/shell"
	"retsh/util"
)

// State is the session lifecycle.  Sessions are never revived: once
// Closed they only await removal from the registry.
type State int

const (
	StateActive State = iota
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one client's logical connection.
type Session struct {
	ID             proto.SessionID
	ClientIdentity []byte
	ClientAddr     identity.Hash

	executor *shell.Executor
	log      *util.Logger

	mu         sync.RWMutex
	state      State
	lastActive time.Time
}

// New creates an Active session with a fresh random id.
func New(clientIdentity []byte, clientAddr identity.Hash, executor *shell.Executor, logger *util.Logger) *Session {
	s := &Session{
		ID:             proto.NewSessionID(),
		ClientIdentity: clientIdentity,
		ClientAddr:     clientAddr,
		executor:       executor,
		log:            logger.With("session"),
		state:          StateActive,
		lastActive:     time.Now(),
	}
	s.log.Info("new session %s for client %s", s.ID, util.ShortHex(clientIdentity))
	return s
}

// HandleMessage processes one message on this session and returns the
// reply, or nil when the message warrants none.  Messages on a
// non-Active session fail with ErrSessionNotActive.
func (s *Session) HandleMessage(ctx context.Context, msg proto.Message) (proto.Message, error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return nil, &errors.SessionError{Reason: s.ID.String(), Err: errors.ErrSessionNotActive}
	}
	s.lastActive = time.Now()
	s.mu.Unlock()

	switch m := msg.(type) {
	case proto.CommandRequest:
		s.log.Debug("session %s: command request %d (%s)", s.ID, m.ID, m.Command)
		if err := s.executor.ValidateRequest(&m); err != nil {
			// The executor is never invoked for invalid requests; the
			// client still gets a well-formed error response.
			s.log.Warn("session %s: rejected request %d: %v", s.ID, m.ID, err)
			return proto.CommandResponse{
				ID:       m.ID,
				Status:   proto.StatusError,
				Stderr:   []byte(err.Error()),
				ExitCode: -1,
			}, nil
		}
		return s.executor.Execute(ctx, m), nil

	case proto.Disconnect:
		s.log.Info("session %s: client disconnecting (%s)", s.ID, m.Reason)
		s.Close()
		return proto.Ack{MessageID: 0}, nil

	case proto.Ping:
		s.log.Debug("session %s: ping", s.ID)
		return proto.Pong{}, nil

	default:
		s.log.Warn("session %s: unexpected %T", s.ID, msg)
		return nil, nil
	}
}

// Close marks the session Closed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = StateClosed
		s.log.Info("session %s closed", s.ID)
	}
}

// IsActive reports whether the session still accepts messages.
func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateActive
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IdleFor reports how long ago the session last handled a message.
func (s *Session) IdleFor() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastActive)
}
