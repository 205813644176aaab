package server

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"retsh/config"
	"retsh/internal/identity"
	"retsh/internal/metrics"
	"retsh/internal/proto"
	"retsh/internal/session"
	"retsh/internal/shell"
	"retsh/util"
)

// Listener decides whether a Connect becomes a session.  Checks run in
// a fixed order so a client never learns it is unauthorized before it
// has presented a valid token: version, token, allow list, capacity.
type Listener struct {
	id          *identity.Identity
	registry    *session.Registry
	executor    *shell.Executor
	maxSessions int
	allowed     map[string]struct{}
	tokenHash   []byte
	metrics     *metrics.Collector
	log         *util.Logger
}

// NewListener builds the admission gate from server configuration.
func NewListener(cfg *config.Config, id *identity.Identity, registry *session.Registry, executor *shell.Executor, m *metrics.Collector, logger *util.Logger) *Listener {
	allowed := make(map[string]struct{}, len(cfg.AllowedClients))
	for _, k := range cfg.AllowedClients {
		allowed[strings.ToLower(k)] = struct{}{}
	}
	var tokenHash []byte
	if cfg.AuthTokenHash != "" {
		tokenHash = []byte(cfg.AuthTokenHash)
	}
	return &Listener{
		id:          id,
		registry:    registry,
		executor:    executor,
		maxSessions: cfg.MaxSessions,
		allowed:     allowed,
		tokenHash:   tokenHash,
		metrics:     m,
		log:         logger.With("listener"),
	}
}

// HandleConnect admits or rejects a connecting client and always
// returns a reply, Accept or Reject.
func (l *Listener) HandleConnect(c proto.Connect, source identity.Hash) proto.Message {
	if c.ProtocolVersion != proto.CurrentProtocolVersion {
		l.log.Warn("rejecting client %s: protocol version %d", util.ShortHex(c.ClientIdentity), c.ProtocolVersion)
		l.metrics.SessionRejected()
		return proto.Reject{
			Reason:    fmt.Sprintf("unsupported protocol version %d, server speaks %d", c.ProtocolVersion, proto.CurrentProtocolVersion),
			ErrorCode: proto.RejectVersionMismatch,
		}
	}

	if l.tokenHash != nil {
		if err := bcrypt.CompareHashAndPassword(l.tokenHash, []byte(c.AuthToken)); err != nil {
			l.log.Warn("rejecting client %s: bad auth token", util.ShortHex(c.ClientIdentity))
			l.metrics.SessionRejected()
			return proto.Reject{Reason: "invalid auth token", ErrorCode: proto.RejectBadAuthToken}
		}
	}

	if len(c.ClientIdentity) != identity.KeySize {
		l.log.Warn("rejecting client with %d-byte identity key", len(c.ClientIdentity))
		l.metrics.SessionRejected()
		return proto.Reject{Reason: "malformed client identity", ErrorCode: proto.RejectNotAuthorized}
	}
	if len(l.allowed) > 0 {
		key := hex.EncodeToString(c.ClientIdentity)
		if _, ok := l.allowed[key]; !ok {
			l.log.Warn("rejecting client %s: not on the allow list", util.ShortHex(c.ClientIdentity))
			l.metrics.SessionRejected()
			return proto.Reject{Reason: "client not authorized", ErrorCode: proto.RejectNotAuthorized}
		}
	}

	// A reconnect from the same address supersedes its own earlier
	// session; evict it before counting so a crashed client is never
	// locked out by its orphan.
	if old, ok := l.registry.ByAddr(source); ok {
		l.log.Info("client %s reconnected, closing superseded session %s", util.ShortHex(c.ClientIdentity), old.ID)
		old.Close()
		l.registry.Remove(old.ID)
	}

	if l.registry.Count() >= l.maxSessions {
		l.log.Warn("rejecting client %s: session limit %d reached", util.ShortHex(c.ClientIdentity), l.maxSessions)
		l.metrics.SessionRejected()
		return proto.Reject{Reason: "server is full", ErrorCode: proto.RejectServerFull}
	}

	s := session.New(c.ClientIdentity, source, l.executor, l.log)
	l.registry.Add(s)
	l.metrics.SessionCreated()

	return proto.Accept{
		ProtocolVersion: proto.CurrentProtocolVersion,
		ServerIdentity:  l.id.PublicKey(),
		SessionID:       s.ID,
		Capabilities:    []string{proto.CapabilityCommandExec},
	}
}
