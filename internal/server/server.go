// Package server runs the listening side: it admits clients, routes
// inbound messages to their sessions by packet source address, and
// sends the replies back over the transport.
package server

import (
	"bytes"
	"context"
	"time"

	"retsh/config"
	"retsh/internal/errors"
	"retsh/internal/identity"
	"retsh/internal/metrics"
	"retsh/internal/packet"
	"retsh/internal/proto"
	"retsh/internal/session"
	"retsh/internal/shell"
	"retsh/internal/transport"
	"retsh/util"
)

// Server owns one transport endpoint and the sessions reachable
// through it.
type Server struct {
	cfg      *config.Config
	iface    transport.Interface
	registry *session.Registry
	listener *Listener
	metrics  *metrics.Collector

	sweepInterval time.Duration
	log           *util.Logger
}

// New assembles a server around an identity and an open transport.
func New(cfg *config.Config, id *identity.Identity, iface transport.Interface, logger *util.Logger) *Server {
	log := logger.With("server")
	m := metrics.NewCollector()
	registry := session.NewRegistry(logger)
	executor := shell.NewExecutor(cfg.CommandTimeout, logger)
	return &Server{
		cfg:           cfg,
		iface:         iface,
		registry:      registry,
		listener:      NewListener(cfg, id, registry, executor, m, logger),
		metrics:       m,
		sweepInterval: config.DefaultSweepInterval,
		log:           log,
	}
}

// Metrics exposes the server's counters.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// Sessions exposes the live session count.
func (s *Server) Sessions() int { return s.registry.Count() }

// Run processes inbound packets until ctx is done or the transport
// closes.  Messages are handled in arrival order; a malformed packet
// is logged and dropped without disturbing other sessions.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("serving on %s transport, max %d sessions", s.iface.Name(), s.cfg.MaxSessions)

	// Receive blocks in the transport, not on ctx alone; closing the
	// interface is what unblocks it on shutdown.
	go func() {
		<-ctx.Done()
		s.iface.Close()
	}()
	go s.sweepLoop(ctx)

	defer func() {
		s.registry.CloseAll()
		s.log.Info("server stopped: %s", s.metrics.Snapshot())
	}()

	for {
		rcv, err := s.iface.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, errors.ErrChannelClosed) {
				return nil
			}
			return err
		}
		s.handlePacket(ctx, rcv)
	}
}

func (s *Server) handlePacket(ctx context.Context, rcv transport.Received) {
	s.metrics.PacketIn(len(rcv.Packet.Payload))

	if rcv.Packet.Type != packet.TypeData {
		s.log.Debug("ignoring %v packet from %s", rcv.Packet.Type, util.ShortHex(rcv.Source[:]))
		s.metrics.PacketDropped()
		return
	}

	buf := bytes.NewBuffer(rcv.Packet.Payload)
	msgs, err := proto.DecodeAll(buf)
	if err != nil {
		s.log.Warn("dropping malformed payload from %s: %v", util.ShortHex(rcv.Source[:]), err)
		s.metrics.PacketDropped()
	}

	for _, msg := range msgs {
		reply := s.dispatch(ctx, msg, rcv.Source)
		if reply == nil {
			continue
		}
		if err := s.send(ctx, rcv.Source, reply); err != nil {
			s.log.Warn("reply to %s failed: %v", util.ShortHex(rcv.Source[:]), err)
		}
	}
}

// dispatch routes one message.  Connect goes to admission; everything
// else is resolved to a session by the packet's source address.
func (s *Server) dispatch(ctx context.Context, msg proto.Message, source identity.Hash) proto.Message {
	if c, ok := msg.(proto.Connect); ok {
		return s.listener.HandleConnect(c, source)
	}

	sess, ok := s.registry.ByAddr(source)
	if !ok {
		// Tell the sender its session is gone so it can reconnect
		// instead of retrying into the void.
		s.log.Warn("%s message from %s without a session", msg.Kind(), util.ShortHex(source[:]))
		s.metrics.PacketDropped()
		return proto.Reject{
			Reason:    "no session for this client, connect first",
			ErrorCode: proto.RejectUnexpectedMessage,
		}
	}

	reply, err := sess.HandleMessage(ctx, msg)
	if err != nil {
		s.log.Warn("session %s: %v", sess.ID, err)
		return nil
	}

	if _, disconnected := msg.(proto.Disconnect); disconnected {
		s.registry.Remove(sess.ID)
	}
	if resp, ok := reply.(proto.CommandResponse); ok {
		s.metrics.CommandExecuted(resp.Status == proto.StatusSuccess)
	}
	return reply
}

func (s *Server) send(ctx context.Context, dest identity.Hash, msg proto.Message) error {
	data, err := proto.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.iface.Send(ctx, packet.Data(dest, data)); err != nil {
		return err
	}
	s.metrics.PacketOut(len(data))
	return nil
}

func (s *Server) sweepLoop(ctx context.Context) {
	t := time.NewTicker(s.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.registry.Sweep(s.cfg.SessionIdleTimeout)
		}
	}
}
