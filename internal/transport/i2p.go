package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"retsh/internal/errors"
	"retsh/internal/identity"
	"retsh/internal/packet"
	"retsh/internal/sam"
	"retsh/util"
)

// I2P adapts the SAM control client to the transport contract.  Peers
// are addressed by the SHA-256 hash of their full overlay destination;
// the adapter owns the hash → destination mapping needed to resolve
// outbound sends.
type I2P struct {
	conn      *sam.Conn
	sessionID string
	localDest string
	localHash identity.Hash
	log       *util.Logger

	// sendMu serializes datagram writes; the single receive loop owns
	// the read side.
	sendMu sync.Mutex

	mu     sync.RWMutex
	dests  map[identity.Hash]string
	closed bool
}

// NewI2P dials the SAM bridge, generates a fresh destination, and opens
// a datagram session bound to it.
func NewI2P(ctx context.Context, samAddr string, logger *util.Logger) (*I2P, error) {
	conn, err := sam.Dial(ctx, samAddr, logger)
	if err != nil {
		return nil, err
	}

	dest, err := conn.GenerateDestination()
	if err != nil {
		conn.Close()
		return nil, err
	}

	sessionID := "retsh-" + uuid.NewString()
	if err := conn.CreateDatagramSession(sessionID, dest); err != nil {
		conn.Close()
		return nil, err
	}

	localHash := identity.HashFromDestination(dest)
	i := &I2P{
		conn:      conn,
		sessionID: sessionID,
		localDest: dest,
		localHash: localHash,
		log:       logger.With("i2p"),
		dests:     map[identity.Hash]string{localHash: dest},
	}
	i.log.Info("overlay endpoint ready, local address %s", util.ShortHex(localHash[:]))
	return i, nil
}

// LocalDestination returns the full overlay destination string.
func (i *I2P) LocalDestination() string { return i.localDest }

// LocalHash returns the 32-byte routing address of this endpoint.
func (i *I2P) LocalHash() identity.Hash { return i.localHash }

// RegisterDestination maps a full destination string to its routing
// address so the peer becomes sendable.
func (i *I2P) RegisterDestination(dest string) identity.Hash {
	h := identity.HashFromDestination(dest)
	i.mu.Lock()
	i.dests[h] = dest
	i.mu.Unlock()
	return h
}

// Send resolves the packet's destination address and ships the encoded
// envelope as one datagram.  Unregistered destinations fail: there is
// no broadcast or discovery at this layer.
func (i *I2P) Send(ctx context.Context, pkt *packet.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	i.mu.RLock()
	dest, ok := i.dests[pkt.Destination]
	i.mu.RUnlock()
	if !ok {
		return errors.WrapNetwork("send", pkt.Destination.String(), errors.ErrUnknownDestination)
	}

	encoded, err := pkt.Encode()
	if err != nil {
		return err
	}

	i.sendMu.Lock()
	defer i.sendMu.Unlock()
	return i.conn.SendDatagram(i.sessionID, dest, encoded)
}

// Receive blocks on the next datagram, registers its sender for reply
// routing, and decodes the payload.  Callers never need to pre-register
// a peer that has already contacted them.
func (i *I2P) Receive(ctx context.Context) (Received, error) {
	if err := ctx.Err(); err != nil {
		return Received{}, err
	}

	source, data, err := i.conn.ReceiveDatagram()
	if err != nil {
		return Received{}, err
	}

	srcHash := i.RegisterDestination(source)
	i.log.Debug("packet from %s (%d bytes)", util.ShortHex(srcHash[:]), len(data))

	pkt, err := packet.Decode(data)
	if err != nil {
		return Received{}, err
	}
	return Received{Packet: pkt, Source: srcHash}, nil
}

// Name implements Interface.
func (i *I2P) Name() string { return "i2p" }

// Ready implements Interface.
func (i *I2P) Ready() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return !i.closed
}

// Close tears down the SAM connection; a blocked Receive returns with
// the resulting read error.
func (i *I2P) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	i.mu.Unlock()
	return i.conn.Close()
}
