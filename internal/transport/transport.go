// Package transport moves packet envelopes between peers.  It defines
// the capability contract the rest of the stack programs against and
// two backends: an in-memory loopback pair and an adapter over the SAM
// control client.
//
// Transports handle the "how" of packet movement; what the packets mean
// is the protocol layer's job.
package transport

import (
	"context"

	"retsh/internal/identity"
	"retsh/internal/packet"
)

// Received couples an inbound packet with the 32-byte address of the
// peer that sent it.  The dispatch loop routes and replies by source
// address, never by the packet's destination field (which names the
// local endpoint).
type Received struct {
	Packet *packet.Packet
	Source identity.Hash
}

// Interface is the capability contract for a packet transport.
type Interface interface {
	// Send transmits one packet to its destination address.
	Send(ctx context.Context, pkt *packet.Packet) error

	// Receive blocks until one packet is available or the transport
	// closes, which it reports as an error.
	Receive(ctx context.Context) (Received, error)

	// Name identifies the backend ("loopback", "i2p").
	Name() string

	// Ready reports whether the transport can currently move packets.
	Ready() bool

	// Close releases the transport.  Blocked Receive calls return.
	Close() error
}
