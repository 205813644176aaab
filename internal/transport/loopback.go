package transport

import (
	"context"
	"sync"

	"retsh/internal/errors"
	"retsh/internal/identity"
	"retsh/internal/packet"
)

// inbox is an unbounded FIFO of received packets with close semantics.
type inbox struct {
	mu     sync.Mutex
	items  []Received
	notify chan struct{}
	closed bool
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (q *inbox) push(r Received) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, r)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *inbox) pop(ctx context.Context) (Received, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			r := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return r, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Received{}, errors.ErrChannelClosed
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return Received{}, ctx.Err()
		}
	}
}

func (q *inbox) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Loopback is one endpoint of an in-memory transport pair, used for
// tests and for composing client and server in one process.
type Loopback struct {
	name string
	addr identity.Hash
	in   *inbox
	peer *inbox

	closeOnce sync.Once
}

// NewPair connects two loopback endpoints with one unbounded queue in
// each direction.  addrA and addrB become the endpoints' source
// addresses as seen by the other side.
func NewPair(addrA, addrB identity.Hash) (*Loopback, *Loopback) {
	qa, qb := newInbox(), newInbox()

	a := &Loopback{name: "loopback-a", addr: addrA, in: qa, peer: qb}
	b := &Loopback{name: "loopback-b", addr: addrB, in: qb, peer: qa}
	return a, b
}

// Send delivers the packet to the peer endpoint.
func (l *Loopback) Send(ctx context.Context, pkt *packet.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.peer.push(Received{Packet: pkt, Source: l.addr}) {
		return errors.WrapNetwork("send", "", errors.ErrChannelClosed)
	}
	return nil
}

// Receive suspends until the peer sends or either side closes.
func (l *Loopback) Receive(ctx context.Context) (Received, error) {
	r, err := l.in.pop(ctx)
	if err == errors.ErrChannelClosed {
		return Received{}, errors.WrapNetwork("receive", "", err)
	}
	return r, err
}

// Name implements Interface.
func (l *Loopback) Name() string { return l.name }

// Ready implements Interface.
func (l *Loopback) Ready() bool {
	l.in.mu.Lock()
	defer l.in.mu.Unlock()
	return !l.in.closed
}

// Addr returns this endpoint's source address.
func (l *Loopback) Addr() identity.Hash { return l.addr }

// Close shuts down both directions; the peer's pending Receive returns
// a connection error once its queue drains.
func (l *Loopback) Close() error {
	l.closeOnce.Do(func() {
		l.in.close()
		l.peer.close()
	})
	return nil
}
