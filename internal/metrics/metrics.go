// Package metrics counts traffic and session activity.  All methods
// are safe on a nil *Collector so instrumentation never needs a guard.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector accumulates counters for one server or client instance.
type Collector struct {
	start time.Time

	packetsIn  atomic.Uint64
	packetsOut atomic.Uint64
	bytesIn    atomic.Uint64
	bytesOut   atomic.Uint64

	sessionsCreated  atomic.Uint64
	sessionsRejected atomic.Uint64

	commandsExecuted atomic.Uint64
	commandsFailed   atomic.Uint64

	droppedPackets atomic.Uint64
}

// NewCollector starts a collector; the uptime clock begins now.
func NewCollector() *Collector {
	return &Collector{start: time.Now()}
}

func (c *Collector) PacketIn(n int) {
	if c == nil {
		return
	}
	c.packetsIn.Add(1)
	c.bytesIn.Add(uint64(n))
}

func (c *Collector) PacketOut(n int) {
	if c == nil {
		return
	}
	c.packetsOut.Add(1)
	c.bytesOut.Add(uint64(n))
}

func (c *Collector) SessionCreated() {
	if c == nil {
		return
	}
	c.sessionsCreated.Add(1)
}

func (c *Collector) SessionRejected() {
	if c == nil {
		return
	}
	c.sessionsRejected.Add(1)
}

func (c *Collector) CommandExecuted(ok bool) {
	if c == nil {
		return
	}
	c.commandsExecuted.Add(1)
	if !ok {
		c.commandsFailed.Add(1)
	}
}

func (c *Collector) PacketDropped() {
	if c == nil {
		return
	}
	c.droppedPackets.Add(1)
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Uptime           time.Duration
	PacketsIn        uint64
	PacketsOut       uint64
	BytesIn          uint64
	BytesOut         uint64
	SessionsCreated  uint64
	SessionsRejected uint64
	CommandsExecuted uint64
	CommandsFailed   uint64
	DroppedPackets   uint64
}

// Snapshot reads all counters.  A nil collector yields a zero snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		Uptime:           time.Since(c.start),
		PacketsIn:        c.packetsIn.Load(),
		PacketsOut:       c.packetsOut.Load(),
		BytesIn:          c.bytesIn.Load(),
		BytesOut:         c.bytesOut.Load(),
		SessionsCreated:  c.sessionsCreated.Load(),
		SessionsRejected: c.sessionsRejected.Load(),
		CommandsExecuted: c.commandsExecuted.Load(),
		CommandsFailed:   c.commandsFailed.Load(),
		DroppedPackets:   c.droppedPackets.Load(),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"uptime=%s packets=%d/%d bytes=%d/%d sessions=%d(-%d) commands=%d(-%d) dropped=%d",
		s.Uptime.Round(time.Second),
		s.PacketsIn, s.PacketsOut,
		s.BytesIn, s.BytesOut,
		s.SessionsCreated, s.SessionsRejected,
		s.CommandsExecuted, s.CommandsFailed,
		s.DroppedPackets,
	)
}
