package metrics

import (
	"strings"
	"sync"
	"testing"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.PacketIn(10)
	c.PacketOut(10)
	c.SessionCreated()
	c.SessionRejected()
	c.CommandExecuted(false)
	c.PacketDropped()

	if s := c.Snapshot(); s != (Snapshot{}) {
		t.Errorf("nil snapshot = %+v, want zero", s)
	}
}

func TestCounters(t *testing.T) {
	c := NewCollector()
	c.PacketIn(100)
	c.PacketIn(50)
	c.PacketOut(25)
	c.SessionCreated()
	c.SessionRejected()
	c.CommandExecuted(true)
	c.CommandExecuted(false)
	c.PacketDropped()

	s := c.Snapshot()
	if s.PacketsIn != 2 || s.BytesIn != 150 {
		t.Errorf("in = %d/%d, want 2/150", s.PacketsIn, s.BytesIn)
	}
	if s.PacketsOut != 1 || s.BytesOut != 25 {
		t.Errorf("out = %d/%d, want 1/25", s.PacketsOut, s.BytesOut)
	}
	if s.SessionsCreated != 1 || s.SessionsRejected != 1 {
		t.Errorf("sessions = %d/%d", s.SessionsCreated, s.SessionsRejected)
	}
	if s.CommandsExecuted != 2 || s.CommandsFailed != 1 {
		t.Errorf("commands = %d/%d, want 2/1", s.CommandsExecuted, s.CommandsFailed)
	}
	if s.DroppedPackets != 1 {
		t.Errorf("dropped = %d", s.DroppedPackets)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.PacketIn(1)
			}
		}()
	}
	wg.Wait()

	if s := c.Snapshot(); s.PacketsIn != 8000 {
		t.Errorf("PacketsIn = %d, want 8000", s.PacketsIn)
	}
}

func TestSnapshotString(t *testing.T) {
	c := NewCollector()
	c.PacketIn(10)
	out := c.Snapshot().String()
	if !strings.Contains(out, "packets=1/0") {
		t.Errorf("String() = %q", out)
	}
}
