package session

import (
	"sync"
	"time"

	"retsh/internal/identity"
	"retsh/internal/proto"
	"retsh/util"
)

// Registry owns every live session of one server instance.  It indexes
// sessions both by id and by client address so the dispatch loop can
// route inbound messages by packet source.
type Registry struct {
	mu     sync.RWMutex
	byID   map[proto.SessionID]*Session
	byAddr map[identity.Hash]proto.SessionID
	log    *util.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *util.Logger) *Registry {
	return &Registry{
		byID:   make(map[proto.SessionID]*Session),
		byAddr: make(map[identity.Hash]proto.SessionID),
		log:    logger.With("registry"),
	}
}

// Add registers a session.  A newer session from the same client
// address supersedes the old one entirely: the orphan is closed and
// evicted, not just shadowed in the address index, so it can never
// pin a max_sessions slot.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if oldID, ok := r.byAddr[s.ClientAddr]; ok {
		if old, ok := r.byID[oldID]; ok {
			old.Close()
			delete(r.byID, oldID)
			r.log.Verbose("session %s superseded by %s", oldID, s.ID)
		}
	}
	r.byID[s.ID] = s
	r.byAddr[s.ClientAddr] = s.ID
}

// Get looks a session up by id.
func (r *Registry) Get(id proto.SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// ByAddr looks a session up by the client's packet source address.
func (r *Registry) ByAddr(addr identity.Hash) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAddr[addr]
	if !ok {
		return nil, false
	}
	s, ok := r.byID[id]
	return s, ok
}

// Remove drops a session from both indexes.
func (r *Registry) Remove(id proto.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if cur, ok := r.byAddr[s.ClientAddr]; ok && cur == id {
		delete(r.byAddr, s.ClientAddr)
	}
}

// Count returns the number of registered sessions.  Closed sessions
// are removed eagerly on disconnect and by Sweep, so this is the
// figure admission control compares against max_sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Sweep closes sessions idle longer than maxIdle and removes every
// non-Active session.  It returns how many sessions were evicted.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.byID {
		if s.IsActive() && s.IdleFor() > maxIdle {
			s.Close()
		}
		if !s.IsActive() {
			delete(r.byID, id)
			if cur, ok := r.byAddr[s.ClientAddr]; ok && cur == id {
				delete(r.byAddr, s.ClientAddr)
			}
			evicted++
		}
	}
	if evicted > 0 {
		r.log.Verbose("swept %d inactive session(s)", evicted)
	}
	return evicted
}

// CloseAll closes and removes every session (server shutdown).
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.byID {
		s.Close()
		delete(r.byID, id)
	}
	r.byAddr = make(map[identity.Hash]proto.SessionID)
}
