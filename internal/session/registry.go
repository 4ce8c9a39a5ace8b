package session

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry enforces the one-live-coordinator-per-session invariant for a
// process. Obtaining a session id that already has a live coordinator returns
// that coordinator; disposed entries are pruned on the way.
type Registry struct {
	mu   sync.Mutex
	live map[string]*Coordinator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]*Coordinator)}
}

// Obtain returns the live coordinator for the handle's session id, creating
// one when none exists. The second return reports whether a coordinator was
// created.
func (r *Registry) Obtain(handle Handle, build func() (*Coordinator, error)) (*Coordinator, bool, error) {
	if err := handle.Validate(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.live[handle.SessionID]; ok {
		if !existing.Disposed() {
			log.Debug().Str("session_id", handle.SessionID).Msg("reusing live session coordinator")
			return existing, false, nil
		}
		delete(r.live, handle.SessionID)
	}

	coord, err := build()
	if err != nil {
		return nil, false, err
	}
	r.live[handle.SessionID] = coord
	return coord, true, nil
}

// Release drops the registry entry for a session id. The caller still owns
// disposing the coordinator.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, sessionID)
}

// Len reports how many coordinators are tracked, pruning disposed ones.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, coord := range r.live {
		if coord.Disposed() {
			delete(r.live, id)
		}
	}
	return len(r.live)
}
