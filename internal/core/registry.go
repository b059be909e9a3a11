package core

import (
	"slices"
	"sync"
)

// Registry maps lobby ids to lobbies. Writes happen from the coordinator drain
// step and from lobby creation; everything else reads snapshots.
type Registry struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby
	nextSeq uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{lobbies: make(map[string]*Lobby)}
}

// Get looks up a lobby by id.
func (r *Registry) Get(id string) (*Lobby, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lobbies[id]
	return l, ok
}

// Len returns the number of lobbies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lobbies)
}

// Snapshot returns the current lobbies ordered by creation.
// The slice is a copy and safe to iterate while the registry changes.
func (r *Registry) Snapshot() []*Lobby {
	r.mu.RLock()
	out := make([]*Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		out = append(out, l)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Lobby) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	return out
}

// insert adds a lobby under a fresh key. Returns false if the id is taken.
func (r *Registry) insert(l *Lobby) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.lobbies[l.ID]; exists {
		return false
	}
	r.nextSeq++
	l.seq = r.nextSeq
	r.lobbies[l.ID] = l
	return true
}

// delete removes a lobby. Returns false if it was absent.
func (r *Registry) delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.lobbies[id]; !exists {
		return false
	}
	delete(r.lobbies, id)
	return true
}
