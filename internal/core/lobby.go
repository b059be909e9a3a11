package core

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Lobby groups admitted clients and the events scheduled for them.
// Membership is only changed by the coordinator; reads return copies.
type Lobby struct {
	ID        string
	CreatedAt time.Time

	seq uint64 // registry insertion order

	mu      sync.RWMutex
	clients []*Client
	events  []Event

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// LobbyInfo is a point-in-time view of a lobby for listings and metadata.
type LobbyInfo struct {
	ID                string    `json:"id"`
	ActiveClientCount int       `json:"activeClientCount"`
	PendingEvents     int       `json:"pendingEvents"`
	CreatedAt         time.Time `json:"createdAt"`
}

func newLobby(id string, now time.Time) *Lobby {
	return &Lobby{
		ID:        id,
		CreatedAt: now,
	}
}

// Clients returns the members in join order.
func (l *Lobby) Clients() []*Client {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Client, len(l.clients))
	copy(out, l.clients)
	return out
}

// ClientCount returns the number of members.
func (l *Lobby) ClientCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clients)
}

// PendingEvents returns a copy of the events waiting for the next tick.
func (l *Lobby) PendingEvents() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Info returns a snapshot of the lobby.
func (l *Lobby) Info() LobbyInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LobbyInfo{
		ID:                l.ID,
		ActiveClientCount: len(l.clients),
		PendingEvents:     len(l.events),
		CreatedAt:         l.CreatedAt,
	}
}

// schedule appends an event to the pending queue.
func (l *Lobby) schedule(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

// addClient appends a client. Returns false if it is already a member.
func (l *Lobby) addClient(c *Client) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.clients {
		if existing == c {
			return false
		}
	}
	l.clients = append(l.clients, c)
	return true
}

// removeClient deletes a client keeping join order. Returns true if removed.
func (l *Lobby) removeClient(c *Client) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.clients {
		if existing == c {
			l.clients = append(l.clients[:i], l.clients[i+1:]...)
			return true
		}
	}
	return false
}

// evict empties the member list and returns the former members.
func (l *Lobby) evict() []*Client {
	l.mu.Lock()
	defer l.mu.Unlock()
	members := l.clients
	l.clients = nil
	return members
}

// start launches the lobby tick loop. Each tick hands the pending events to run.
func (l *Lobby) start(parent context.Context, clock clockwork.Clock, interval time.Duration, run EventRunner, logger *zerolog.Logger) {
	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	l.done = make(chan struct{})

	ticker := clock.NewTicker(interval)
	go func() {
		defer close(l.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				l.tick(ctx, run, logger)
			}
		}
	}()
}

// stop cancels the tick loop. Safe to call repeatedly and on lobbies that were
// never started. It does not wait for a running tick to finish.
func (l *Lobby) stop() {
	l.stopOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
	})
}

// stopped is closed once the tick loop has exited. Nil if never started.
func (l *Lobby) stopped() <-chan struct{} {
	return l.done
}

func (l *Lobby) tick(ctx context.Context, run EventRunner, logger *zerolog.Logger) {
	if run == nil {
		return
	}

	l.mu.Lock()
	pending := l.events
	l.events = nil
	l.mu.Unlock()

	remaining := pending
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("lobby_id", l.ID).Msg("event runner panicked")
		}
		if len(remaining) == 0 {
			return
		}
		l.mu.Lock()
		l.events = append(remaining, l.events...)
		l.mu.Unlock()
	}()

	remaining = run(ctx, l, pending)
}
