package core

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Coordinator serialises every write to the registry through a FIFO queue
// drained by a single goroutine. Enqueue never blocks.
type Coordinator struct {
	registry      *Registry
	clock         clockwork.Clock
	interval      time.Duration
	removeMessage string
	observer      Observer
	log           *zerolog.Logger

	mu    sync.Mutex
	queue []Mutation
	wake  chan struct{}
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Interval between drains; one mutation is applied per tick.
	// Zero drains as soon as work arrives.
	Interval      time.Duration
	RemoveMessage string
	Clock         clockwork.Clock
	Observer      Observer
	Logger        *zerolog.Logger
}

// NewCoordinator builds a coordinator owning writes to registry.
func NewCoordinator(registry *Registry, cfg CoordinatorConfig) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	return &Coordinator{
		registry:      registry,
		clock:         cfg.Clock,
		interval:      cfg.Interval,
		removeMessage: cfg.RemoveMessage,
		observer:      cfg.Observer,
		log:           cfg.Logger,
		wake:          make(chan struct{}, 1),
	}
}

// Enqueue appends a mutation to the tail of the queue.
func (c *Coordinator) Enqueue(m Mutation) {
	c.mu.Lock()
	c.queue = append(c.queue, m)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Query enqueues a lookup of lobbyID.
func (c *Coordinator) Query(lobbyID string, done func(*Lobby)) {
	c.Enqueue(Mutation{Kind: MutationQuery, LobbyID: lobbyID, Done: done})
}

// AddClient enqueues adding client to lobbyID.
func (c *Coordinator) AddClient(lobbyID string, client *Client, done func(*Lobby)) {
	c.Enqueue(Mutation{Kind: MutationAddClient, LobbyID: lobbyID, Client: client, Done: done})
}

// RemoveLobby enqueues the teardown of lobbyID.
func (c *Coordinator) RemoveLobby(lobbyID string, done func(*Lobby)) {
	c.Enqueue(Mutation{Kind: MutationRemoveLobby, LobbyID: lobbyID, Done: done})
}

// DetachClient enqueues dropping client from lobbyID.
func (c *Coordinator) DetachClient(lobbyID string, client *Client, done func(*Lobby)) {
	c.Enqueue(Mutation{Kind: MutationDetachClient, LobbyID: lobbyID, Client: client, Done: done})
}

// Await enqueues m and blocks until it is applied or ctx ends.
// A nil lobby result is reported as ErrLobbyNotFound.
func (c *Coordinator) Await(ctx context.Context, m Mutation) (*Lobby, error) {
	result := make(chan *Lobby, 1)
	m.Done = func(l *Lobby) { result <- l }
	c.Enqueue(m)

	select {
	case l := <-result:
		if l == nil {
			return nil, ErrLobbyNotFound
		}
		return l, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of queued mutations.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Run drains the queue until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	c.log.Info().Dur("interval", c.interval).Msg("coordinator started")
	defer c.log.Info().Int("pending", c.Pending()).Msg("coordinator stopped")

	if c.interval <= 0 {
		c.runOnDemand(ctx)
		return
	}

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.step()
		}
	}
}

func (c *Coordinator) runOnDemand(ctx context.Context) {
	for {
		for c.step() {
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
	}
}

// step applies the mutation at the head of the queue.
// Returns false if the queue was empty.
func (c *Coordinator) step() bool {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return false
	}
	m := c.queue[0]
	c.queue[0] = Mutation{}
	c.queue = c.queue[1:]
	c.mu.Unlock()

	c.apply(m)
	return true
}

func (c *Coordinator) apply(m Mutation) {
	result := c.mutate(m)
	if m.Done == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("mutation", m.Kind.String()).Msg("mutation completion panicked")
		}
	}()
	m.Done(result)
}

func (c *Coordinator) mutate(m Mutation) (result *Lobby) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Interface("panic", r).
				Str("mutation", m.Kind.String()).
				Str("lobby_id", m.LobbyID).
				Msg("mutation panicked")
			result = nil
		}
	}()

	switch m.Kind {
	case MutationQuery:
		result, _ = c.registry.Get(m.LobbyID)
	case MutationAddClient:
		result = c.addClient(m)
	case MutationRemoveLobby:
		result = c.removeLobby(m)
	case MutationDetachClient:
		result = c.detachClient(m)
	default:
		c.log.Warn().Int("kind", int(m.Kind)).Msg("unknown mutation kind")
	}
	return result
}

func (c *Coordinator) addClient(m Mutation) *Lobby {
	if m.Client == nil {
		c.log.Warn().Str("lobby_id", m.LobbyID).Msg("add-client without client")
		return nil
	}

	lobby, ok := c.registry.Get(m.LobbyID)
	if !ok {
		// The lobby may have been removed between enqueue and drain.
		c.log.Debug().Str("lobby_id", m.LobbyID).Str("client_id", m.Client.ID).Msg("add-client dropped, lobby not found")
		c.notify(NoticeMutationDropped, m.LobbyID, m.Client.ID, m.Kind.String())
		return nil
	}

	if lobby.addClient(m.Client) {
		c.log.Info().Str("lobby_id", lobby.ID).Str("client_id", m.Client.ID).Int("clients", lobby.ClientCount()).Msg("client joined lobby")
		c.notify(NoticeClientJoined, lobby.ID, m.Client.ID, "")
	}
	return lobby
}

func (c *Coordinator) removeLobby(m Mutation) *Lobby {
	lobby, ok := c.registry.Get(m.LobbyID)
	if !ok {
		c.log.Debug().Str("lobby_id", m.LobbyID).Msg("remove-lobby ignored, lobby not found")
		return nil
	}

	members := lobby.evict()
	for _, client := range members {
		client.Remove(c.removeMessage)
	}
	lobby.stop()
	c.registry.delete(lobby.ID)

	c.log.Info().Str("lobby_id", lobby.ID).Int("evicted", len(members)).Msg("lobby removed")
	c.notify(NoticeLobbyRemoved, lobby.ID, "", "")
	return lobby
}

func (c *Coordinator) detachClient(m Mutation) *Lobby {
	if m.Client == nil {
		return nil
	}
	lobby, ok := c.registry.Get(m.LobbyID)
	if !ok {
		return nil
	}
	if lobby.removeClient(m.Client) {
		c.log.Info().Str("lobby_id", lobby.ID).Str("client_id", m.Client.ID).Msg("client detached")
		c.notify(NoticeClientDetached, lobby.ID, m.Client.ID, "")
	}
	return lobby
}

func (c *Coordinator) notify(kind NoticeKind, lobbyID, clientID, detail string) {
	c.observer.Observe(Notice{
		Kind:     kind,
		LobbyID:  lobbyID,
		ClientID: clientID,
		Detail:   detail,
		At:       c.clock.Now(),
	})
}
