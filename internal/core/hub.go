package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/proto"
	"github.com/vovakirdan/wirelobby-server/internal/utils"
)

// MainLobbyID is the id of the only lobby in single lobby mode.
const MainLobbyID = "main"

// AdmissionHook decides whether a pending connection may join. It must call
// req.Accept exactly once, now or later.
type AdmissionHook func(req *AdmissionRequest)

// LobbySelector picks the lobby a newly admitted connection joins.
// The returned id is used verbatim.
type LobbySelector func(conn ConnInfo, lobbies []LobbyInfo) string

// MessageHandler receives inbound frames from admitted clients.
type MessageHandler func(client *Client, frame proto.Frame)

// Options configures a Hub.
type Options struct {
	UseSingleLobby           bool
	CreateLobbyOnFirstClient bool
	AcceptAllConnections     bool

	RuntimeInterval                time.Duration
	LobbyManageInterval            time.Duration
	RejectionSocketCloseTimeout    time.Duration
	ClientRemoveSocketCloseTimeout time.Duration
	LobbyRemoveMessage             string

	AdmissionHook  AdmissionHook
	LobbySelector  LobbySelector
	EventRunner    EventRunner
	MessageHandler MessageHandler
	Observer       Observer

	Clock  clockwork.Clock
	Logger *zerolog.Logger
}

// Hub owns the lobby registry and its coordinator and runs the admission flow
// for new connections.
type Hub struct {
	opts        Options
	clock       clockwork.Clock
	log         *zerolog.Logger
	observer    Observer
	registry    *Registry
	coordinator *Coordinator
	startedAt   time.Time

	// serialises the create-on-first-client decision
	selectMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub. In single lobby mode the main lobby exists on return.
func NewHub(opts Options) *Hub {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.RuntimeInterval <= 0 {
		opts.RuntimeInterval = 100 * time.Millisecond
	}
	if opts.LobbyRemoveMessage == "" {
		opts.LobbyRemoveMessage = "Lobby removed"
	}

	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		opts:     opts,
		clock:    opts.Clock,
		log:      opts.Logger,
		observer: opts.Observer,
		registry: registry,
		coordinator: NewCoordinator(registry, CoordinatorConfig{
			Interval:      opts.LobbyManageInterval,
			RemoveMessage: opts.LobbyRemoveMessage,
			Clock:         opts.Clock,
			Observer:      opts.Observer,
			Logger:        opts.Logger,
		}),
		startedAt: opts.Clock.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	if opts.UseSingleLobby {
		if _, err := h.createLobby(MainLobbyID); err != nil {
			h.log.Error().Err(err).Msg("create main lobby")
		}
	}
	return h
}

// Run drains the coordinator until ctx is cancelled, then stops every lobby.
func (h *Hub) Run(ctx context.Context) {
	h.coordinator.Run(ctx)
	h.Close()
}

// Close stops every lobby tick loop.
func (h *Hub) Close() {
	h.cancel()
	for _, l := range h.registry.Snapshot() {
		l.stop()
	}
}

// Coordinator exposes the mutation queue.
func (h *Hub) Coordinator() *Coordinator {
	return h.coordinator
}

// Registry exposes read access to the lobbies.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// StartedAt is when the hub was created.
func (h *Hub) StartedAt() time.Time {
	return h.startedAt
}

// CreateLobby creates an empty lobby and starts its tick loop.
func (h *Hub) CreateLobby(id string) (*Lobby, error) {
	if h.opts.UseSingleLobby {
		return nil, ErrSingleLobbyMode
	}
	if id == "" {
		return nil, ErrInvalidLobbyID
	}
	return h.createLobby(id)
}

func (h *Hub) createLobby(id string) (*Lobby, error) {
	l := newLobby(id, h.clock.Now())
	// The tick loop must exist before the coordinator can see the lobby.
	l.start(h.ctx, h.clock, h.opts.RuntimeInterval, h.opts.EventRunner, h.log)
	if !h.registry.insert(l) {
		l.stop()
		return nil, ErrLobbyExists
	}

	h.log.Info().Str("lobby_id", id).Msg("lobby created")
	h.notify(NoticeLobbyCreated, id, "", "")
	return l, nil
}

// ListLobbies returns a snapshot of every lobby.
func (h *Hub) ListLobbies() []LobbyInfo {
	lobbies := h.registry.Snapshot()
	out := make([]LobbyInfo, 0, len(lobbies))
	for _, l := range lobbies {
		out = append(out, l.Info())
	}
	return out
}

// QueryLobby looks a lobby up through the coordinator queue.
func (h *Hub) QueryLobby(ctx context.Context, id string) (*Lobby, error) {
	return h.coordinator.Await(ctx, Mutation{Kind: MutationQuery, LobbyID: id})
}

// RemoveLobby removes a lobby through the coordinator queue and waits for it.
func (h *Hub) RemoveLobby(ctx context.Context, id string) error {
	_, err := h.coordinator.Await(ctx, Mutation{Kind: MutationRemoveLobby, LobbyID: id})
	return err
}

// ScheduleEvent adds an event to a lobby for its next tick.
func (h *Hub) ScheduleEvent(lobbyID string, ev Event) (Event, error) {
	l, ok := h.registry.Get(lobbyID)
	if !ok {
		return Event{}, ErrLobbyNotFound
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ScheduledAt.IsZero() {
		ev.ScheduledAt = h.clock.Now()
	}
	l.schedule(ev)
	return ev, nil
}

// Detach enqueues removal of a client whose connection ended.
func (h *Hub) Detach(client *Client) {
	lobbyID := client.LobbyID()
	if lobbyID == "" {
		return
	}
	h.coordinator.DetachClient(lobbyID, client, nil)
}

// HandleMessage passes an inbound frame to the configured handler.
func (h *Hub) HandleMessage(client *Client, raw string) {
	frame, err := proto.Parse(raw)
	if err != nil {
		h.log.Debug().Err(err).Str("client_id", client.ID).Msg("ignore inbound frame")
		return
	}
	if h.opts.MessageHandler == nil {
		h.log.Debug().Str("client_id", client.ID).Str("frame", frame.Type).Msg("inbound frame not handled")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("client_id", client.ID).Msg("message handler panicked")
		}
	}()
	h.opts.MessageHandler(client, frame)
}

// selectLobby decides which lobby a newly admitted connection joins.
func (h *Hub) selectLobby(conn ConnInfo) string {
	if h.opts.UseSingleLobby {
		return MainLobbyID
	}

	h.selectMu.Lock()
	defer h.selectMu.Unlock()

	if h.registry.Len() == 0 && h.opts.CreateLobbyOnFirstClient {
		for {
			l, err := h.createLobby(utils.NewLobbyID())
			if errors.Is(err, ErrLobbyExists) {
				continue
			}
			if err != nil {
				h.log.Error().Err(err).Msg("create lobby for first client")
				return ""
			}
			return l.ID
		}
	}

	selector := h.opts.LobbySelector
	if selector == nil {
		selector = DefaultLobbySelector
	}
	return selector(conn, h.ListLobbies())
}

// DefaultLobbySelector picks the requested lobby, else the oldest one.
func DefaultLobbySelector(conn ConnInfo, lobbies []LobbyInfo) string {
	if conn.RequestedLobby != "" {
		return conn.RequestedLobby
	}
	if len(lobbies) > 0 {
		return lobbies[0].ID
	}
	return ""
}

func (h *Hub) notify(kind NoticeKind, lobbyID, clientID, detail string) {
	h.observer.Observe(Notice{
		Kind:     kind,
		LobbyID:  lobbyID,
		ClientID: clientID,
		Detail:   detail,
		At:       h.clock.Now(),
	})
}
