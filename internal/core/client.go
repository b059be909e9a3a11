package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/proto"
)

// NotSynchronised is the LastSynchronised value before any sync round-trip.
const NotSynchronised int64 = -1

const (
	defaultCloseGrace = 120 * time.Millisecond
	sendTimeout       = 5 * time.Second
)

// Transport is the connection a client session writes to.
// Send must return once ctx is done; frames sent by the core use an already
// cancelled ctx and must be queued without waiting or refused.
type Transport interface {
	Send(ctx context.Context, frame proto.Frame) error
	Close(reason string) error
}

// ConnInfo describes an incoming connection to admission and lobby selection hooks.
type ConnInfo struct {
	RemoteAddr     string
	UserAgent      string
	RequestedLobby string
	Token          string
	Query          map[string][]string
}

// Client is a connected participant as seen by the core layer.
type Client struct {
	ID   string
	Info ConnInfo

	transport  Transport
	clock      clockwork.Clock
	closeGrace time.Duration
	log        *zerolog.Logger

	lobbyID          atomic.Value // string, target chosen at admission
	lastSynchronised atomic.Int64
	removed          atomic.Bool
}

// NewClient constructs a client session around a transport.
func NewClient(id string, transport Transport) *Client {
	nop := zerolog.Nop()
	c := &Client{
		ID:         id,
		transport:  transport,
		clock:      clockwork.NewRealClock(),
		closeGrace: defaultCloseGrace,
		log:        &nop,
	}
	c.lastSynchronised.Store(NotSynchronised)
	c.lobbyID.Store("")
	return c
}

// LobbyID is the lobby the client was sent to on admission, or "".
func (c *Client) LobbyID() string {
	id, _ := c.lobbyID.Load().(string)
	return id
}

// LastSynchronised returns the unix millis of the last completed sync round-trip.
// Nothing acknowledges SYN frames yet, so this stays NotSynchronised.
func (c *Client) LastSynchronised() int64 {
	return c.lastSynchronised.Load()
}

// Removed reports whether Remove has been called.
func (c *Client) Removed() bool {
	return c.removed.Load()
}

// Remove notifies the client with a CLS frame and closes the transport after
// the close grace period. Only the first call has an effect; it returns false
// for every later call.
func (c *Client) Remove(reason string) bool {
	if !c.removed.CompareAndSwap(false, true) {
		return false
	}

	c.send(proto.Close(reason))
	c.clock.AfterFunc(c.closeGrace, func() {
		if err := c.transport.Close(reason); err != nil {
			c.log.Debug().Err(err).Str("client_id", c.ID).Msg("close transport")
		}
	})

	c.log.Info().Str("client_id", c.ID).Str("reason", reason).Msg("client removed")
	return true
}

// Send writes a frame to the client transport.
func (c *Client) Send(frame proto.Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return c.transport.Send(ctx, frame)
}

// send is used on the coordinator goroutine: it never waits for buffer space
// and drops the frame when the transport cannot take it at once.
func (c *Client) send(frame proto.Frame) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.transport.Send(ctx, frame); err != nil {
		c.log.Warn().Err(err).Str("client_id", c.ID).Str("frame", frame.Type).Msg("send frame")
	}
}
