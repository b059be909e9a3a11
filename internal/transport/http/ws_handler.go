package http

import (
	"context"
	"errors"
	"net"
	stdhttp "net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/config"
	"github.com/vovakirdan/wirelobby-server/internal/core"
	"github.com/vovakirdan/wirelobby-server/internal/proto"
)

const (
	sendBuffer       = 64
	rateLimitMessage = "Rate limit exceeded"
)

var errTransportClosed = errors.New("transport closed")

// WSHandler upgrades HTTP connections and runs them through hub negotiation.
type WSHandler struct {
	hub   *core.Hub
	cfg   *config.Config
	clock clockwork.Clock
	log   *zerolog.Logger

	// base is cancelled by Shutdown and ends every open connection.
	base     context.Context
	shutdown context.CancelFunc
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	base, shutdown := context.WithCancel(context.Background())
	return &WSHandler{
		hub:      hub,
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		log:      logger,
		base:     base,
		shutdown: shutdown,
	}
}

// Shutdown closes every open connection. Registered with the http.Server.
func (h *WSHandler) Shutdown() {
	h.shutdown()
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(h.base)
	defer cancel()

	tr := newWSTransport(conn)
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		tr.writeLoop(ctx, h.log)
	}()

	var admitted atomic.Pointer[core.Client]
	readErr := make(chan error, 1)
	go func() {
		readErr <- h.readLoop(ctx, conn, &admitted)
		cancel()
	}()

	client, err := h.hub.Negotiate(ctx, tr, connInfo(r))
	switch {
	case err == nil:
		admitted.Store(client)
		defer h.hub.Detach(client)
	case errors.Is(err, core.ErrRejected):
		// The hub closes the transport after the rejection delay.
	default:
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("negotiation abandoned")
		cancel()
	}

	// Runs until the hub closes the transport or the peer goes away.
	<-writeDone
	cancel()

	status, reason := tr.closeStatus()
	// Late frames from the hub are refused instead of queued.
	_ = tr.Close(reason)
	if err := conn.Close(status, reason); err != nil && !isClosedErr(err) {
		h.log.Debug().Err(err).Msg("ws close")
	}

	if err := <-readErr; err != nil && !isClosedErr(err) {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws connection closed with error")
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, admitted *atomic.Pointer[core.Client]) error {
	limiter := newRateLimiter(h.cfg.MaxMessagesPerMinute, h.clock)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		// Frames received before admission are ignored.
		client := admitted.Load()
		if client == nil {
			continue
		}
		if !limiter.allow() {
			if err := client.Send(proto.Error(rateLimitMessage)); err != nil {
				return err
			}
			continue
		}
		h.hub.HandleMessage(client, string(data))
	}
}

func connInfo(r *stdhttp.Request) core.ConnInfo {
	query := r.URL.Query()

	token := query.Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}

	return core.ConnInfo{
		RemoteAddr:     r.RemoteAddr,
		UserAgent:      r.UserAgent(),
		RequestedLobby: query.Get("lobby"),
		Token:          token,
		Query:          query,
	}
}

func isClosedErr(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// wsTransport implements core.Transport over a websocket connection.
// Frames are queued and written by a single writer goroutine.
type wsTransport struct {
	conn *websocket.Conn
	out  chan string

	closeOnce sync.Once
	closed    chan struct{}
	reason    string
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{
		conn:   conn,
		out:    make(chan string, sendBuffer),
		closed: make(chan struct{}),
	}
}

// Send queues a frame for writing. A full queue waits for ctx, so a cancelled
// ctx makes Send fail fast.
func (t *wsTransport) Send(ctx context.Context, frame proto.Frame) error {
	select {
	case <-t.closed:
		return errTransportClosed
	default:
	}

	select {
	case t.out <- frame.String():
		return nil
	default:
	}

	select {
	case t.out <- frame.String():
		return nil
	case <-t.closed:
		return errTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the connection once queued frames are written.
func (t *wsTransport) Close(reason string) error {
	t.closeOnce.Do(func() {
		t.reason = reason
		close(t.closed)
	})
	return nil
}

func (t *wsTransport) closeStatus() (websocket.StatusCode, string) {
	select {
	case <-t.closed:
		return websocket.StatusNormalClosure, t.reason
	default:
		return websocket.StatusNormalClosure, "closing"
	}
}

func (t *wsTransport) writeLoop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case msg := <-t.out:
			if err := t.write(ctx, msg); err != nil {
				logger.Debug().Err(err).Msg("write ws frame")
				return
			}
		case <-t.closed:
			t.flush(ctx, logger)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (t *wsTransport) flush(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case msg := <-t.out:
			if err := t.write(ctx, msg); err != nil {
				logger.Debug().Err(err).Msg("flush ws frame")
				return
			}
		default:
			return
		}
	}
}

func (t *wsTransport) write(ctx context.Context, msg string) error {
	return t.conn.Write(ctx, websocket.MessageText, []byte(msg))
}
