package core

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vovakirdan/wirelobby-server/internal/proto"
	"github.com/vovakirdan/wirelobby-server/internal/utils"
)

// AdmissionRequest is handed to the AdmissionHook for a pending connection.
type AdmissionRequest struct {
	Conn ConnInfo

	once     sync.Once
	decision chan admission
}

type admission struct {
	ok      bool
	payload string
}

func newAdmissionRequest(conn ConnInfo) *AdmissionRequest {
	return &AdmissionRequest{Conn: conn, decision: make(chan admission, 1)}
}

// Accept resolves the request. ok=false rejects the connection with payload
// as the error message (the default rejection when empty). Only the first
// call counts.
func (r *AdmissionRequest) Accept(ok bool, payload string) {
	r.once.Do(func() {
		r.decision <- admission{ok: ok, payload: payload}
	})
}

// Negotiate runs admission for a new connection. On success the client is
// queued for its lobby and returned; the JOINING frame has been sent and the
// JOINED and SYN frames follow once the coordinator applies the add.
// Rejected connections get an ERR frame and are closed after the rejection
// timeout; Negotiate then returns ErrRejected.
func (h *Hub) Negotiate(ctx context.Context, transport Transport, conn ConnInfo) (*Client, error) {
	if !h.opts.AcceptAllConnections {
		ok, payload, err := h.awaitAdmission(ctx, conn)
		if err != nil {
			return nil, err
		}
		if !ok {
			h.reject(transport, conn, payload)
			return nil, ErrRejected
		}
	}

	return h.admit(transport, conn), nil
}

func (h *Hub) awaitAdmission(ctx context.Context, conn ConnInfo) (bool, string, error) {
	if h.opts.AdmissionHook == nil {
		h.log.Warn().Str("remote", conn.RemoteAddr).Msg("no admission hook configured, rejecting")
		return false, "", nil
	}

	req := newAdmissionRequest(conn)
	func() {
		defer func() {
			if r := recover(); r != nil {
				h.log.Error().Interface("panic", r).Msg("admission hook panicked")
				req.Accept(false, "")
			}
		}()
		h.opts.AdmissionHook(req)
	}()

	select {
	case d := <-req.decision:
		return d.ok, d.payload, nil
	case <-ctx.Done():
		return false, "", ctx.Err()
	}
}

func (h *Hub) reject(transport Transport, conn ConnInfo, payload string) {
	if payload == "" {
		payload = proto.DefaultRejection
	}

	sendCtx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := transport.Send(sendCtx, proto.Error(payload)); err != nil {
		h.log.Warn().Err(err).Str("remote", conn.RemoteAddr).Msg("send rejection")
	}
	h.clock.AfterFunc(h.opts.RejectionSocketCloseTimeout, func() {
		if err := transport.Close(payload); err != nil {
			h.log.Debug().Err(err).Msg("close rejected transport")
		}
	})

	h.log.Info().Str("remote", conn.RemoteAddr).Str("payload", payload).Msg("connection rejected")
	h.notify(NoticeConnectionRejected, "", "", payload)
}

func (h *Hub) admit(transport Transport, conn ConnInfo) *Client {
	client := NewClient(uuid.NewString(), transport)
	client.Info = conn
	client.clock = h.clock
	client.closeGrace = h.opts.ClientRemoveSocketCloseTimeout
	client.log = h.log

	target := h.selectLobby(conn)
	client.lobbyID.Store(target)

	client.send(proto.Joining(target))
	h.coordinator.AddClient(target, client, func(l *Lobby) {
		if l != nil {
			client.send(proto.Joined(l.ID))
		}
		// The handshake does not depend on whether the add landed.
		h.synchronise(client)
	})

	h.log.Info().Str("client_id", client.ID).Str("lobby_id", target).Str("remote", conn.RemoteAddr).Msg("client admitted")
	return client
}

// synchronise sends the clock reference frame. No acknowledgment is read.
func (h *Hub) synchronise(client *Client) {
	syncID := utils.NewSyncID()
	client.send(proto.Sync(syncID, h.clock.Now().UnixMilli()))
	h.log.Debug().Str("client_id", client.ID).Str("sync_id", syncID).Msg("sync sent")
}
