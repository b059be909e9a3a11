package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/config"
	"github.com/vovakirdan/wirelobby-server/internal/core"
	"github.com/vovakirdan/wirelobby-server/internal/store"
	"github.com/vovakirdan/wirelobby-server/internal/utils"
)

// ServerName and Version are reported by the metadata endpoint.
const ServerName = "wirelobby-server"

// Version is overridden at build time with -ldflags.
var Version = "dev"

const mutationTimeout = 5 * time.Second

var errRequestTimeout = errors.New("lobby coordinator did not respond in time")

// LobbyHandlers provides HTTP handlers for lobby management endpoints.
type LobbyHandlers struct {
	hub     *core.Hub
	journal store.Journal
	cfg     *config.Config
	log     *zerolog.Logger
}

// NewLobbyHandlers creates a new lobby handlers instance.
func NewLobbyHandlers(hub *core.Hub, journal store.Journal, cfg *config.Config, logger *zerolog.Logger) *LobbyHandlers {
	return &LobbyHandlers{
		hub:     hub,
		journal: journal,
		cfg:     cfg,
		log:     logger,
	}
}

// CreateLobbyRequest represents the create lobby request body.
type CreateLobbyRequest struct {
	ID string `json:"id" binding:"omitempty,max=64"`
}

// ScheduleEventRequest represents the schedule event request body.
type ScheduleEventRequest struct {
	Payload any `json:"payload"`
}

// MetaLobby is the per-lobby entry of the metadata response.
type MetaLobby struct {
	ID                string `json:"id"`
	ActiveClientCount int    `json:"activeClientCount"`
}

// MetaResponse describes the running server.
type MetaResponse struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Uptime  int64       `json:"uptime"`
	Lobbies []MetaLobby `json:"lobbies,omitempty"`
}

// Meta reports server metadata; lobbies are listed only when enabled.
// GET /meta
func (h *LobbyHandlers) Meta(c *gin.Context) {
	resp := MetaResponse{
		Name:    ServerName,
		Version: Version,
		Uptime:  int64(time.Since(h.hub.StartedAt()).Seconds()),
	}
	if h.cfg.ExposeLobbiesInMetadata {
		resp.Lobbies = []MetaLobby{}
		for _, info := range h.hub.ListLobbies() {
			resp.Lobbies = append(resp.Lobbies, MetaLobby{ID: info.ID, ActiveClientCount: info.ActiveClientCount})
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ListLobbies returns a snapshot of every lobby.
// GET /lobbies
func (h *LobbyHandlers) ListLobbies(c *gin.Context) {
	lobbies := h.hub.ListLobbies()
	response := make([]LobbyResponse, 0, len(lobbies))
	for _, info := range lobbies {
		response = append(response, lobbyResponse(info))
	}

	h.log.Debug().Int("lobby_count", len(lobbies)).Msg("lobbies listed")
	c.JSON(http.StatusOK, response)
}

// CreateLobby creates an empty lobby. A random id is used when none is given.
// POST /lobbies
func (h *LobbyHandlers) CreateLobby(c *gin.Context) {
	var req CreateLobbyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.log.Debug().Err(err).Msg("invalid create lobby request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
			return
		}
	}
	if req.ID == "" {
		req.ID = utils.NewLobbyID()
	}

	lobby, err := h.hub.CreateLobby(req.ID)
	if err != nil {
		status, body := errorStatus(err)
		h.log.Debug().Err(err).Str("lobby_id", req.ID).Msg("create lobby refused")
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, lobbyResponse(lobby.Info()))
}

// RemoveLobby removes a lobby through the coordinator and waits for it.
// DELETE /lobbies/:id
func (h *LobbyHandlers) RemoveLobby(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), mutationTimeout)
	defer cancel()

	if err := h.hub.RemoveLobby(ctx, id); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", errRequestTimeout, err)
		}
		status, body := errorStatus(err)
		h.log.Debug().Err(err).Str("lobby_id", id).Msg("remove lobby failed")
		c.JSON(status, body)
		return
	}

	c.Status(http.StatusNoContent)
}

// ScheduleEvent queues an event for a lobby's next tick.
// POST /lobbies/:id/events
func (h *LobbyHandlers) ScheduleEvent(c *gin.Context) {
	id := c.Param("id")

	var req ScheduleEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	ev, err := h.hub.ScheduleEvent(id, core.Event{Payload: req.Payload})
	if err != nil {
		status, body := errorStatus(err)
		c.JSON(status, body)
		return
	}

	h.log.Debug().Str("lobby_id", id).Str("event_id", ev.ID).Msg("event scheduled")
	c.JSON(http.StatusAccepted, eventResponse(id, ev))
}

// ListNotices returns journal records, newest first.
// GET /notices?lobby=&kind=&limit=
func (h *LobbyHandlers) ListNotices(c *gin.Context) {
	filter := store.NoticeFilter{
		LobbyID: c.Query("lobby"),
		Kind:    c.Query("kind"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Code: core.ErrCodeBadRequest})
			return
		}
		filter.Limit = limit
	}

	records, err := h.journal.List(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list notices")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: core.ErrCodeInternal})
		return
	}

	response := make([]NoticeResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, noticeResponse(rec))
	}
	c.JSON(http.StatusOK, response)
}
