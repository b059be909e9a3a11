package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/vovakirdan/wirelobby-server/internal/core"
	"github.com/vovakirdan/wirelobby-server/internal/store"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// LobbyResponse represents a lobby in API responses.
type LobbyResponse struct {
	ID                string `json:"id"`
	ActiveClientCount int    `json:"activeClientCount"`
	PendingEvents     int    `json:"pendingEvents"`
	CreatedAt         string `json:"createdAt"`
}

// EventResponse is returned after scheduling an event.
type EventResponse struct {
	ID          string `json:"id"`
	LobbyID     string `json:"lobbyId"`
	ScheduledAt string `json:"scheduledAt"`
}

// NoticeResponse represents a journal record.
type NoticeResponse struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	LobbyID   string `json:"lobbyId,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func lobbyResponse(info core.LobbyInfo) LobbyResponse {
	return LobbyResponse{
		ID:                info.ID,
		ActiveClientCount: info.ActiveClientCount,
		PendingEvents:     info.PendingEvents,
		CreatedAt:         info.CreatedAt.Format(time.RFC3339),
	}
}

func eventResponse(lobbyID string, ev core.Event) EventResponse {
	return EventResponse{
		ID:          ev.ID,
		LobbyID:     lobbyID,
		ScheduledAt: ev.ScheduledAt.Format(time.RFC3339Nano),
	}
}

func noticeResponse(rec *store.NoticeRecord) NoticeResponse {
	return NoticeResponse{
		ID:        rec.ID,
		Kind:      rec.Kind,
		LobbyID:   rec.LobbyID,
		ClientID:  rec.ClientID,
		Detail:    rec.Detail,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339Nano),
	}
}

// errorStatus maps a domain error to an HTTP status and response body.
func errorStatus(err error) (int, ErrorResponse) {
	ce := core.AsCoreError(err)
	resp := ErrorResponse{Error: ce.Message, Code: ce.Code}

	switch ce.Code {
	case core.ErrCodeLobbyNotFound:
		return http.StatusNotFound, resp
	case core.ErrCodeLobbyExists, core.ErrCodeSingleLobbyMode:
		return http.StatusConflict, resp
	case core.ErrCodeBadRequest:
		return http.StatusBadRequest, resp
	case core.ErrCodeUnauthorized:
		return http.StatusUnauthorized, resp
	}

	if errors.Is(err, errRequestTimeout) {
		return http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Code: core.ErrCodeInternal}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: core.ErrCodeInternal}
}
