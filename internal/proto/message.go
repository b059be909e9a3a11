package proto

import (
	"errors"
	"strconv"
	"strings"
)

// Separator joins the fields of a text frame.
const Separator = "::"

// Frame types understood on the wire.
const (
	TypeSync  = "SYN"
	TypeClose = "CLS"
	TypeError = "ERR"
	TypeLobby = "LOB"

	LobbyJoining = "JOINING"
	LobbyJoined  = "JOINED"

	// DefaultRejection is sent when a connection is refused without a custom payload.
	DefaultRejection = "Access Denied"
)

// ErrEmptyFrame is returned when parsing an empty payload.
var ErrEmptyFrame = errors.New("empty frame")

// Frame is a decoded text frame: a type followed by zero or more fields.
type Frame struct {
	Type   string
	Fields []string
}

// String encodes the frame as TYPE::field::field.
func (f Frame) String() string {
	if len(f.Fields) == 0 {
		return f.Type
	}
	return f.Type + Separator + strings.Join(f.Fields, Separator)
}

// Field returns the i-th field or "" if absent.
func (f Frame) Field(i int) string {
	if i < 0 || i >= len(f.Fields) {
		return ""
	}
	return f.Fields[i]
}

// Parse decodes a raw text frame.
func Parse(raw string) (Frame, error) {
	if raw == "" {
		return Frame{}, ErrEmptyFrame
	}
	parts := strings.Split(raw, Separator)
	return Frame{Type: parts[0], Fields: parts[1:]}, nil
}

// Sync carries a synchronization packet id and the server clock in unix milliseconds.
func Sync(id string, serverMillis int64) Frame {
	return Frame{Type: TypeSync, Fields: []string{id, strconv.FormatInt(serverMillis, 10)}}
}

// Close tells the client it is being removed and why.
func Close(reason string) Frame {
	return Frame{Type: TypeClose, Fields: []string{reason}}
}

// Error reports a refusal or failure to the client.
func Error(msg string) Frame {
	return Frame{Type: TypeError, Fields: []string{msg}}
}

// Joining announces the lobby the client is about to be added to.
func Joining(lobbyID string) Frame {
	return Frame{Type: TypeLobby, Fields: []string{LobbyJoining, lobbyID}}
}

// Joined confirms the client was added to the lobby.
func Joined(lobbyID string) Frame {
	return Frame{Type: TypeLobby, Fields: []string{LobbyJoined, lobbyID}}
}

// SyncTimestamp extracts the server timestamp of a SYN frame.
func (f Frame) SyncTimestamp() (int64, error) {
	if f.Type != TypeSync || len(f.Fields) != 2 {
		return 0, errors.New("not a sync frame")
	}
	return strconv.ParseInt(f.Fields[1], 10, 64)
}
