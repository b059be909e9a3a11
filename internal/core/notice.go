package core

import "time"

// NoticeKind names a lifecycle change worth reporting outside the core.
type NoticeKind string

const (
	NoticeLobbyCreated       NoticeKind = "lobby_created"
	NoticeLobbyRemoved       NoticeKind = "lobby_removed"
	NoticeClientJoined       NoticeKind = "client_joined"
	NoticeClientDetached     NoticeKind = "client_detached"
	NoticeMutationDropped    NoticeKind = "mutation_dropped"
	NoticeConnectionRejected NoticeKind = "connection_rejected"
)

// Notice describes one lifecycle change.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	LobbyID  string     `json:"lobby_id,omitempty"`
	ClientID string     `json:"client_id,omitempty"`
	Detail   string     `json:"detail,omitempty"`
	At       time.Time  `json:"at"`
}

// Observer receives notices. Observe is called from the coordinator goroutine
// and must not block.
type Observer interface {
	Observe(Notice)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Notice)

// Observe implements Observer.
func (f ObserverFunc) Observe(n Notice) { f(n) }

type nopObserver struct{}

func (nopObserver) Observe(Notice) {}
