package core

import (
	"context"
	"time"
)

// Event is a unit of scheduled work pending in a lobby. The payload is opaque
// to the core; the EventRunner decides what it means.
type Event struct {
	ID          string
	Payload     any
	ScheduledAt time.Time
}

// EventRunner is called on every lobby tick with the events pending at that
// moment. It returns the events that should stay pending.
type EventRunner func(ctx context.Context, lobby *Lobby, pending []Event) []Event
