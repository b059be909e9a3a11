package store

import (
	"context"
	"time"
)

// NoticeRecord is a persisted lobby lifecycle notice.
type NoticeRecord struct {
	ID        int64
	Kind      string
	LobbyID   string
	ClientID  string
	Detail    string
	CreatedAt time.Time
}

// NoticeFilter narrows a journal listing. Zero values match everything.
type NoticeFilter struct {
	LobbyID string
	Kind    string
	// Limit caps the number of records returned; newest first.
	Limit int
}

// Journal is an append-only audit log of lobby lifecycle notices.
// It records what happened; it is never read back to restore lobby state.
type Journal interface {
	// Append persists a notice and fills in its ID.
	Append(ctx context.Context, rec *NoticeRecord) error

	// List returns records matching filter, newest first.
	List(ctx context.Context, filter NoticeFilter) ([]*NoticeRecord, error)

	// Close closes the underlying database connection.
	Close() error
}
