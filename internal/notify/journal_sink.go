package notify

import (
	"context"

	"github.com/vovakirdan/wirelobby-server/internal/core"
	"github.com/vovakirdan/wirelobby-server/internal/store"
)

// JournalSink appends notices to a store.Journal.
type JournalSink struct {
	journal store.Journal
}

// NewJournalSink creates a sink backed by journal.
func NewJournalSink(journal store.Journal) *JournalSink {
	return &JournalSink{journal: journal}
}

func (s *JournalSink) Name() string { return "journal" }

func (s *JournalSink) Deliver(ctx context.Context, n core.Notice) error {
	return s.journal.Append(ctx, &store.NoticeRecord{
		Kind:      string(n.Kind),
		LobbyID:   n.LobbyID,
		ClientID:  n.ClientID,
		Detail:    n.Detail,
		CreatedAt: n.At,
	})
}
