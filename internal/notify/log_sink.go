package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/core"
)

// LogSink writes every notice to the logger at debug level.
type LogSink struct {
	log *zerolog.Logger
}

// NewLogSink creates a sink writing to logger.
func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{log: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, n core.Notice) error {
	s.log.Debug().
		Str("kind", string(n.Kind)).
		Str("lobby_id", n.LobbyID).
		Str("client_id", n.ClientID).
		Str("detail", n.Detail).
		Time("at", n.At).
		Msg("lobby notice")
	return nil
}
