package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/core"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Publisher forwards lobby notices to NATS subjects <prefix>.<kind>.
type Publisher struct {
	nc     conn
	prefix string
	log    *zerolog.Logger
}

// envelope is the JSON body published for each notice.
type envelope struct {
	Kind      core.NoticeKind `json:"kind"`
	LobbyID   string          `json:"lobbyId,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Connect dials NATS and returns a publisher.
func Connect(cfg Config, logger *zerolog.Logger) (*Publisher, error) {
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Name("wirelobby-server"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.Info().Str("url", nc.ConnectedUrl()).Str("prefix", cfg.SubjectPrefix).Msg("NATS connected")

	return newPublisher(nc, cfg.SubjectPrefix, logger), nil
}

func newPublisher(nc conn, prefix string, logger *zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = "wirelobby.notices"
	}
	return &Publisher{nc: nc, prefix: prefix, log: logger}
}

// Subject returns the subject a notice of kind is published on.
func (p *Publisher) Subject(kind core.NoticeKind) string {
	return p.prefix + "." + string(kind)
}

func (p *Publisher) Name() string { return "nats" }

// Deliver publishes a notice.
func (p *Publisher) Deliver(_ context.Context, n core.Notice) error {
	data, err := json.Marshal(envelope{
		Kind:      n.Kind,
		LobbyID:   n.LobbyID,
		ClientID:  n.ClientID,
		Detail:    n.Detail,
		Timestamp: n.At.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	subject := p.Subject(n.Kind)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (p *Publisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.nc.FlushWithContext(ctx); err != nil {
		p.log.Warn().Err(err).Msg("flush NATS")
	}
	p.nc.Close()
}
