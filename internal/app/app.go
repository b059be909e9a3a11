package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/auth"
	"github.com/vovakirdan/wirelobby-server/internal/bus"
	"github.com/vovakirdan/wirelobby-server/internal/config"
	"github.com/vovakirdan/wirelobby-server/internal/core"
	"github.com/vovakirdan/wirelobby-server/internal/notify"
	"github.com/vovakirdan/wirelobby-server/internal/proto"
	"github.com/vovakirdan/wirelobby-server/internal/store"
	"github.com/vovakirdan/wirelobby-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirelobby-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	dispatcher      *notify.Dispatcher
	journal         store.Journal
	publisher       *bus.Publisher
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}

	sinks := []notify.Sink{notify.NewLogSink(logger)}

	if cfg.Journal.Path != "" {
		journal, err := sqlite.New(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		a.journal = journal
		sinks = append(sinks, notify.NewJournalSink(journal))
		logger.Info().Str("db_path", cfg.Journal.Path).Msg("notice journal initialized")
	}

	if cfg.NATS.URL != "" {
		publisher, err := bus.Connect(bus.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		}, logger)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.publisher = publisher
		sinks = append(sinks, publisher)
		logger.Info().Str("url", cfg.NATS.URL).Msg("publishing notices to NATS")
	}

	a.dispatcher = notify.NewDispatcher(0, logger, sinks...)
	a.hub = core.NewHub(hubOptions(cfg, a.dispatcher, logger))
	a.server = transporthttp.NewServer(a.hub, a.journal, cfg, logger)

	return a, nil
}

// hubOptions maps configuration onto the hub.
func hubOptions(cfg *config.Config, observer core.Observer, logger *zerolog.Logger) core.Options {
	opts := core.Options{
		UseSingleLobby:                 cfg.UseSingleLobby,
		CreateLobbyOnFirstClient:       cfg.CreateLobbyOnFirstClient,
		AcceptAllConnections:           cfg.AcceptAllConnections,
		RuntimeInterval:                cfg.RuntimeInterval,
		LobbyManageInterval:            cfg.LobbyManageInterval,
		RejectionSocketCloseTimeout:    cfg.RejectionSocketCloseTimeout,
		ClientRemoveSocketCloseTimeout: cfg.ClientRemoveSocketCloseTimeout,
		LobbyRemoveMessage:             cfg.LobbyRemoveMessage,
		EventRunner:                    logEvents(logger),
		MessageHandler:                 logMessages(logger),
		Observer:                       observer,
		Logger:                         logger,
	}

	if !cfg.AcceptAllConnections && cfg.Admission.Secret != "" {
		admitter := auth.NewTokenAdmitter(&auth.JWTConfig{
			Secret: []byte(cfg.Admission.Secret),
			Issuer: cfg.Admission.Issuer,
			TTL:    cfg.Admission.TTL,
		}, logger)
		opts.AdmissionHook = admitter.Hook()
	}
	return opts
}

// logEvents consumes every pending event and records it.
func logEvents(logger *zerolog.Logger) core.EventRunner {
	return func(_ context.Context, lobby *core.Lobby, pending []core.Event) []core.Event {
		for _, ev := range pending {
			logger.Debug().Str("lobby_id", lobby.ID).Str("event_id", ev.ID).Interface("payload", ev.Payload).Msg("lobby event")
		}
		return nil
	}
}

func logMessages(logger *zerolog.Logger) core.MessageHandler {
	return func(client *core.Client, frame proto.Frame) {
		logger.Debug().Str("client_id", client.ID).Str("lobby_id", client.LobbyID()).Str("frame", frame.Type).Msg("inbound frame")
	}
}

// Hub exposes the lobby hub.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.hub.Run(hubCtx)
	}()

	notifyCtx, stopNotify := context.WithCancel(context.Background())
	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		a.dispatcher.Run(notifyCtx)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			runErr = err
		} else {
			runErr = <-serverErr
		}
	}

	stopHub()
	<-hubDone
	stopNotify()
	<-notifyDone
	if dropped := a.dispatcher.Dropped(); dropped > 0 {
		a.log.Warn().Int64("dropped", dropped).Msg("notices dropped during run")
	}

	a.cleanup()
	return runErr
}

// cleanup closes the journal and the NATS connection.
func (a *App) cleanup() {
	if a.publisher != nil {
		a.publisher.Close()
		a.log.Info().Msg("nats connection closed")
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close journal")
		} else {
			a.log.Info().Msg("journal closed")
		}
	}
}
