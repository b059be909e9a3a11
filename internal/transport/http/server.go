package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/auth"
	"github.com/vovakirdan/wirelobby-server/internal/config"
	"github.com/vovakirdan/wirelobby-server/internal/core"
	"github.com/vovakirdan/wirelobby-server/internal/store"
)

// NewServer builds the HTTP server: health and metadata, the websocket
// endpoint and the lobby admin API. journal may be nil.
func NewServer(hub *core.Hub, journal store.Journal, cfg *config.Config, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	lobbies := NewLobbyHandlers(hub, journal, cfg, logger)
	ws := NewWSHandler(hub, cfg, logger)

	router.GET("/health", healthHandler)
	router.GET("/meta", lobbies.Meta)

	admin := router.Group("/")
	if cfg.AdminTokenSecret != "" {
		admin.Use(AdminMiddleware(&auth.JWTConfig{
			Secret: []byte(cfg.AdminTokenSecret),
			Issuer: cfg.Admission.Issuer,
		}, logger))
	}
	admin.GET("/lobbies", lobbies.ListLobbies)
	admin.POST("/lobbies", lobbies.CreateLobby)
	admin.DELETE("/lobbies/:id", lobbies.RemoveLobby)
	admin.POST("/lobbies/:id/events", lobbies.ScheduleEvent)
	if journal != nil {
		admin.GET("/notices", lobbies.ListNotices)
	}

	// The websocket endpoint stays off gin: the upgrade hijacks a response
	// that gin already considers written.
	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", router)

	handler := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(mux)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	server.RegisterOnShutdown(ws.Shutdown)
	return server
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
