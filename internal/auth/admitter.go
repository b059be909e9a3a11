package auth

import (
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/core"
)

// Rejection payloads sent in the ERR frame.
const (
	RejectMissingToken = "Token required"
	RejectWrongLobby   = "Token not valid for this lobby"
)

// TokenAdmitter admits connections presenting a valid token with the player role.
type TokenAdmitter struct {
	cfg *JWTConfig
	log *zerolog.Logger
}

// NewTokenAdmitter creates an admitter validating tokens with cfg.
func NewTokenAdmitter(cfg *JWTConfig, logger *zerolog.Logger) *TokenAdmitter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TokenAdmitter{cfg: cfg, log: logger}
}

// Hook returns the admission hook. It decides synchronously.
func (a *TokenAdmitter) Hook() core.AdmissionHook {
	return func(req *core.AdmissionRequest) {
		req.Accept(a.decide(req.Conn))
	}
}

func (a *TokenAdmitter) decide(conn core.ConnInfo) (bool, string) {
	if conn.Token == "" {
		return false, RejectMissingToken
	}

	claims, err := RequireRole(a.cfg, conn.Token, RolePlayer)
	if err != nil {
		a.log.Debug().Err(err).Str("remote", conn.RemoteAddr).Msg("admission token rejected")
		// Empty payload means the default rejection.
		return false, ""
	}

	if claims.Lobby != "" && claims.Lobby != conn.RequestedLobby {
		return false, RejectWrongLobby
	}

	a.log.Debug().Str("subject", claims.Subject).Str("remote", conn.RemoteAddr).Msg("admission token accepted")
	return true, ""
}
