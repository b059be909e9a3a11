package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/auth"
)

// ContextKeySubject is the context key for the admin token subject.
const ContextKeySubject = "subject"

// AdminMiddleware creates a middleware that requires an admin bearer token.
func AdminMiddleware(jwtConfig *auth.JWTConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := auth.RequireRole(jwtConfig, parts[1], auth.RoleAdmin)
		if err != nil {
			logger.Debug().Err(err).Msg("admin token rejected")
			if errors.Is(err, auth.ErrForbidden) {
				c.JSON(http.StatusForbidden, ErrorResponse{Error: "admin role required"})
			} else {
				c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			}
			c.Abort()
			return
		}

		c.Set(ContextKeySubject, claims.Subject)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
