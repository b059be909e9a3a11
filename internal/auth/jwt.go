package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the role claim.
const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

var (
	// ErrInvalidToken is returned for tokens that fail parsing or validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden is returned when a valid token lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Claims represents JWT claims for lobby admission and admin access.
type Claims struct {
	// Lobby, when set, restricts the token to that lobby.
	Lobby string `json:"lobby,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// GenerateToken creates a signed token for subject.
func GenerateToken(cfg *JWTConfig, subject, lobby, role string) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", errors.New("empty signing secret")
	}
	if role == "" {
		role = RolePlayer
	}

	now := time.Now()
	claims := Claims{
		Lobby: lobby,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken parses and validates a JWT token.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}

	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return nil, fmt.Errorf("%w: issuer", ErrInvalidToken)
	}

	return claims, nil
}

// RequireRole validates tokenString and checks its role claim.
func RequireRole(cfg *JWTConfig, tokenString, role string) (*Claims, error) {
	claims, err := ValidateToken(cfg, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Role != role {
		return nil, ErrForbidden
	}
	return claims, nil
}
