package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeLobbyNotFound   = "lobby_not_found"
	ErrCodeLobbyExists     = "lobby_exists"
	ErrCodeSingleLobbyMode = "single_lobby_mode"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeInternal        = "internal"
)

var (
	// ErrSingleLobbyMode is a configuration violation: explicit lobby creation
	// while use_single_lobby is active.
	ErrSingleLobbyMode = errors.New("lobby creation disabled in single lobby mode")
	ErrLobbyExists     = errors.New("lobby already exists")
	ErrLobbyNotFound   = errors.New("lobby not found")
	ErrInvalidLobbyID  = errors.New("invalid lobby id")
	// ErrRejected is returned by Negotiate when admission was refused.
	ErrRejected = errors.New("connection rejected")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// AsCoreError maps a domain error to its code.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrLobbyNotFound):
		return coreError(ErrCodeLobbyNotFound, err.Error())
	case errors.Is(err, ErrLobbyExists):
		return coreError(ErrCodeLobbyExists, err.Error())
	case errors.Is(err, ErrSingleLobbyMode):
		return coreError(ErrCodeSingleLobbyMode, err.Error())
	case errors.Is(err, ErrInvalidLobbyID):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrRejected):
		return coreError(ErrCodeUnauthorized, err.Error())
	default:
		return coreError(ErrCodeInternal, err.Error())
	}
}
