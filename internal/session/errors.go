package session

import (
	"errors"
	"fmt"

	"bingo/internal/game/draw"
)

var (
	ErrNotFound           = errors.New("session not found")
	ErrStateConflict      = errors.New("state conflict")
	ErrAuthorityViolation = errors.New("not allowed")
	ErrInvalidClaim       = errors.New("invalid claim")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrValidation         = errors.New("malformed message")
)

// Conflict reasons.
const (
	reasonAlreadyStarted = "already started"
	reasonFull           = "full"
	reasonAlreadyInGame  = "already in game"
	reasonNotActive      = "not active"
	reasonTooFewPlayers  = "not enough players"
	reasonAlreadyOver    = "already over"
)

// reasonError attaches a human readable reason to a sentinel.
type reasonError struct {
	kind   error
	reason string
}

func (e *reasonError) Error() string { return e.kind.Error() + ": " + e.reason }

func (e *reasonError) Unwrap() error { return e.kind }

func conflict(reason string) error {
	return &reasonError{kind: ErrStateConflict, reason: reason}
}

func withReason(kind error, format string, args ...any) error {
	return &reasonError{kind: kind, reason: fmt.Sprintf(format, args...)}
}

// Reason returns the text shown to a player for a rejected operation.
func Reason(err error) string {
	var re *reasonError
	if errors.As(err, &re) {
		return re.reason
	}
	switch {
	case errors.Is(err, draw.ErrNumbersExhausted):
		return "all numbers have been drawn"
	case errors.Is(err, ErrInvalidClaim):
		return "claim rejected: not every number on your card has been called"
	case errors.Is(err, ErrAuthorityViolation):
		return "you are not allowed to do that"
	case errors.Is(err, ErrNotFound):
		return "session not found"
	case err == nil:
		return ""
	default:
		return "internal error"
	}
}

// IsClientError reports whether err is a rejection caused by the request
// rather than a failure of the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrAuthorityViolation) ||
		errors.Is(err, ErrInvalidClaim) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, draw.ErrNumbersExhausted)
}
