package game

import (
	"errors"
	"fmt"
)

// Validation failures. These are wrapped in a *ValidationError.
var (
	ErrWrongPhase      = errors.New("action not allowed in current phase")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrInvalidBid      = errors.New("bid must be between 0 and 13")
	ErrCardNotInHand   = errors.New("card not in hand")
	ErrIllegalPlay     = errors.New("card cannot be played now")
	ErrTrickPending    = errors.New("previous trick has not been collected")
	ErrTrickIncomplete = errors.New("trick is not complete")
	ErrInvalidConfig   = errors.New("invalid game configuration")
)

// ValidationError reports an illegal action. The state it was applied to is
// unchanged and the error is only meaningful to the acting player.
type ValidationError struct {
	PlayerID string
	Err      error
	Detail   string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Detail)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(playerID string, err error, format string, args ...any) error {
	return &ValidationError{PlayerID: playerID, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown player, game or lobby.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
