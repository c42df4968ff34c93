package server

import (
	"errors"
	"fmt"

	"github.com/lox/spades/internal/game"
	"github.com/lox/spades/internal/matchmaking"
	"github.com/lox/spades/internal/protocol"
	"github.com/lox/spades/internal/users"
)

// errInvalidRequest marks a request the server refuses before it reaches a
// game, such as a malformed seating.
var errInvalidRequest = errors.New("invalid request")

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, fmt.Sprintf(format, args...))
}

// errorCode maps an error onto the code and message sent to a client.
// Unexpected errors are reported generically.
func errorCode(err error) (code, message string) {
	switch {
	case game.IsValidation(err),
		errors.Is(err, game.ErrInvalidConfig),
		errors.Is(err, matchmaking.ErrAlreadyQueued),
		errors.Is(err, errInvalidRequest):
		return protocol.CodeValidation, err.Error()
	case game.IsNotFound(err),
		errors.Is(err, users.ErrUserNotFound),
		errors.Is(err, ErrRoomClosed):
		return protocol.CodeNotFound, err.Error()
	case errors.Is(err, protocol.ErrMalformed),
		errors.Is(err, protocol.ErrUnknownMessageType):
		return protocol.CodeProtocol, err.Error()
	default:
		return protocol.CodeInternal, "internal error"
	}
}
