package domain

import "errors"

// Domain errors
var (
	ErrUnknownPlayer    = errors.New("player not connected to room")
	ErrNotDrawer        = errors.New("player is not the current drawer")
	ErrRoundNotRunning  = errors.New("round is not running")
	ErrStoreUnavailable = errors.New("score store unavailable")
	ErrNoWords          = errors.New("word list is empty")
	ErrRoomNotFound     = errors.New("room not found")
	ErrPlayerNotFound   = errors.New("player not found in leaderboard")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInternalError    = errors.New("internal server error")
	ErrHistoryDisabled  = errors.New("round history is not enabled")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrRoomNotFound)
}
