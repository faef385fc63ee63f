package command

import (
	"errors"
	"fmt"
)

// Domain errors for commands and the command bus.
var (
	// ErrClosed is returned by a subscription once the bus is closed and
	// every retained command has been consumed, or after the subscription
	// itself is closed.
	ErrClosed = errors.New("command: bus closed")

	// ErrEmpty is returned by TryRecv when no command is pending.
	ErrEmpty = errors.New("command: no command pending")

	// ErrLagged matches any *LaggedError via errors.Is.
	ErrLagged = errors.New("command: subscriber lagged")

	// ErrInvalidRequest is returned when a command request cannot be decoded
	// or carries no payload.
	ErrInvalidRequest = errors.New("command: invalid request")
)

// LaggedError reports that a subscriber fell behind the bus history and
// missed commands. The subscription has already advanced to the oldest
// retained command; the next receive continues from there.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("command: subscriber lagged, %d commands skipped", e.Skipped)
}

// Is lets errors.Is(err, ErrLagged) match.
func (e *LaggedError) Is(target error) bool {
	return target == ErrLagged
}
