package session

import "errors"

// Session termination reasons.
//
// Every session ends with exactly one of these (or a wrapped I/O error),
// available from Handler.Err after Close.
var (
	// ErrVerifyTimeout is returned when no identity arrived before the
	// registration deadline.
	ErrVerifyTimeout = errors.New("session: registration deadline exceeded")

	// ErrPeerClosed is returned when the device closed the connection.
	ErrPeerClosed = errors.New("session: connection closed by device")

	// ErrHeartbeatTimeout is returned when nothing, not even a heartbeat,
	// arrived within the heartbeat interval.
	ErrHeartbeatTimeout = errors.New("session: heartbeat timeout")

	// ErrBusClosed is returned when the command bus shut down.
	ErrBusClosed = errors.New("session: command bus closed")

	// ErrMessageTooLong is returned when a line exceeds the configured
	// maximum message size.
	ErrMessageTooLong = errors.New("session: message exceeds maximum size")

	// ErrNotRegistered is returned by Run when Register has not succeeded.
	ErrNotRegistered = errors.New("session: not registered")

	// ErrClosed is returned when a method is called after Close.
	ErrClosed = errors.New("session: closed")
)
