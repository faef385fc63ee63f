package gateway

import "errors"

// Domain errors for the gateway.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("gateway: already started")

	// ErrOutputDir is returned when the log directory cannot be created.
	ErrOutputDir = errors.New("gateway: cannot create output directory")

	// ErrListen is returned when the listen address cannot be bound.
	ErrListen = errors.New("gateway: cannot listen")

	// ErrNotRunning is returned by HealthCheck before Start or after Close.
	ErrNotRunning = errors.New("gateway: not running")
)
