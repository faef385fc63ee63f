package mqttbridge

import "errors"

// Domain errors for the MQTT bridge.
var (
	// ErrMissingClient is returned when no MQTT client is supplied.
	ErrMissingClient = errors.New("mqttbridge: mqtt client is required")

	// ErrMissingGateway is returned when no command sender is supplied.
	ErrMissingGateway = errors.New("mqttbridge: gateway is required")
)
