package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when an IMEI is not in the directory.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrAlreadyOnline is returned when inserting an IMEI that already has
	// an Online Registry entry.
	ErrAlreadyOnline = errors.New("device: already online")

	// ErrInvalidIdentity is returned when a registration payload is not a
	// usable identity document.
	ErrInvalidIdentity = errors.New("device: invalid identity")

	// ErrInvalidIMEI is returned when an IMEI is empty, too long, or
	// contains characters that are unsafe in a file name.
	ErrInvalidIMEI = errors.New("device: invalid imei")

	// ErrInvalidName is returned when a display name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidTag is returned when a tag is empty or too long.
	ErrInvalidTag = errors.New("device: invalid tag")
)
