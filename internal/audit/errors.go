package audit

import "errors"

// Domain errors for the audit package.
var (
	// ErrMissingRepository is returned when an observer is built without a repository.
	ErrMissingRepository = errors.New("audit: repository is required")
)
