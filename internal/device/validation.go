package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants.
const (
	maxIMEILength = 64
	maxNameLength = 100
	maxTagLength  = 50

	// The IMEI names a log file, so it must be a single safe path element:
	// no separators, no leading dot.
	imeiPattern = `^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`
)

var imeiRegex = regexp.MustCompile(imeiPattern)

// ValidateIMEI checks that an IMEI is usable as a registry key and a file name.
func ValidateIMEI(imei string) error {
	if imei == "" {
		return fmt.Errorf("%w: imei cannot be empty", ErrInvalidIMEI)
	}
	if len(imei) > maxIMEILength {
		return fmt.Errorf("%w: imei exceeds %d characters", ErrInvalidIMEI, maxIMEILength)
	}
	if !imeiRegex.MatchString(imei) {
		return fmt.Errorf("%w: %q contains unsupported characters", ErrInvalidIMEI, imei)
	}
	return nil
}

// ValidateName checks if a display name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateTag checks if a tag is valid after normalisation.
func ValidateTag(tag string) error {
	tag = normaliseTag(tag)
	if tag == "" {
		return fmt.Errorf("%w: tag cannot be empty", ErrInvalidTag)
	}
	if len(tag) > maxTagLength {
		return fmt.Errorf("%w: tag exceeds %d characters", ErrInvalidTag, maxTagLength)
	}
	return nil
}

// normaliseTag lower-cases and trims a tag.
func normaliseTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
