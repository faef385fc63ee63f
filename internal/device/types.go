package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Identity is what a device reports about itself when it registers.
//
// It is immutable once parsed. Sessions keep their own copy and the
// Online Registry stores a snapshot by value.
type Identity struct {
	IMEI            string `json:"imei"`
	ICCID           string `json:"iccid"`
	FirmwareVersion string `json:"fver"`

	// SignalQuality is the modem CSQ reading at registration time.
	// Optional; zero when the device did not report it.
	SignalQuality int `json:"csq,omitempty"`
}

// ParseIdentity decodes a registration payload.
//
// The payload must be a JSON object with non-empty imei, iccid and fver
// fields, and imei must satisfy ValidateIMEI. Unknown fields are ignored.
//
// Parameters:
//   - payload: Raw bytes of the first non-heartbeat message
//
// Returns:
//   - Identity: The parsed identity
//   - error: ErrInvalidIdentity (possibly wrapping ErrInvalidIMEI) on failure
func ParseIdentity(payload []byte) (Identity, error) {
	payload = bytes.TrimSpace(payload)

	var raw struct {
		IMEI  *string `json:"imei"`
		ICCID *string `json:"iccid"`
		FVer  *string `json:"fver"`
		CSQ   *int    `json:"csq"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}

	var missing []string
	if raw.IMEI == nil || *raw.IMEI == "" {
		missing = append(missing, "imei")
	}
	if raw.ICCID == nil || *raw.ICCID == "" {
		missing = append(missing, "iccid")
	}
	if raw.FVer == nil || *raw.FVer == "" {
		missing = append(missing, "fver")
	}
	if len(missing) > 0 {
		return Identity{}, fmt.Errorf("%w: missing %v", ErrInvalidIdentity, missing)
	}

	if err := ValidateIMEI(*raw.IMEI); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}

	id := Identity{
		IMEI:            *raw.IMEI,
		ICCID:           *raw.ICCID,
		FirmwareVersion: *raw.FVer,
	}
	if raw.CSQ != nil {
		id.SignalQuality = *raw.CSQ
	}
	return id, nil
}

// String renders the identity for log lines.
func (id Identity) String() string {
	return fmt.Sprintf("device[imei=%s, iccid=%s, fver=%s]", id.IMEI, id.ICCID, id.FirmwareVersion)
}

// RegisteredDevice is the persistent directory record for a device that
// has registered at least once.
type RegisteredDevice struct {
	// BaseInfo is the identity from the most recent registration.
	// SignalQuality is not persisted.
	BaseInfo  Identity  `json:"base_info"`
	Name      *string   `json:"name,omitempty"`
	Tags      []string  `json:"tags"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// DeepCopy returns an independent copy of the record.
func (d *RegisteredDevice) DeepCopy() *RegisteredDevice {
	if d == nil {
		return nil
	}
	cp := *d
	if d.Name != nil {
		name := *d.Name
		cp.Name = &name
	}
	cp.Tags = slices.Clone(d.Tags)
	if cp.Tags == nil {
		cp.Tags = []string{}
	}
	return &cp
}

// HasTag reports whether the record carries tag (after normalisation).
func (d *RegisteredDevice) HasTag(tag string) bool {
	return slices.Contains(d.Tags, normaliseTag(tag))
}
