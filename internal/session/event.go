package session

import (
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// EventType identifies a session lifecycle event.
type EventType string

// Session event types.
const (
	EventConnected    EventType = "connected"
	EventRegistered   EventType = "registered"
	EventRejected     EventType = "rejected"
	EventData         EventType = "data"
	EventCommand      EventType = "command"
	EventLagged       EventType = "lagged"
	EventDisconnected EventType = "disconnected"

	// EventCommandSent is emitted by the gateway, not a session, when an
	// operator submits a command. SessionID is empty; Payload is the
	// command text and Receivers the number of live subscriptions.
	EventCommandSent EventType = "command_sent"
)

// Event describes something that happened on one device connection.
//
// Identity is nil until registration succeeds. Payload is set for data and
// command events, Reason and Err for rejected and disconnected events. Err
// is nil when the session was closed without a failure.
type Event struct {
	Type       EventType        `json:"type"`
	SessionID  string           `json:"session_id"`
	RemoteAddr string           `json:"remote_addr"`
	Identity   *device.Identity `json:"identity,omitempty"`
	Payload    string           `json:"payload,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Err        error            `json:"-"`
	Skipped    uint64           `json:"skipped,omitempty"`
	Receivers  int              `json:"receivers,omitempty"`
	Duration   time.Duration    `json:"duration_ns,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// IMEI returns the device IMEI, or "" before registration.
func (e Event) IMEI() string {
	if e.Identity == nil {
		return ""
	}
	return e.Identity.IMEI
}

// EventSink receives session events. It is called on the session
// goroutine and must not block.
type EventSink func(Event)

func discardEvents(Event) {}
