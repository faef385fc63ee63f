package mqttbridge

import (
	"time"
)

// Device presence values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusMessage is the retained body of a device status topic.
type StatusMessage struct {
	Status          string    `json:"status"`
	IMEI            string    `json:"imei"`
	ICCID           string    `json:"iccid,omitempty"`
	FirmwareVersion string    `json:"fver,omitempty"`
	SignalQuality   int       `json:"csq,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// DataMessage is published for every data frame a device sends.
type DataMessage struct {
	IMEI      string    `json:"imei"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandResult is logged for each command taken from the command topic.
type CommandResult struct {
	Command   string `json:"command"`
	Delivered bool   `json:"delivered"`
}
