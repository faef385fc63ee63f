package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "gateway"

// Topics builds gateway MQTT topics under a common prefix.
//
//	topics := mqtt.NewTopics("gateway")
//	topics.DeviceStatus("123") // "gateway/device/123/status"
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders for prefix. Surrounding slashes are
// trimmed; an empty prefix becomes DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// SystemStatus is the retained gateway online/offline topic, also used as LWT.
//
// Example: gateway/system/status
func (t Topics) SystemStatus() string {
	return t.Prefix + "/system/status"
}

// DeviceStatus is the retained per-device presence topic.
//
// Example: gateway/device/123/status
func (t Topics) DeviceStatus(imei string) string {
	return fmt.Sprintf("%s/device/%s/status", t.Prefix, imei)
}

// DeviceData carries every data message a device sends.
//
// Example: gateway/device/123/data
func (t Topics) DeviceData(imei string) string {
	return fmt.Sprintf("%s/device/%s/data", t.Prefix, imei)
}

// Command is the inbound topic for operator commands.
//
// Example: gateway/command
func (t Topics) Command() string {
	return t.Prefix + "/command"
}

// AllDeviceStatus matches every device status topic.
//
// Example: gateway/device/+/status
func (t Topics) AllDeviceStatus() string {
	return t.Prefix + "/device/+/status"
}

// AllDeviceData matches every device data topic.
//
// Example: gateway/device/+/data
func (t Topics) AllDeviceData() string {
	return t.Prefix + "/device/+/data"
}

// ValidSegment reports whether s can be used as a single topic level.
// Wildcards, separators and the NUL character are rejected.
func ValidSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#\x00")
}

// ParseDeviceTopic extracts the IMEI and kind ("status" or "data") from a
// device topic built by t. ok is false for any other topic.
func (t Topics) ParseDeviceTopic(topic string) (imei, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/device/")
	if !found {
		return "", "", false
	}
	imei, kind, found = strings.Cut(rest, "/")
	if !found || !ValidSegment(imei) || (kind != "status" && kind != "data") {
		return "", "", false
	}
	return imei, kind, true
}
