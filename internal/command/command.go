package command

import (
	"slices"
	"strings"
)

// BroadcastTarget is the canonical target token for a command addressed
// to every device.
const BroadcastTarget = "ALL"

// Command is an operator command addressed to zero or more devices.
//
// An empty Targets list addresses every device. New and Parse keep targets
// sorted and deduplicated so two commands for the same set compare equal;
// literals may not be, and Normalise brings them into that form.
//
// Commands are values: the bus hands the same Command to every subscriber
// and nothing mutates it after construction.
type Command struct {
	Targets []string `json:"targets,omitempty"`
	Payload string   `json:"payload"`
}

// New builds a Command for payload addressed to targets.
// Empty and whitespace-only targets are discarded. The broadcast token
// anywhere in the list widens the command to every device.
func New(payload string, targets ...string) Command {
	return Command{
		Targets: normaliseTargets(targets),
		Payload: payload,
	}
}

// Broadcast builds a Command addressed to every device.
func Broadcast(payload string) Command {
	return Command{Payload: payload}
}

// Parse reads the operator text form "id1,id2,...:payload".
//
// Only the first ':' separates targets from payload, so payloads may contain
// colons. Input without ':' is a broadcast of the whole string, as is an
// empty target list or a list naming "ALL" ("ALL,123:x" reaches everyone).
func Parse(input string) Command {
	targets, payload, found := strings.Cut(input, ":")
	if !found {
		return Broadcast(input)
	}
	return New(payload, strings.Split(targets, ",")...)
}

// String renders the command in the form accepted by Parse.
func (c Command) String() string {
	if c.IsBroadcast() {
		return BroadcastTarget + ":" + c.Payload
	}
	return strings.Join(c.Targets, ",") + ":" + c.Payload
}

// IsBroadcast reports whether the command addresses every device.
func (c Command) IsBroadcast() bool {
	return len(c.Targets) == 0
}

// IsFor reports whether a device with the given IMEI should receive the command.
// Targets need not be normalised.
func (c Command) IsFor(imei string) bool {
	if c.IsBroadcast() {
		return true
	}
	return slices.Contains(c.Targets, imei)
}

// Normalise returns c with its targets trimmed, sorted and deduplicated.
func (c Command) Normalise() Command {
	return New(c.Payload, c.Targets...)
}

// Equal reports whether c and other address the same devices with the same payload.
func (c Command) Equal(other Command) bool {
	return c.Payload == other.Payload && slices.Equal(c.Targets, other.Targets)
}

func normaliseTargets(raw []string) []string {
	var out []string
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == BroadcastTarget {
			return nil
		}
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}
