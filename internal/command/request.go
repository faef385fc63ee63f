package command

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Request is the JSON form of a command accepted by the REST API and the
// MQTT command topic.
//
// Either Command carries the operator text form ("123,456:reboot"), or
// Targets and Payload are given separately. Command wins when both are set.
type Request struct {
	Command string   `json:"command,omitempty"`
	Targets []string `json:"targets,omitempty"`
	Payload string   `json:"payload,omitempty"`
}

// Build converts the request into a Command.
//
// Returns:
//   - Command: The normalised command
//   - error: ErrInvalidRequest when no payload is present
func (r Request) Build() (Command, error) {
	var cmd Command
	if r.Command != "" {
		cmd = Parse(r.Command)
	} else {
		cmd = New(r.Payload, r.Targets...)
	}
	if strings.TrimSpace(cmd.Payload) == "" {
		return Command{}, fmt.Errorf("%w: empty payload", ErrInvalidRequest)
	}
	return cmd, nil
}

// Decode reads a command from raw bytes.
//
// A JSON object is decoded as a Request; anything else is taken as the
// operator text form. Surrounding whitespace is ignored.
func Decode(data []byte) (Command, error) {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		var req Request
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return Command{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return req.Build()
	}
	return Request{Command: text}.Build()
}
