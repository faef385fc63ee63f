package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/gray-logic-gateway/internal/command"
)

// commandResponse reports whether any session was listening.
type commandResponse struct {
	Command   string `json:"command"`
	Delivered bool   `json:"delivered"`
}

// handleSendCommand submits a command to the bus.
//
// The body is either {"command":"123,456:reboot"},
// {"targets":["123"],"payload":"reboot"}, or the plain text form.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeBadRequest(w, "failed to read body")
		return
	}

	cmd, err := command.Decode(body)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	delivered := s.gateway.SendCommand(cmd)
	writeJSON(w, http.StatusOK, commandResponse{Command: cmd.String(), Delivered: delivered})
}
