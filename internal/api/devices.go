package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// historyEntry is a directory record annotated with live state.
type historyEntry struct {
	device.RegisteredDevice
	Online bool `json:"online"`
}

// handleListOnline returns the devices with a registered, live session.
func (s *Server) handleListOnline(w http.ResponseWriter, _ *http.Request) {
	devices := s.gateway.ListOnline()
	if devices == nil {
		devices = []device.Identity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleListHistory returns every device that has ever registered.
func (s *Server) handleListHistory(w http.ResponseWriter, _ *http.Request) {
	online := make(map[string]struct{})
	for _, id := range s.gateway.ListOnline() {
		online[id.IMEI] = struct{}{}
	}

	records := s.directory.All()
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		_, live := online[rec.BaseInfo.IMEI]
		entries = append(entries, historyEntry{RegisteredDevice: rec, Online: live})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": entries, "count": len(entries)})
}

// handleGetDevice returns one directory record.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	rec, err := s.directory.Find(chi.URLParam(r, "imei"))
	if err != nil {
		s.writeDirectoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleGetLog returns the device's data log as plain text.
func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	imei := chi.URLParam(r, "imei")

	body, found, err := s.gateway.GetLog(imei)
	if err != nil {
		s.logger.Error("failed to read device log", "imei", imei, "error", err)
		writeInternalError(w, "failed to read log")
		return
	}
	if !found {
		writeNotFound(w, "no log for device")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	w.Write([]byte(body))
}

func (s *Server) handleSetName(w http.ResponseWriter, r *http.Request) {
	rec, err := s.directory.SetName(chi.URLParam(r, "imei"), chi.URLParam(r, "name"))
	if err != nil {
		s.writeDirectoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	rec, err := s.directory.AddTag(chi.URLParam(r, "imei"), chi.URLParam(r, "tag"))
	if err != nil {
		s.writeDirectoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	rec, err := s.directory.RemoveTag(chi.URLParam(r, "imei"), chi.URLParam(r, "tag"))
	if err != nil {
		s.writeDirectoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeDirectoryError maps directory errors to HTTP responses.
func (s *Server) writeDirectoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound), errors.Is(err, device.ErrInvalidIMEI):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrInvalidName), errors.Is(err, device.ErrInvalidTag):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("device directory error", "error", err)
		writeInternalError(w, "failed to update device")
	}
}
