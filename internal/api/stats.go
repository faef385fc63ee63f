package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemStats is the GET /stats response.
type SystemStats struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeStats   `json:"runtime"`
	Gateway       GatewayStats   `json:"gateway"`
	Devices       DeviceStats    `json:"devices"`
	WebSocket     WebSocketStats `json:"websocket"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// GatewayStats mirrors gateway.Stats with JSON names.
type GatewayStats struct {
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	SessionsActive      int64  `json:"sessions_active"`
	CommandsSent        uint64 `json:"commands_sent"`
	CommandsUnheard     uint64 `json:"commands_unheard"`
	EventsDelivered     uint64 `json:"events_delivered"`
	EventsDropped       uint64 `json:"events_dropped"`
}

// DeviceStats counts live and known devices.
type DeviceStats struct {
	Online int `json:"online"`
	Known  int `json:"known"`
}

// WebSocketStats contains hub statistics.
type WebSocketStats struct {
	ConnectedClients int `json:"connected_clients"`
}

// handleStats returns a JSON snapshot for dashboards that do not scrape
// Prometheus.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	gs := s.gateway.Stats()
	writeJSON(w, http.StatusOK, SystemStats{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
		Gateway: GatewayStats{
			ConnectionsAccepted: gs.ConnectionsAccepted,
			SessionsActive:      gs.SessionsActive,
			CommandsSent:        gs.CommandsSent,
			CommandsUnheard:     gs.CommandsUnheard,
			EventsDelivered:     gs.EventsDelivered,
			EventsDropped:       gs.EventsDropped,
		},
		Devices: DeviceStats{
			Online: len(s.gateway.ListOnline()),
			Known:  len(s.directory.All()),
		},
		WebSocket: WebSocketStats{
			ConnectedClients: s.Hub().ClientCount(),
		},
	})
}
