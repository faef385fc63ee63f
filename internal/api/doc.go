// Package api implements the HTTP REST API and WebSocket event stream for
// the device gateway.
//
// This package provides:
//   - REST endpoints for online devices, the device directory, logs and commands
//   - Audit trail queries
//   - A WebSocket hub that relays gateway events to browsers
//   - Optional HS256 bearer auth with ticket-based WebSocket auth
//
// # Architecture
//
// The server is a thin layer over the Gateway and the device Directory.
// Commands go straight onto the gateway's command bus; the response says
// whether any session was listening. The Hub is a gateway Observer and
// must be added to the gateway before it starts:
//
//	srv, err := api.New(deps)
//	gw.AddObserver(srv.Hub())
//	srv.Start(ctx)
//	defer srv.Close()
//
// # Security
//
// With security.jwt.secret unset every route is open. With it set, all
// routes except /api/v1/health and /metrics require a bearer token, and
// WebSocket clients exchange their token for a single-use ticket first.
package api
