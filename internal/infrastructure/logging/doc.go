// Package logging provides structured logging for the gateway.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production, text for development
//   - service and version fields on every entry
//   - level filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("gateway").Info("listening", "address", addr)
//
// Device payloads can carry customer data; log sizes and identifiers, not
// message bodies, at info level and above.
package logging
