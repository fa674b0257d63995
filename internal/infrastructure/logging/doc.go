// Package logging provides structured logging for the bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting bridge", "node_id", cfg.Bridge.NodeID)
//	logger.Error("session failed", "error", err)
//
// Components scope their own logger rather than logging through the root:
//
//	reconcilerLogger := logger.With("component", "reconciler")
//
// # Security
//
// Never log secrets: cache passwords, TLS keys, InfluxDB tokens, or the
// Basic-auth credentials actuators present to the G2 listener.
package logging
