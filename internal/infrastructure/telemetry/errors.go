package telemetry

import "errors"

// Sentinel errors for the energy-telemetry writer.
var (
	// ErrDisabled indicates InfluxDB integration is disabled in config.
	ErrDisabled = errors.New("telemetry: disabled in configuration")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("telemetry: connection failed")

	// ErrNotConnected indicates the writer is not connected to InfluxDB.
	ErrNotConnected = errors.New("telemetry: not connected")
)
