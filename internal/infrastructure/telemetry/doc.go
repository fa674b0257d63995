// Package telemetry writes actuator power and energy readings to InfluxDB
// v2 (C11). It wraps influxdata/influxdb-client-go/v2 the way the teacher's
// internal/infrastructure/influxdb package does: non-blocking batched
// writes, an async error callback, and a connected flag guarding every
// write so a downed InfluxDB never blocks the reconciler's event loop.
package telemetry
