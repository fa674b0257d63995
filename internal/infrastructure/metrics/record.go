package metrics

import "time"

// SetActiveSessions updates the gen-1/gen-2 session gauges. Called after
// every discovery, mode-change, and session-closed event.
func (m *Metrics) SetActiveSessions(gen1, gen2 int) {
	m.ActiveGen1Sessions.Set(float64(gen1))
	m.ActiveGen2Sessions.Set(float64(gen2))
}

// IncBLEProcessed records one successfully decoded beacon of the given
// sensor kind.
func (m *Metrics) IncBLEProcessed(kind string) {
	m.BLEBeaconsProcessed.WithLabelValues(kind).Inc()
}

// IncBLEDropped records one beacon dropped before a cache write, tagged
// with the reason it was dropped.
func (m *Metrics) IncBLEDropped(reason string) {
	m.BLEBeaconsDropped.WithLabelValues(reason).Inc()
}

// SetValveQueueDepth reports the current radiator-valve retry queue size.
func (m *Metrics) SetValveQueueDepth(n int) {
	m.ValveQueueDepth.Set(float64(n))
}

// IncValveRetry records one valve command retransmission.
func (m *Metrics) IncValveRetry() {
	m.ValveRetries.Inc()
}

// ObserveCacheWriteLatency records one WriteValue call's duration.
func (m *Metrics) ObserveCacheWriteLatency(d time.Duration) {
	m.CacheWriteLatency.Observe(d.Seconds())
}

// IncModeCorrection records one change_mode command sent to correct a
// mismatched actuator mode.
func (m *Metrics) IncModeCorrection() {
	m.ModeCorrectionsSent.Inc()
}
