// Package metrics exposes Prometheus counters and gauges for the bridge
// (C12). Grounded on leahneukirchen-lywsd03mmc-exporter's use of
// github.com/prometheus/client_golang: GaugeVec/CounterVec registered
// against a dedicated registry and served by promhttp.Handler. Metrics are
// purely observational; the reconciler never reads them back.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "domobridge"

// Metrics holds every counter/gauge the reconciler reports into, registered
// against its own prometheus.Registry rather than the global default so
// tests can construct independent instances.
type Metrics struct {
	registry *prometheus.Registry

	ActiveGen1Sessions prometheus.Gauge
	ActiveGen2Sessions prometheus.Gauge

	BLEBeaconsProcessed *prometheus.CounterVec // label: kind
	BLEBeaconsDropped   *prometheus.CounterVec // label: reason

	ValveQueueDepth prometheus.Gauge
	ValveRetries    prometheus.Counter

	CacheWriteLatency prometheus.Histogram

	ModeCorrectionsSent prometheus.Counter
}

// New builds and registers the metric set.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ActiveGen1Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_gen1_sessions",
			Help:      "Number of live outbound gen-1 actuator sessions.",
		}),
		ActiveGen2Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_gen2_sessions",
			Help:      "Number of live inbound gen-2/gen-2-plus actuator sessions.",
		}),
		BLEBeaconsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ble_beacons_processed_total",
			Help:      "BLE beacon frames successfully decoded and applied, by sensor kind.",
		}, []string{"kind"}),
		BLEBeaconsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ble_beacons_dropped_total",
			Help:      "BLE beacon frames dropped before a cache write, by reason.",
		}, []string{"reason"}),
		ValveQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "valve_queue_depth",
			Help:      "Number of radiator valves with an in-flight desired state.",
		}),
		ValveRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valve_retries_total",
			Help:      "Radiator valve command retransmissions sent by the reconcile tick.",
		}),
		CacheWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_write_latency_seconds",
			Help:      "Latency of WriteValue calls against the replicated topic cache.",
			Buckets:   prometheus.DefBuckets,
		}),
		ModeCorrectionsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_corrections_sent_total",
			Help:      "change_mode commands sent because an actuator's cached mode disagreed with its desired mode.",
		}),
	}

	reg.MustRegister(
		m.ActiveGen1Sessions,
		m.ActiveGen2Sessions,
		m.BLEBeaconsProcessed,
		m.BLEBeaconsDropped,
		m.ValveQueueDepth,
		m.ValveRetries,
		m.CacheWriteLatency,
		m.ModeCorrectionsSent,
	)

	return m
}

// Handler serves the registered metrics in the Prometheus exposition
// format, for mounting on the internal metrics listener (C13).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
