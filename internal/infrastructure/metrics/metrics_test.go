package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/grayhome/domo-bridge/internal/infrastructure/metrics"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	m := metrics.New()
	m.SetActiveSessions(3, 2)
	m.IncBLEProcessed("domo_ble_thermometer_sensor")
	m.IncBLEDropped("unknown_sensor")
	m.SetValveQueueDepth(1)
	m.IncValveRetry()
	m.ObserveCacheWriteLatency(5 * time.Millisecond)
	m.IncModeCorrection()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Handler status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"domobridge_active_gen1_sessions 3",
		"domobridge_active_gen2_sessions 2",
		`domobridge_ble_beacons_processed_total{kind="domo_ble_thermometer_sensor"} 1`,
		`domobridge_ble_beacons_dropped_total{reason="unknown_sensor"} 1`,
		"domobridge_valve_queue_depth 1",
		"domobridge_valve_retries_total 1",
		"domobridge_mode_corrections_sent_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewReturnsIndependentRegistries(t *testing.T) {
	a := metrics.New()
	b := metrics.New()
	a.SetActiveSessions(5, 0)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), "domobridge_active_gen1_sessions 5") {
		t.Error("second Metrics instance observed the first instance's gauge value")
	}
}
