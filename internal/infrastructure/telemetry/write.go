package telemetry

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteEnergyMetric records one domo_power_energy_sensor reading: the
// mangler's accumulated power/energy fields for a bound actuator channel.
// Non-blocking; a disconnected writer silently drops the point.
func (w *Writer) WriteEnergyMetric(sourceTopicUUID string, channel int, powerWatts, energyKWh float64) {
	if !w.IsConnected() {
		return
	}
	point := write.NewPoint(
		"energy",
		map[string]string{
			"topic_uuid": sourceTopicUUID,
			"channel":    strconv.Itoa(channel),
		},
		map[string]interface{}{
			"power_watts": powerWatts,
			"energy_kwh":  energyKWh,
		},
		time.Now(),
	)
	w.writeAPI.WritePoint(point)
}
