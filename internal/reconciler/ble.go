package reconciler

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grayhome/domo-bridge/internal/ble"
	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/topic"
)

// bleSensorKinds are tried in order when looking a beacon's sensor MAC up
// across the cache (spec §4.7's "look up the device by MAC").
var bleSensorKinds = []topic.Name{
	topic.NameDomoBLEThermometer,
	topic.NameDomoBLEContact,
	topic.NameDomoBLEValve,
}

// handleBLE implements handle_ble(beacon) (spec §4.7). reportingMAC is the
// gen-2-plus proxy actuator that forwarded the beacon; obj/updated are the
// propertyStatus payload that carried it. The beacon string lives under
// whichever of "beacon_adv"/"valve_operation" updated names (spec §6):
// "<sensor_mac12> <payload_hex_or_digit> <signed_rssi_decimal>".
func (r *Reconciler) handleBLE(ctx context.Context, reportingMAC string, obj map[string]cachevalue.Value, updated []string) {
	field := "beacon_adv"
	if !hasAny(updated, "beacon_adv") {
		field = "valve_operation"
	}
	raw, err := obj[field].String()
	if err != nil {
		r.log.Warn("beacon field is not a string", "field", field, "proxy", reportingMAC)
		r.incBLEDropped("not_string")
		return
	}

	parts := strings.Fields(raw)
	if len(parts) != 3 {
		r.log.Warn("malformed beacon string", "raw", raw, "proxy", reportingMAC)
		r.incBLEDropped("malformed_string")
		return
	}
	sensorMAC12, payload, rssiStr := parts[0], parts[1], parts[2]

	sensorMAC, err := topic.CanonicalizeMAC(sensorMAC12)
	if err != nil {
		r.log.Warn("malformed beacon sensor mac", "error", err, "raw", raw)
		r.incBLEDropped("malformed_mac")
		return
	}
	rssi, err := strconv.Atoi(rssiStr)
	if err != nil || rssi < -128 || rssi > 127 {
		r.log.Warn("malformed beacon rssi", "raw", raw)
		r.incBLEDropped("malformed_rssi")
		return
	}

	kind, sensorTopic, found := r.lookupBLEDevice(ctx, sensorMAC)
	if !found {
		r.log.Debug("beacon for unknown sensor, ignoring", "mac", sensorMAC)
		r.incBLEDropped("unknown_sensor")
		return
	}

	switch kind {
	case topic.NameDomoBLEThermometer:
		r.handleThermometerBeacon(ctx, sensorMAC, sensorTopic, payload)
	case topic.NameDomoBLEContact:
		r.handleContactBeacon(ctx, sensorMAC, sensorTopic, payload, int8(rssi))
	case topic.NameDomoBLEValve:
		if open, err := ble.DecodeValveDigit(payload); err == nil {
			r.handleValveStatusBeacon(ctx, sensorMAC, open)
		} else {
			r.valveMgr.UpdateBestActuator(sensorMAC, reportingMAC, int8(rssi))
		}
	}
	if r.metrics != nil {
		r.metrics.IncBLEProcessed(string(kind))
	}
}

func (r *Reconciler) incBLEDropped(reason string) {
	if r.metrics != nil {
		r.metrics.IncBLEDropped(reason)
	}
}

func (r *Reconciler) lookupBLEDevice(ctx context.Context, mac string) (topic.Name, topic.Topic, bool) {
	for _, kind := range bleSensorKinds {
		t, err := r.cache.GetTopicUUID(ctx, kind, mac)
		if err == nil {
			return kind, t, true
		}
	}
	return "", topic.Topic{}, false
}

func bleKey(t topic.Topic) (string, error) {
	obj, err := t.Value.Object()
	if err != nil {
		return "", fmt.Errorf("sensor topic value must be an object: %w", err)
	}
	key, err := obj["key"].String()
	if err != nil {
		return "", fmt.Errorf("sensor topic missing encryption key: %w", err)
	}
	return key, nil
}

func (r *Reconciler) handleThermometerBeacon(ctx context.Context, mac string, sensorTopic topic.Topic, payloadBase64 string) {
	key, err := bleKey(sensorTopic)
	if err != nil {
		r.log.Warn("thermometer beacon missing key", "error", err, "mac", mac)
		return
	}
	raw, err := base64.StdEncoding.DecodeString(payloadBase64)
	if err != nil {
		r.log.Warn("thermometer beacon payload is not base64", "error", err, "mac", mac)
		return
	}
	advHex := hex.EncodeToString(raw)

	reading, err := ble.DecodeThermometer(mac, advHex, key)
	if err != nil {
		r.log.Warn("decoding thermometer beacon failed", "error", err, "mac", mac)
		return
	}

	value := cachevalue.FromObject(map[string]cachevalue.Value{
		"temperature":           cachevalue.FromFloat64(reading.TemperatureCelsius),
		"humidity":              cachevalue.FromFloat64(reading.HumidityPercent),
		"battery":               cachevalue.FromFloat64(reading.BatteryPercent),
		"last_update_timestamp": cachevalue.FromFloat64(float64(time.Now().UnixMilli())),
	})
	merged := mergeFields(sensorTopic.Value, mustObject(value))
	if err := r.cache.WriteValue(ctx, topic.NameDomoBLEThermometer, mac, merged); err != nil {
		r.log.Warn("writing thermometer topic failed", "error", err, "mac", mac)
	}
}

func (r *Reconciler) handleContactBeacon(ctx context.Context, mac string, sensorTopic topic.Topic, payloadHex string, rssi int8) {
	key, err := bleKey(sensorTopic)
	if err != nil {
		r.log.Warn("contact beacon missing key", "error", err, "mac", mac)
		return
	}
	payloadBytes, err := hex.DecodeString(payloadHex)
	if err != nil {
		r.log.Warn("contact beacon payload is not hex", "error", err, "mac", mac)
		return
	}

	frame := make([]byte, 0, len(payloadBytes)+2)
	frame = append(frame, byte(len(payloadBytes)))
	frame = append(frame, payloadBytes...)
	frame = append(frame, byte(rssi))
	frameHex := hex.EncodeToString(frame)

	state, err := ble.DecodeContact(mac, frameHex, key)
	if err != nil {
		r.log.Warn("decoding contact beacon failed", "error", err, "mac", mac)
		return
	}

	newStatus := state == ble.ContactClose
	if existingObj, err := sensorTopic.Value.Object(); err == nil {
		if current, err := existingObj["status"].Bool(); err == nil && current == newStatus {
			return // debounce: unchanged, no write
		}
	}

	overrides := map[string]cachevalue.Value{
		"status":                cachevalue.FromBool(newStatus),
		"last_update_timestamp": cachevalue.FromFloat64(float64(time.Now().UnixMilli())),
	}
	merged := mergeFields(sensorTopic.Value, overrides)
	if err := r.cache.WriteValue(ctx, topic.NameDomoBLEContact, mac, merged); err != nil {
		r.log.Warn("writing contact topic failed", "error", err, "mac", mac)
		return
	}
	if err := r.fanOutConnections(ctx, topic.NameDomoBLEContact, mac, merged, []string{"status"}); err != nil {
		r.log.Warn("fanning out contact beacon failed", "error", err, "mac", mac)
	}
}

func (r *Reconciler) handleValveStatusBeacon(ctx context.Context, mac string, open bool) {
	overrides := map[string]cachevalue.Value{
		"status":                cachevalue.FromBool(open),
		"last_update_timestamp": cachevalue.FromFloat64(float64(time.Now().UnixMilli())),
	}
	existing, err := r.cache.GetTopicUUID(ctx, topic.NameDomoBLEValve, mac)
	base := cachevalue.FromObject(nil)
	if err == nil {
		base = existing.Value
	}
	merged := mergeFields(base, overrides)
	if err := r.cache.WriteValue(ctx, topic.NameDomoBLEValve, mac, merged); err != nil {
		r.log.Warn("writing valve status failed", "error", err, "mac", mac)
	}
}

func mustObject(v cachevalue.Value) map[string]cachevalue.Value {
	obj, _ := v.Object()
	return obj
}
