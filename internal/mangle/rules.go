package mangle

import "github.com/grayhome/domo-bridge/internal/cachevalue"

// manglePowerEnergy implements the domo_power_energy_sensor rule.
func manglePowerEnergy(in Input) (Patch, bool) {
	if !hasProperty(in.UpdatedProperties, "power_data") {
		return Patch{}, false
	}
	obj, err := in.ActuatorValue.Object()
	if err != nil {
		return Patch{}, false
	}
	powerData, ok := obj["power_data"]
	if !ok {
		return Patch{}, false
	}
	channels, err := powerData.Object()
	if err != nil {
		return Patch{}, false
	}
	chanField, ok := channels[channelField("channel", in.Channel)]
	if !ok {
		return Patch{}, false
	}
	chanObj, err := chanField.Object()
	if err != nil {
		return Patch{}, false
	}
	activePower, _ := chanObj["active_power"].Float64()
	energyDelta, _ := chanObj["energy"].Float64()

	return Patch{
		Fields: fields(
			"power", activePower,
			"energy", in.OldEnergy+energyDelta,
		),
		UpdatedProperties: []string{"power", "energy"},
	}, true
}

// mangleLightDimmable implements the domo_light_dimmable rule, which
// special-cases on target kind.
func mangleLightDimmable(in Input) (Patch, bool) {
	obj, err := in.ActuatorValue.Object()
	if err != nil {
		return Patch{}, false
	}

	if in.TargetKind == "shelly_rgbw" {
		rgbwStatus, ok := obj["rgbw_status"]
		if !ok {
			return Patch{}, false
		}
		letter := rgbwChannelLetter(in.Channel)
		rgbwObj, err := rgbwStatus.Object()
		if err != nil {
			return Patch{}, false
		}
		status, ok := rgbwObj[letter]
		if !ok {
			return Patch{}, false
		}
		return Patch{
			Fields:            fields("status", status),
			UpdatedProperties: []string{"status"},
		}, true
	}

	// shelly_dimmer path.
	status, hasStatus := obj["dimmer_status"]
	power, _ := obj["power1"].Float64()
	energyDelta, _ := obj["energy1"].Float64()

	out := make(map[string]cachevalue.Value)
	var updated []string
	if hasStatus {
		out["status"] = status
	}
	out["power"] = cachevalue.FromFloat64(power)
	out["energy"] = cachevalue.FromFloat64(in.OldEnergy + energyDelta)
	if hasProperty(in.UpdatedProperties, "power1") {
		updated = append(updated, "power")
	}
	if hasProperty(in.UpdatedProperties, "energy1") {
		updated = append(updated, "energy")
	}
	return Patch{Fields: out, UpdatedProperties: updated}, true
}

func rgbwChannelLetter(channel int) string {
	switch channel {
	case 1:
		return "r"
	case 2:
		return "g"
	case 3:
		return "b"
	default:
		return "w"
	}
}

// mangleRGBWLight implements the domo_rgbw_light rule: copy rgbw_status
// wholesale into {r,g,b,w}.
func mangleRGBWLight(in Input) (Patch, bool) {
	obj, err := in.ActuatorValue.Object()
	if err != nil {
		return Patch{}, false
	}
	rgbwStatus, ok := obj["rgbw_status"]
	if !ok {
		return Patch{}, false
	}
	rgbwObj, err := rgbwStatus.Object()
	if err != nil {
		return Patch{}, false
	}

	out := make(map[string]cachevalue.Value, 4)
	for _, letter := range []string{"r", "g", "b", "w"} {
		if v, ok := rgbwObj[letter]; ok {
			out[letter] = v
		}
	}
	return Patch{Fields: out, UpdatedProperties: []string{"r", "g", "b", "w"}}, true
}

// mangleOutputWithEnergy implements the domo_light/domo_siren/domo_switch
// rule: status always mirrors output{N}; power/energy only accumulate for
// actuators that meter (anything but shelly_1/shelly_1plus).
// updated_properties is always the filter of the actuator's own
// updated_properties down to {power,energy}, independent of which branch
// ran above — a relay-only actuator that reports power{N}/energy{N} changed
// still advertises them as updated, it simply never carried metering fields
// to copy.
func mangleOutputWithEnergy(in Input) (Patch, bool) {
	obj, err := in.ActuatorValue.Object()
	if err != nil {
		return Patch{}, false
	}
	status, ok := obj[channelField("output", in.Channel)]
	if !ok {
		return Patch{}, false
	}

	out := fields("status", status)
	if !relayOnlyTargets[in.TargetKind] {
		power, _ := obj[channelField("power", in.Channel)].Float64()
		energyDelta, _ := obj[channelField("energy", in.Channel)].Float64()
		out["power"] = cachevalue.FromFloat64(power)
		out["energy"] = cachevalue.FromFloat64(in.OldEnergy + energyDelta)
	}

	updated := make([]string, 0, 2)
	if hasProperty(in.UpdatedProperties, channelField("power", in.Channel)) {
		updated = append(updated, "power")
	}
	if hasProperty(in.UpdatedProperties, channelField("energy", in.Channel)) {
		updated = append(updated, "energy")
	}

	return Patch{Fields: out, UpdatedProperties: updated}, true
}

// mangleFloorValve implements the domo_floor_valve rule.
func mangleFloorValve(in Input) (Patch, bool) {
	obj, err := in.ActuatorValue.Object()
	if err != nil {
		return Patch{}, false
	}
	status, ok := obj[channelField("output", in.Channel)]
	if !ok {
		return Patch{}, false
	}
	return Patch{
		Fields:            fields("status", status),
		UpdatedProperties: []string{"status"},
	}, true
}

// mangleShutter implements the domo_roller_shutter/domo_garage_gate rule.
func mangleShutter(in Input) (Patch, bool) {
	obj, err := in.ActuatorValue.Object()
	if err != nil {
		return Patch{}, false
	}
	shutterStatus, ok := obj["shutter_status"]
	if !ok {
		return Patch{}, false
	}
	return Patch{
		Fields:            fields("shutter_status", shutterStatus),
		UpdatedProperties: []string{"shutter_status"},
	}, true
}

// mangleInputOnChange implements the pir/radar/button/bistable_button rule:
// emit only when the corresponding input{N} field actually changed.
func mangleInputOnChange(in Input) (Patch, bool) {
	inputField := channelField("input", in.Channel)
	if !hasProperty(in.UpdatedProperties, inputField) {
		return Patch{}, false
	}
	obj, err := in.ActuatorValue.Object()
	if err != nil {
		return Patch{}, false
	}
	status, ok := obj[inputField]
	if !ok {
		return Patch{}, false
	}
	return Patch{
		Fields:            fields("status", status),
		UpdatedProperties: []string{"status"},
	}, true
}

// mangleContactSensor implements the domo_window_sensor/domo_door_sensor
// rule: a BLE-originated contact target passes its status field straight
// through, a physical shelly-input-wired sensor reads input{N}.
func mangleContactSensor(in Input) (Patch, bool) {
	obj, err := in.ActuatorValue.Object()
	if err != nil {
		return Patch{}, false
	}

	if in.TargetKind == "domo_ble_contact" {
		status, ok := obj["status"]
		if !ok {
			return Patch{}, false
		}
		return Patch{
			Fields:            fields("status", status),
			UpdatedProperties: []string{"status"},
		}, true
	}

	status, ok := obj[channelField("input", in.Channel)]
	if !ok {
		return Patch{}, false
	}
	return Patch{
		Fields:            fields("status", status),
		UpdatedProperties: []string{"status"},
	}, true
}
