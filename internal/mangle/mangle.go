// Package mangle implements the topic-mangler (C2): a pure, side-effect-free
// projection from actuator telemetry onto the logical "source" topic fields
// UIs and automations read. SPEC_FULL.md §4.2 is the authoritative table;
// this package (rules.go) is its direct implementation, organised the way the teacher's
// internal/bridges/knx/functions.go organises its own canonical-name table —
// one dispatch entry per recognised kind, closed over unknown kinds.
package mangle

import (
	"strconv"

	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/topic"
)

// Input is everything a mangle rule needs: the fresh actuator (target) value
// that just landed, the channel number the source binds to, the old energy
// reading from the source topic (for monotone accumulation), and the set of
// fields the actuator telemetry reported as changed this tick.
type Input struct {
	SourceKind        topic.Name
	TargetKind        topic.Name
	Channel           int
	ActuatorValue     cachevalue.Value
	OldEnergy         float64
	UpdatedProperties []string
}

// Patch is the projection to write onto the source topic. Whether this tick
// produces a write at all is reported by Mangle's bool result.
type Patch struct {
	Fields            map[string]cachevalue.Value
	UpdatedProperties []string
}

type ruleFunc func(in Input) (Patch, bool)

var rules = map[topic.Name]ruleFunc{
	topic.NameDomoPowerEnergy:    manglePowerEnergy,
	topic.NameDomoLightDimmable:  mangleLightDimmable,
	topic.NameDomoRGBWLight:      mangleRGBWLight,
	topic.NameDomoLight:          mangleOutputWithEnergy,
	topic.NameDomoSiren:          mangleOutputWithEnergy,
	topic.NameDomoSwitch:         mangleOutputWithEnergy,
	topic.NameDomoFloorValve:     mangleFloorValve,
	topic.NameDomoRollerShutter:  mangleShutter,
	topic.NameDomoGarageGate:     mangleShutter,
	topic.NameDomoPIRSensor:      mangleInputOnChange,
	topic.NameDomoRadarSensor:    mangleInputOnChange,
	topic.NameDomoButton:         mangleInputOnChange,
	topic.NameDomoBistableButton: mangleInputOnChange,
	topic.NameDomoWindowSensor:   mangleContactSensor,
	topic.NameDomoDoorSensor:     mangleContactSensor,
}

// relayOnlyTargets are the target kinds that never accumulate power/energy
// onto domo_light/domo_siren/domo_switch sources (they have no metering).
var relayOnlyTargets = map[topic.Name]bool{
	topic.NameShelly1:     true,
	topic.NameShelly1Plus: true,
}

// Mangle runs the rule for in.SourceKind. Unknown source kinds are not in
// the table: for them Mangle returns an empty Patch and false, the same
// result as a rule that skips, and the reconciler's fan-out writes nothing
// to that source topic.
func Mangle(in Input) (Patch, bool) {
	rule, ok := rules[in.SourceKind]
	if !ok {
		return Patch{}, false
	}
	return rule(in)
}

func fields(kv ...interface{}) map[string]cachevalue.Value {
	out := make(map[string]cachevalue.Value, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := kv[i].(string)
		switch v := kv[i+1].(type) {
		case cachevalue.Value:
			out[key] = v
		case float64:
			out[key] = cachevalue.FromFloat64(v)
		case bool:
			out[key] = cachevalue.FromBool(v)
		case string:
			out[key] = cachevalue.FromString(v)
		}
	}
	return out
}

func hasProperty(props []string, name string) bool {
	for _, p := range props {
		if p == name {
			return true
		}
	}
	return false
}

func channelField(base string, channel int) string {
	return base + strconv.Itoa(channel)
}
