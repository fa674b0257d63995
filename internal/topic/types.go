// Package topic defines the bridge's core data model: the typed records the
// cache stores, keyed by (topic_name, topic_uuid), and the in-memory state
// the reconciler owns for each connected device session and radiator valve.
package topic

import (
	"time"

	"github.com/grayhome/domo-bridge/internal/cachevalue"
)

// Name identifies a class of topic, e.g. "shelly_1pm", "domo_light",
// "domo_actuator_connection".
type Name string

// Well-known topic names the reconciler and mangler reason about directly.
const (
	NameActuatorConnection Name = "domo_actuator_connection"

	NameShelly1        Name = "shelly_1"
	NameShelly1Plus    Name = "shelly_1plus"
	NameShelly1PM      Name = "shelly_1pm"
	NameShelly1PMPlus  Name = "shelly_1pm_plus"
	NameShelly2PMPlus  Name = "shelly_2pm_plus"
	NameShelly25       Name = "shelly_25"
	NameShellyEM       Name = "shelly_em"
	NameShellyDimmer   Name = "shelly_dimmer"
	NameShellyRGBW     Name = "shelly_rgbw"

	NameDomoLight          Name = "domo_light"
	NameDomoLightDimmable  Name = "domo_light_dimmable"
	NameDomoRGBWLight      Name = "domo_rgbw_light"
	NameDomoSiren          Name = "domo_siren"
	NameDomoSwitch         Name = "domo_switch"
	NameDomoFloorValve     Name = "domo_floor_valve"
	NameDomoRollerShutter  Name = "domo_roller_shutter"
	NameDomoGarageGate     Name = "domo_garage_gate"
	NameDomoPIRSensor      Name = "domo_pir_sensor"
	NameDomoRadarSensor    Name = "domo_radar_sensor"
	NameDomoButton         Name = "domo_button"
	NameDomoBistableButton Name = "domo_bistable_button"
	NameDomoWindowSensor   Name = "domo_window_sensor"
	NameDomoDoorSensor     Name = "domo_door_sensor"
	NameDomoBLEContact     Name = "domo_ble_contact"
	NameDomoBLEThermometer Name = "domo_ble_thermometer"
	NameDomoBLEValve       Name = "domo_ble_valve"
	NameDomoPowerEnergy    Name = "domo_power_energy_sensor"
)

// Topic is a single typed record addressed by (Name, UUID) and stored in the
// replicated cache.
type Topic struct {
	Name  Name
	UUID  string
	Value cachevalue.Value
}

// ActuatorConnection is the decoded shape of a domo_actuator_connection
// topic: a binding from a logical source topic to a physical actuator
// channel.
type ActuatorConnection struct {
	SourceTopicName   Name
	SourceTopicUUID   string
	TargetTopicName   Name
	TargetTopicUUID   string
	TargetChannelNum  int
}

// Kind enumerates the operating mode a G1/G2 actuator can be set to.
type Kind int

const (
	ModeRelay Kind = iota
	ModeShutter
	ModeDimmer
	ModeRGBW
	ModeLEDDimmer
)

// SessionGeneration distinguishes the two hardware generations of actuator
// session.
type SessionGeneration int

const (
	Gen1 SessionGeneration = iota
	Gen2
)

// DeviceSession describes a connected actuator, mirrored 1:1 with spec §3:
// created on successful connection, mutated only by its owning task,
// destroyed on close or mode-change.
type DeviceSession struct {
	MAC          string
	IP           string
	MDNSName     string
	Kind         Name
	Generation   SessionGeneration
	LastPongAt   time.Time
	LastActionAt time.Time
	User         string
	Password     string
}

// ValveDesired is one entry in the valve command retry queue.
type ValveDesired struct {
	DesiredValue bool
	Attempts     uint8
}

// MaxValveAttempts is the attempt cap after which a ValveQueue entry is
// dropped (I4.b).
const MaxValveAttempts = 100

// BestProxyEntry records the strongest-RSSI actuator currently observed
// forwarding a given valve's BLE beacons.
type BestProxyEntry struct {
	ActuatorMAC string
	RSSI        int8
	ObservedAt  time.Time
}

// BestProxyTTL is the staleness window after which a new observation always
// replaces the recorded one regardless of RSSI (I5).
const BestProxyTTL = 30 * time.Second
