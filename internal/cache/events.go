package cache

import (
	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/topic"
)

// EventKind distinguishes the four event shapes the facade's subscription
// stream can deliver (spec §4.3).
type EventKind int

const (
	EventPersistentData EventKind = iota
	EventVolatileData
	EventDiscovered
	EventRemoved
)

// CommandType enumerates the command_type values a VolatileData event can
// carry (spec §6).
type CommandType string

const (
	CommandShellyActuator  CommandType = "shelly_actuator_command"
	CommandRadiatorValve   CommandType = "radiator_valve_command"
	CommandTurn            CommandType = "turn_command"
	CommandDim             CommandType = "dim_command"
	CommandRGBW            CommandType = "rgbw_command"
	CommandShutter         CommandType = "shutter_command"
	CommandValve           CommandType = "valve_command"
)

// Command is the decoded payload of a VolatileData event.
type Command struct {
	Type  CommandType
	Value cachevalue.Value
}

// Event is one item from the facade's subscription stream.
type Event struct {
	Kind    EventKind
	Topic   topic.Topic
	Command *Command
}

// wireEvent is the JSON envelope published on the shared topics channel.
type wireEvent struct {
	Kind     EventKind  `json:"kind"`
	Name     topic.Name `json:"name"`
	UUID     string     `json:"uuid"`
	QueuedAt int64      `json:"queued_at_ms"`
}

func topicFromWireEvent(w wireEvent) topic.Topic {
	return topic.Topic{Name: w.Name, UUID: w.UUID}
}

func decodeCachevalueJSON(raw []byte) (cachevalue.Value, error) {
	if len(raw) == 0 {
		return cachevalue.Value{}, nil
	}
	return cachevalue.Parse(raw)
}
