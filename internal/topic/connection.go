package topic

import (
	"fmt"

	"github.com/grayhome/domo-bridge/internal/cachevalue"
)

// DecodeActuatorConnection reads a domo_actuator_connection topic's value
// into its typed shape (spec §3's binding record).
func DecodeActuatorConnection(value cachevalue.Value) (ActuatorConnection, error) {
	obj, err := value.Object()
	if err != nil {
		return ActuatorConnection{}, fmt.Errorf("actuator_connection value must be an object: %w", err)
	}

	conn := ActuatorConnection{}

	if v, ok := obj["source_topic_name"]; ok {
		s, err := v.String()
		if err != nil {
			return ActuatorConnection{}, fmt.Errorf("source_topic_name: %w", err)
		}
		conn.SourceTopicName = Name(s)
	}
	if v, ok := obj["source_topic_uuid"]; ok {
		s, err := v.String()
		if err == nil {
			conn.SourceTopicUUID = s
		}
	}
	if v, ok := obj["target_topic_name"]; ok {
		s, err := v.String()
		if err != nil {
			return ActuatorConnection{}, fmt.Errorf("target_topic_name: %w", err)
		}
		conn.TargetTopicName = Name(s)
	}
	if v, ok := obj["target_topic_uuid"]; ok {
		s, err := v.String()
		if err != nil {
			return ActuatorConnection{}, fmt.Errorf("target_topic_uuid: %w", err)
		}
		conn.TargetTopicUUID = s
	}
	if v, ok := obj["target_channel_number"]; ok {
		n, err := v.Float64()
		if err != nil {
			return ActuatorConnection{}, fmt.Errorf("target_channel_number: %w", err)
		}
		conn.TargetChannelNum = int(n)
	}

	return conn, nil
}
