// Package actuator holds the message and wire-frame types shared by both
// hardware generations of actuator session (gen1 outbound client, gen2
// inbound server), plus the channel shapes the reconciler receives them on.
package actuator

import (
	"encoding/json"
	"fmt"

	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/topic"
)

// Frame is the {messageType, data} envelope both generations speak.
type Frame struct {
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data"`
}

const (
	MessageTypeRequestAction = "requestAction"
	MessageTypePropertyStatus = "propertyStatus"
)

// propertyStatusData is the data payload of a propertyStatus frame. status
// may be either a JSON object or a JSON string containing an encoded JSON
// object (double-encoded) — G1 and G2 both exhibit this (spec §6).
type propertyStatusData struct {
	Status json.RawMessage `json:"status"`
}

// PropertyStatus is a decoded propertyStatus frame, ready for
// handle_property_status.
type PropertyStatus struct {
	SessionMAC string
	Generation topic.SessionGeneration
	Status     cachevalue.Value
}

// ParsePropertyStatus decodes a propertyStatus frame's data field,
// transparently unwrapping the double-encoded case.
func ParsePropertyStatus(sessionMAC string, data json.RawMessage) (PropertyStatus, error) {
	var psd propertyStatusData
	if err := json.Unmarshal(data, &psd); err != nil {
		return PropertyStatus{}, fmt.Errorf("decoding propertyStatus data: %w", err)
	}

	raw := []byte(psd.Status)

	// Double-encoded: status is itself a JSON string containing JSON.
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		raw = []byte(asString)
	}

	value, err := cachevalue.Parse(raw)
	if err != nil {
		return PropertyStatus{}, fmt.Errorf("parsing propertyStatus.status: %w", err)
	}

	return PropertyStatus{SessionMAC: sessionMAC, Status: value}, nil
}

// EncodeRequestAction wraps an action payload as a requestAction frame,
// send_action's wire shape for both generations.
func EncodeRequestAction(payload cachevalue.Value) ([]byte, error) {
	payloadJSON, err := payload.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding shelly_action payload: %w", err)
	}
	data := fmt.Sprintf(`{"shelly_action":%s}`, payloadJSON)
	frame := struct {
		MessageType string          `json:"messageType"`
		Data        json.RawMessage `json:"data"`
	}{
		MessageType: MessageTypeRequestAction,
		Data:        json.RawMessage(data),
	}
	return json.Marshal(frame)
}

// SessionClosed signals the reconciler that a session's I/O loop ended,
// so the session table entry and any dependent state can be dropped.
type SessionClosed struct {
	MAC string
	Err error
}
