// Package command implements the logical command parser (C8): it resolves
// a UI-facing command (turn, shutter, dim, rgbw, valve) through the
// domo_actuator_connection binding for its source topic and synthesizes the
// shelly_action (or radiator valve command) that actually drives the wire.
package command

import (
	"context"
	"fmt"

	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/topic"
)

// ConnectionResolver is the subset of the cache facade the parser needs:
// looking up a source topic's actuator_connection binding, and reading the
// bound actuator's MAC address. Injected rather than imported directly so
// this package stays testable without a Redis-backed cache.
type ConnectionResolver interface {
	ResolveConnection(ctx context.Context, sourceTopicUUID string) (topic.ActuatorConnection, error)
	LookupActuatorMAC(ctx context.Context, targetName topic.Name, targetUUID string) (string, error)
}

// ShellyAction is a fully-resolved actuator command ready for send_action:
// the target actuator's MAC and the action payload to wrap as
// {messageType:"requestAction", data:{shelly_action:<payload>}}.
type ShellyAction struct {
	MAC     string
	Payload cachevalue.Value
}

// ValveCommand is a fully-resolved radiator-valve command, routed through
// the valve queue (C6) rather than sent directly.
type ValveCommand struct {
	MAC   string
	Value bool
}

// Parser resolves logical commands into wire-ready actions.
type Parser struct {
	resolver ConnectionResolver
}

// New constructs a Parser over the given connection resolver.
func New(resolver ConnectionResolver) *Parser {
	return &Parser{resolver: resolver}
}

func (p *Parser) resolve(ctx context.Context, sourceTopicUUID string) (topic.ActuatorConnection, string, error) {
	conn, err := p.resolver.ResolveConnection(ctx, sourceTopicUUID)
	if err != nil {
		return topic.ActuatorConnection{}, "", fmt.Errorf("%w: resolving connection for %q: %v", ErrBadCommand, sourceTopicUUID, err)
	}
	mac, err := p.resolver.LookupActuatorMAC(ctx, conn.TargetTopicName, conn.TargetTopicUUID)
	if err != nil {
		return topic.ActuatorConnection{}, "", fmt.Errorf("%w: resolving actuator mac for %q: %v", ErrBadCommand, sourceTopicUUID, err)
	}
	return conn, mac, nil
}

// ParseTurn resolves a "turn" command to set_output.
func (p *Parser) ParseTurn(ctx context.Context, sourceTopicUUID string, value bool) (ShellyAction, error) {
	conn, mac, err := p.resolve(ctx, sourceTopicUUID)
	if err != nil {
		return ShellyAction{}, err
	}
	return ShellyAction{
		MAC: mac,
		Payload: cachevalue.FromObject(map[string]cachevalue.Value{
			"set_output": cachevalue.FromObject(map[string]cachevalue.Value{
				"output_number": cachevalue.FromFloat64(float64(conn.TargetChannelNum)),
				"value":         cachevalue.FromBool(value),
			}),
		}),
	}, nil
}

// ShutterCommand enumerates the three directions set_shutter accepts.
type ShutterCommand int

const (
	ShutterUp ShutterCommand = iota
	ShutterDown
	ShutterStop
)

// ParseShutter resolves a "shutter" command to set_shutter.
func (p *Parser) ParseShutter(ctx context.Context, sourceTopicUUID string, cmd ShutterCommand) (ShellyAction, error) {
	if cmd != ShutterUp && cmd != ShutterDown && cmd != ShutterStop {
		return ShellyAction{}, fmt.Errorf("%w: shutter command %d out of range", ErrBadCommand, cmd)
	}
	_, mac, err := p.resolve(ctx, sourceTopicUUID)
	if err != nil {
		return ShellyAction{}, err
	}
	return ShellyAction{
		MAC: mac,
		Payload: cachevalue.FromObject(map[string]cachevalue.Value{
			"set_shutter": cachevalue.FromObject(map[string]cachevalue.Value{
				"shutter_command": cachevalue.FromFloat64(float64(cmd)),
			}),
		}),
	}, nil
}

// ParseDim resolves a "dim" command: set_dimmer for shelly_dimmer targets,
// set_led_dimmer (channel from the connection's target channel number) for
// shelly_rgbw targets.
func (p *Parser) ParseDim(ctx context.Context, sourceTopicUUID string, dimValue float64) (ShellyAction, error) {
	conn, mac, err := p.resolve(ctx, sourceTopicUUID)
	if err != nil {
		return ShellyAction{}, err
	}

	switch conn.TargetTopicName {
	case topic.NameShellyDimmer:
		return ShellyAction{
			MAC: mac,
			Payload: cachevalue.FromObject(map[string]cachevalue.Value{
				"set_dimmer": cachevalue.FromObject(map[string]cachevalue.Value{
					"dim_value": cachevalue.FromFloat64(dimValue),
				}),
			}),
		}, nil
	case topic.NameShellyRGBW:
		letter := rgbwChannelLetter(conn.TargetChannelNum)
		return ShellyAction{
			MAC: mac,
			Payload: cachevalue.FromObject(map[string]cachevalue.Value{
				"set_led_dimmer": cachevalue.FromObject(map[string]cachevalue.Value{
					"led_dimmer_status": cachevalue.FromObject(map[string]cachevalue.Value{
						"channel": cachevalue.FromString(letter),
						"value":   cachevalue.FromFloat64(dimValue),
					}),
				}),
			}),
		}, nil
	default:
		return ShellyAction{}, fmt.Errorf("%w: dim not supported for target kind %q", ErrBadCommand, conn.TargetTopicName)
	}
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

// RGBWValue is the four-channel color value a "rgbw" command carries.
type RGBWValue struct {
	R, G, B, W float64
}

// ParseRGBW resolves an "rgbw" command to set_rgbw.
func (p *Parser) ParseRGBW(ctx context.Context, sourceTopicUUID string, value RGBWValue) (ShellyAction, error) {
	_, mac, err := p.resolve(ctx, sourceTopicUUID)
	if err != nil {
		return ShellyAction{}, err
	}
	return ShellyAction{
		MAC: mac,
		Payload: cachevalue.FromObject(map[string]cachevalue.Value{
			"set_rgbw": cachevalue.FromObject(map[string]cachevalue.Value{
				"rgbw_status": cachevalue.FromObject(map[string]cachevalue.Value{
					"r": cachevalue.FromFloat64(value.R),
					"g": cachevalue.FromFloat64(value.G),
					"b": cachevalue.FromFloat64(value.B),
					"w": cachevalue.FromFloat64(value.W),
				}),
			}),
		}),
	}, nil
}

// ParseValve resolves a "valve" command to control_radiator_valve, routed
// through the valve queue rather than sent directly.
func (p *Parser) ParseValve(ctx context.Context, sourceTopicUUID string, value bool) (ValveCommand, error) {
	_, mac, err := p.resolve(ctx, sourceTopicUUID)
	if err != nil {
		return ValveCommand{}, err
	}
	return ValveCommand{MAC: mac, Value: value}, nil
}
