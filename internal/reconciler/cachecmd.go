package reconciler

import (
	"context"
	"fmt"

	"github.com/grayhome/domo-bridge/internal/cache"
	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/command"
)

// handleCacheEvent dispatches one event from the cache facade's
// subscription stream (E8). Only VolatileData carries commands; the other
// kinds are handled elsewhere (persistent writes are this bridge's own, and
// Discovered/Removed are for other consumers — the bridge learns new
// actuators through mDNS, not cache broadcast).
func (r *Reconciler) handleCacheEvent(ctx context.Context, evt cache.Event) {
	if evt.Kind != cache.EventVolatileData || evt.Command == nil {
		return
	}
	if err := r.handleCacheCommand(ctx, *evt.Command); err != nil {
		r.log.Warn("handle_cache_command failed", "error", err, "type", evt.Command.Type)
	}
}

// handleCacheCommand implements handle_cache_command(cmd) (spec §4.7).
func (r *Reconciler) handleCacheCommand(ctx context.Context, cmd cache.Command) error {
	switch cmd.Type {
	case cache.CommandShellyActuator:
		return r.dispatchShellyActuatorCommand(cmd.Value)
	case cache.CommandRadiatorValve:
		return r.dispatchRadiatorValveCommand(cmd.Value)
	case cache.CommandTurn:
		return r.dispatchLogical(ctx, cmd.Value, func(uuid string, obj map[string]cachevalue.Value) error {
			value, _ := obj["value"].Bool()
			action, err := r.cmdParser.ParseTurn(ctx, uuid, value)
			if err != nil {
				return err
			}
			return r.sendShellyAction(action)
		})
	case cache.CommandDim:
		return r.dispatchLogical(ctx, cmd.Value, func(uuid string, obj map[string]cachevalue.Value) error {
			value, _ := obj["value"].Float64()
			action, err := r.cmdParser.ParseDim(ctx, uuid, value)
			if err != nil {
				return err
			}
			return r.sendShellyAction(action)
		})
	case cache.CommandRGBW:
		return r.dispatchLogical(ctx, cmd.Value, func(uuid string, obj map[string]cachevalue.Value) error {
			rv := command.RGBWValue{}
			rv.R, _ = obj["r"].Float64()
			rv.G, _ = obj["g"].Float64()
			rv.B, _ = obj["b"].Float64()
			rv.W, _ = obj["w"].Float64()
			action, err := r.cmdParser.ParseRGBW(ctx, uuid, rv)
			if err != nil {
				return err
			}
			return r.sendShellyAction(action)
		})
	case cache.CommandShutter:
		return r.dispatchLogical(ctx, cmd.Value, func(uuid string, obj map[string]cachevalue.Value) error {
			n, _ := obj["command"].Float64()
			action, err := r.cmdParser.ParseShutter(ctx, uuid, command.ShutterCommand(int(n)))
			if err != nil {
				return err
			}
			return r.sendShellyAction(action)
		})
	case cache.CommandValve:
		return r.dispatchLogical(ctx, cmd.Value, func(uuid string, obj map[string]cachevalue.Value) error {
			value, _ := obj["value"].Bool()
			vc, err := r.cmdParser.ParseValve(ctx, uuid, value)
			if err != nil {
				return err
			}
			r.valveMgr.Insert(vc.MAC, vc.Value)
			return nil
		})
	default:
		return fmt.Errorf("unrecognised command_type %q", cmd.Type)
	}
}

func (r *Reconciler) dispatchLogical(ctx context.Context, value cachevalue.Value, fn func(sourceTopicUUID string, obj map[string]cachevalue.Value) error) error {
	obj, err := value.Object()
	if err != nil {
		return fmt.Errorf("command value must be an object: %w", err)
	}
	uuid, err := obj["topic_uuid"].String()
	if err != nil {
		return fmt.Errorf("command missing topic_uuid: %w", err)
	}
	return fn(uuid, obj)
}

func (r *Reconciler) dispatchShellyActuatorCommand(value cachevalue.Value) error {
	obj, err := value.Object()
	if err != nil {
		return fmt.Errorf("shelly_actuator_command value must be an object: %w", err)
	}
	mac, err := obj["mac_address"].String()
	if err != nil {
		return fmt.Errorf("shelly_actuator_command missing mac_address: %w", err)
	}
	payload, ok := obj["payload"]
	if !ok {
		return fmt.Errorf("shelly_actuator_command missing payload")
	}
	return r.sendShellyAction(command.ShellyAction{MAC: mac, Payload: payload})
}

func (r *Reconciler) dispatchRadiatorValveCommand(value cachevalue.Value) error {
	obj, err := value.Object()
	if err != nil {
		return fmt.Errorf("radiator_valve_command value must be an object: %w", err)
	}
	mac, err := obj["valve_mac"].String()
	if err != nil {
		return fmt.Errorf("radiator_valve_command missing valve_mac: %w", err)
	}
	desired, _ := obj["value"].Bool()
	r.valveMgr.Insert(mac, desired)
	return nil
}

// sendShellyAction forwards a resolved action to whichever transport(s) the
// target MAC is currently reachable through: its gen-1 session if one is
// connected, and additionally the gen-2 command channel if the MAC has
// authenticated as gen-2-plus (spec §4.7).
func (r *Reconciler) sendShellyAction(action command.ShellyAction) error {
	var sentAny bool
	if sess, ok := r.gen1Sessions[action.MAC]; ok {
		if err := sess.SendAction(action.Payload); err != nil {
			r.log.Warn("gen1 send_action failed", "error", err, "mac", action.MAC)
		} else {
			sentAny = true
		}
	}
	if r.gen2Plus[action.MAC] {
		if err := r.gen2.SendAction(action.MAC, action.Payload); err != nil {
			r.log.Warn("gen2 send_action failed", "error", err, "mac", action.MAC)
		} else {
			sentAny = true
		}
	}
	if !sentAny {
		return fmt.Errorf("no reachable session for mac %s", action.MAC)
	}
	return nil
}
