package reconciler

import (
	"context"

	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/topic"
)

// relayOnlyKinds always want ModeRelay regardless of wiring.
var relayOnlyKinds = map[topic.Name]bool{
	topic.NameShelly1:       true,
	topic.NameShelly1Plus:   true,
	topic.NameShelly1PM:     true,
	topic.NameShellyEM:      true,
	topic.NameShelly1PMPlus: true,
}

// shutterSourceKinds are the logical kinds whose binding flips a
// shelly_25/shelly_2pm_plus actuator into ModeShutter.
var shutterSourceKinds = map[topic.Name]bool{
	topic.NameDomoRollerShutter: true,
	topic.NameDomoGarageGate:    true,
}

// desiredMode computes desired_mode for one actuator per spec §4.7's mode
// table, given every domo_actuator_connection whose target is this
// actuator.
func desiredMode(kind topic.Name, bindings []topic.ActuatorConnection) (topic.Kind, bool) {
	switch {
	case relayOnlyKinds[kind]:
		return topic.ModeRelay, true
	case kind == topic.NameShellyDimmer:
		return topic.ModeDimmer, true
	case kind == topic.NameShelly25 || kind == topic.NameShelly2PMPlus:
		for _, b := range bindings {
			if shutterSourceKinds[b.SourceTopicName] {
				return topic.ModeShutter, true
			}
		}
		return topic.ModeRelay, true
	case kind == topic.NameShellyRGBW:
		for _, b := range bindings {
			if b.SourceTopicName == topic.NameDomoRGBWLight {
				return topic.ModeRGBW, true
			}
		}
		return topic.ModeLEDDimmer, true
	default:
		return 0, false
	}
}

// handleModeCheckTick implements the E7 mode-reconciliation tick: for every
// known actuator, compute desired_mode and send change_mode if the cached
// mode differs. G1 sessions are additionally dropped after the send, since
// the device reboots into the new mode and will be rediscovered.
func (r *Reconciler) handleModeCheckTick(ctx context.Context) {
	conns, err := r.cache.GetTopicName(ctx, topic.NameActuatorConnection)
	if err != nil {
		r.log.Warn("listing actuator_connections for mode check failed", "error", err)
		return
	}

	bindingsByTarget := make(map[string][]topic.ActuatorConnection)
	for _, t := range conns {
		conn, err := topic.DecodeActuatorConnection(t.Value)
		if err != nil {
			continue
		}
		key := string(conn.TargetTopicName) + "/" + conn.TargetTopicUUID
		bindingsByTarget[key] = append(bindingsByTarget[key], conn)
	}

	for kind := range modeAwareKinds {
		actuators, err := r.cache.GetTopicName(ctx, kind)
		if err != nil {
			r.log.Warn("listing actuators for mode check failed", "error", err, "kind", kind)
			continue
		}
		for _, t := range actuators {
			want, ok := desiredMode(kind, bindingsByTarget[string(kind)+"/"+t.UUID])
			if !ok {
				continue
			}
			r.reconcileActuatorMode(ctx, kind, t, want)
		}
	}
}

var modeAwareKinds = map[topic.Name]bool{
	topic.NameShelly1:       true,
	topic.NameShelly1Plus:   true,
	topic.NameShelly1PM:     true,
	topic.NameShellyEM:      true,
	topic.NameShelly1PMPlus: true,
	topic.NameShellyDimmer:  true,
	topic.NameShelly25:      true,
	topic.NameShelly2PMPlus: true,
	topic.NameShellyRGBW:    true,
}

func (r *Reconciler) reconcileActuatorMode(ctx context.Context, kind topic.Name, t topic.Topic, want topic.Kind) {
	obj, err := t.Value.Object()
	if err != nil {
		return
	}
	current, err := obj["mode"].Float64()
	if err == nil && topic.Kind(int(current)) == want {
		return
	}
	inverted, _ := obj["inverted"].Bool()

	payload := cachevalue.FromObject(map[string]cachevalue.Value{
		"change_mode": cachevalue.FromObject(map[string]cachevalue.Value{
			"mode":     cachevalue.FromFloat64(float64(want)),
			"inverted": cachevalue.FromBool(inverted),
		}),
	})

	if sess, ok := r.gen1Sessions[t.UUID]; ok {
		if err := sess.SendAction(payload); err != nil {
			r.log.Warn("sending change_mode to gen1 session failed", "error", err, "mac", t.UUID)
			return
		}
		sess.Close()
		delete(r.gen1Sessions, t.UUID)
		r.reportSessionCounts()
		if r.metrics != nil {
			r.metrics.IncModeCorrection()
		}
		return
	}
	if r.gen2Plus[t.UUID] {
		if err := r.gen2.SendAction(t.UUID, payload); err != nil {
			r.log.Warn("sending change_mode to gen2 session failed", "error", err, "mac", t.UUID)
			return
		}
		if r.metrics != nil {
			r.metrics.IncModeCorrection()
		}
	}
}

// handleKeepaliveTick implements E6: ping all gen-1 sessions (their own
// write pumps already carry the periodic ping; here the reconciler only
// owns the gen-2 broadcast and drops any session past its pong deadline,
// which readPump/writePump already detect via read/write deadlines and
// report through closedCh — so this tick's own responsibility is just the
// gen-2 broadcast "Ping" application command spec §4.7 calls out
// separately from the transport-level WebSocket ping.
func (r *Reconciler) handleKeepaliveTick() {
	r.gen2.BroadcastPing()
}
