package reconciler

import (
	"context"
	"fmt"

	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/topic"
)

// credentialResolver implements gen2.CredentialResolver against the cache,
// per spec §4.4: resolve (user,password) against topics of kinds
// {shelly_1plus, shelly_1pm_plus, shelly_2pm_plus} whose
// value.user_login/user_password match, then extract mac_address. A
// successful resolution is reported on authCh so the reconciler's own
// event loop (not this HTTP-handler goroutine) records the MAC as
// gen-2-plus, keeping that state mutation single-threaded.
type credentialResolver struct {
	cache  CacheFacade
	authCh chan<- string
}

var gen2PlusKinds = []topic.Name{
	topic.NameShelly1Plus,
	topic.NameShelly1PMPlus,
	topic.NameShelly2PMPlus,
}

func (c *credentialResolver) ResolveCredentials(ctx context.Context, user, password string) (string, bool, error) {
	for _, kind := range gen2PlusKinds {
		topics, err := c.cache.GetTopicName(ctx, kind)
		if err != nil {
			return "", false, err
		}
		for _, t := range topics {
			obj, err := t.Value.Object()
			if err != nil {
				continue
			}
			login, _ := obj["user_login"].String()
			pass, _ := obj["user_password"].String()
			if login == user && pass == password {
				mac, _ := obj["mac_address"].String()
				canonicalMAC, err := topic.CanonicalizeMAC(mac)
				if err != nil {
					canonicalMAC = t.UUID
				}
				select {
				case c.authCh <- canonicalMAC:
				default:
				}
				return canonicalMAC, true, nil
			}
		}
	}
	return "", false, nil
}

// ResolveConnection implements command.ConnectionResolver: looks up the
// domo_actuator_connection topic whose source_topic_uuid matches.
func (r *Reconciler) ResolveConnection(ctx context.Context, sourceTopicUUID string) (topic.ActuatorConnection, error) {
	conns, err := r.cache.GetTopicName(ctx, topic.NameActuatorConnection)
	if err != nil {
		return topic.ActuatorConnection{}, err
	}
	for _, t := range conns {
		conn, err := topic.DecodeActuatorConnection(t.Value)
		if err != nil {
			continue
		}
		if conn.SourceTopicUUID == sourceTopicUUID {
			return conn, nil
		}
	}
	return topic.ActuatorConnection{}, fmt.Errorf("no actuator_connection binds source %q", sourceTopicUUID)
}

// LookupActuatorMAC implements command.ConnectionResolver: an actuator
// topic's uuid already is its canonical MAC.
func (r *Reconciler) LookupActuatorMAC(ctx context.Context, targetName topic.Name, targetUUID string) (string, error) {
	if _, err := r.cache.GetTopicUUID(ctx, targetName, targetUUID); err != nil {
		return "", err
	}
	return targetUUID, nil
}

// DispatchValveCommand implements valve.Dispatcher: radiator valves are
// physically wired through a gen-2-plus proxy actuator (spec §4.7).
func (r *Reconciler) DispatchValveCommand(proxyMAC, valveMAC string, desiredState bool) {
	payload := cachevalue.FromObject(map[string]cachevalue.Value{
		"control_radiator_valve": cachevalue.FromObject(map[string]cachevalue.Value{
			"mac_address": cachevalue.FromString(valveMAC),
			"value":       cachevalue.FromBool(desiredState),
		}),
	})
	if err := r.gen2.SendAction(proxyMAC, payload); err != nil {
		r.log.Warn("dispatching radiator valve command failed", "error", err, "proxy", proxyMAC, "valve", valveMAC)
		return
	}
	if r.metrics != nil {
		r.metrics.IncValveRetry()
	}
}

// cachedValveStatus adapts the cache's domo_ble_valve topic lookup into the
// valve.CachedStatus closure Reconcile needs.
func (r *Reconciler) cachedValveStatus(ctx context.Context) func(valveMAC string) (bool, bool) {
	return func(valveMAC string) (bool, bool) {
		t, err := r.cache.GetTopicUUID(ctx, topic.NameDomoBLEValve, valveMAC)
		if err != nil {
			return false, false
		}
		obj, err := t.Value.Object()
		if err != nil {
			return false, false
		}
		status, err := obj["status"].Bool()
		if err != nil {
			return false, false
		}
		return status, true
	}
}
