package reconciler

import (
	"context"
	"testing"

	"github.com/grayhome/domo-bridge/internal/cache"
	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/command"
	"github.com/grayhome/domo-bridge/internal/topic"
)

func TestDispatchShellyActuatorCommandSendsToGen1AndGen2(t *testing.T) {
	gen2 := newFakeGen2()
	r := newTestReconciler(newFakeCache(), gen2)
	sess := &fakeGen1Session{}
	r.gen1Sessions["aa:bb:cc:dd:ee:ff"] = sess
	r.gen2Plus["aa:bb:cc:dd:ee:ff"] = true

	value := cachevalue.FromObject(map[string]cachevalue.Value{
		"mac_address": cachevalue.FromString("aa:bb:cc:dd:ee:ff"),
		"payload":     cachevalue.FromObject(map[string]cachevalue.Value{"set_output": cachevalue.FromBool(true)}),
	})
	if err := r.dispatchShellyActuatorCommand(value); err != nil {
		t.Fatalf("dispatchShellyActuatorCommand failed: %v", err)
	}
	if len(sess.sent) != 1 {
		t.Fatalf("expected gen1 send, got %d", len(sess.sent))
	}
	if len(gen2.sent["aa:bb:cc:dd:ee:ff"]) != 1 {
		t.Fatalf("expected gen2 send, got %d", len(gen2.sent["aa:bb:cc:dd:ee:ff"]))
	}
}

func TestSendShellyActionErrorsWhenNoReachableSession(t *testing.T) {
	r := newTestReconciler(newFakeCache(), newFakeGen2())
	action := command.ShellyAction{MAC: "unreachable-mac", Payload: cachevalue.FromBool(true)}
	if err := r.sendShellyAction(action); err == nil {
		t.Fatalf("expected an error when neither transport is reachable")
	}
}

func TestDispatchRadiatorValveCommandQueuesInsert(t *testing.T) {
	r := newTestReconciler(newFakeCache(), newFakeGen2())
	value := cachevalue.FromObject(map[string]cachevalue.Value{
		"valve_mac": cachevalue.FromString("aa:bb:cc:dd:ee:ff"),
		"value":     cachevalue.FromBool(true),
	})
	if err := r.dispatchRadiatorValveCommand(value); err != nil {
		t.Fatalf("dispatchRadiatorValveCommand failed: %v", err)
	}
	// Reconcile should now attempt to dispatch once a best-proxy exists.
	r.valveMgr.UpdateBestActuator("aa:bb:cc:dd:ee:ff", "proxy-mac", -40)
	gen2 := r.gen2.(*fakeGen2Dispatcher)
	r.valveMgr.Reconcile(func(string) (bool, bool) { return false, false })
	if len(gen2.sent["proxy-mac"]) != 1 {
		t.Fatalf("expected the queued valve command to dispatch through the best proxy")
	}
}

func TestHandleCacheCommandUnknownTypeErrors(t *testing.T) {
	r := newTestReconciler(newFakeCache(), newFakeGen2())
	err := r.handleCacheCommand(context.Background(), cache.Command{Type: "bogus_command", Value: cachevalue.FromObject(nil)})
	if err == nil {
		t.Fatalf("expected an error for an unrecognised command_type")
	}
}

func TestDispatchLogicalRejectsMissingTopicUUID(t *testing.T) {
	r := newTestReconciler(newFakeCache(), newFakeGen2())
	err := r.dispatchLogical(context.Background(), cachevalue.FromObject(map[string]cachevalue.Value{}), func(string, map[string]cachevalue.Value) error {
		t.Fatalf("callback should not run without topic_uuid")
		return nil
	})
	if err == nil {
		t.Fatalf("expected an error for a command value missing topic_uuid")
	}
}

func TestHandleCacheCommandTurnResolvesAndSends(t *testing.T) {
	fc := newFakeCache()
	fc.put(topic.NameActuatorConnection, "conn-1", cachevalue.FromObject(map[string]cachevalue.Value{
		"source_topic_name":     cachevalue.FromString(string(topic.NameDomoLight)),
		"source_topic_uuid":     cachevalue.FromString("light-1"),
		"target_topic_name":     cachevalue.FromString(string(topic.NameShelly1)),
		"target_topic_uuid":     cachevalue.FromString("aa:bb:cc:dd:ee:ff"),
		"target_channel_number": cachevalue.FromFloat64(0),
	}))
	fc.put(topic.NameShelly1, "aa:bb:cc:dd:ee:ff", cachevalue.FromObject(nil))
	gen2 := newFakeGen2()
	r := newTestReconciler(fc, gen2)
	r.gen2Plus["aa:bb:cc:dd:ee:ff"] = true

	cmd := cache.Command{
		Type: cache.CommandTurn,
		Value: cachevalue.FromObject(map[string]cachevalue.Value{
			"topic_uuid": cachevalue.FromString("light-1"),
			"value":      cachevalue.FromBool(true),
		}),
	}
	if err := r.handleCacheCommand(context.Background(), cmd); err != nil {
		t.Fatalf("handleCacheCommand(turn) failed: %v", err)
	}
	if len(gen2.sent["aa:bb:cc:dd:ee:ff"]) != 1 {
		t.Fatalf("expected the resolved turn command to reach the gen2 actuator")
	}
}
