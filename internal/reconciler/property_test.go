package reconciler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/grayhome/domo-bridge/internal/actuator"
	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/topic"
)

func TestMergeFieldsPreservesBaseAndAppliesOverrides(t *testing.T) {
	base := cachevalue.FromObject(map[string]cachevalue.Value{
		"user_login": cachevalue.FromString("admin"),
		"status":     cachevalue.FromBool(false),
	})
	overrides := map[string]cachevalue.Value{
		"status": cachevalue.FromBool(true),
	}

	merged := mergeFields(base, overrides)
	obj, err := merged.Object()
	if err != nil {
		t.Fatalf("merged value must be an object: %v", err)
	}
	if login, _ := obj["user_login"].String(); login != "admin" {
		t.Fatalf("expected base field user_login to be preserved, got %q", login)
	}
	status, _ := obj["status"].Bool()
	if !status {
		t.Fatalf("expected override to win for status")
	}
}

func TestMergeFieldsOnNonObjectBaseStartsEmpty(t *testing.T) {
	base := cachevalue.FromString("not an object")
	merged := mergeFields(base, map[string]cachevalue.Value{"a": cachevalue.FromFloat64(1)})
	obj, err := merged.Object()
	if err != nil {
		t.Fatalf("merged value must be an object: %v", err)
	}
	if len(obj) != 1 {
		t.Fatalf("expected only the override field, got %v", obj)
	}
}

func TestHandlePropertyStatusCarriesForwardPersistentFields(t *testing.T) {
	cache := newFakeCache()
	cache.put(topic.NameShelly1PM, "aa:bb:cc:dd:ee:ff", cachevalue.FromObject(map[string]cachevalue.Value{
		"user_login":    cachevalue.FromString("admin"),
		"user_password": cachevalue.FromString("secret"),
	}))
	r := newTestReconciler(cache, newFakeGen2())

	status := cachevalue.FromObject(map[string]cachevalue.Value{
		"mac_address":        cachevalue.FromString("aabbccddeeff"),
		"topic_name":         cachevalue.FromString("shelly_1pm"),
		"updated_properties": arrayOf("output0"),
	})

	msg := actuator.PropertyStatus{SessionMAC: "aa:bb:cc:dd:ee:ff", Status: status}
	if err := r.handlePropertyStatus(context.Background(), msg); err != nil {
		t.Fatalf("handlePropertyStatus failed: %v", err)
	}

	written, err := cache.GetTopicUUID(context.Background(), topic.NameShelly1PM, "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("expected the actuator topic to be written: %v", err)
	}
	obj, _ := written.Value.Object()
	if login, _ := obj["user_login"].String(); login != "admin" {
		t.Fatalf("expected user_login to carry forward, got %q", login)
	}
	if _, ok := obj["last_update_timestamp"]; !ok {
		t.Fatalf("expected last_update_timestamp to be stamped")
	}
}

func TestHandlePropertyStatusRejectsMissingTopicName(t *testing.T) {
	r := newTestReconciler(newFakeCache(), newFakeGen2())
	status := cachevalue.FromObject(map[string]cachevalue.Value{
		"mac_address": cachevalue.FromString("aabbccddeeff"),
	})
	msg := actuator.PropertyStatus{SessionMAC: "aa:bb:cc:dd:ee:ff", Status: status}
	if err := r.handlePropertyStatus(context.Background(), msg); err == nil {
		t.Fatalf("expected an error for a propertyStatus missing topic_name")
	}
}

func TestFanOutConnectionsAppliesMangleAndWritesSourceTopic(t *testing.T) {
	// spec §8 wired scenario: domo_light/L1.value must end up carrying
	// updated_properties:["power","energy"] alongside the mangled status.
	cache := newFakeCache()
	cache.put(topic.NameActuatorConnection, "conn-1", cachevalue.FromObject(map[string]cachevalue.Value{
		"source_topic_name":     cachevalue.FromString(string(topic.NameDomoLight)),
		"source_topic_uuid":     cachevalue.FromString("light-1"),
		"target_topic_name":     cachevalue.FromString(string(topic.NameShelly1PM)),
		"target_topic_uuid":     cachevalue.FromString("aa:bb:cc:dd:ee:ff"),
		"target_channel_number": cachevalue.FromFloat64(0),
	}))
	r := newTestReconciler(cache, newFakeGen2())

	actuatorValue := cachevalue.FromObject(map[string]cachevalue.Value{
		"output0": cachevalue.FromBool(true),
		"power0":  cachevalue.FromFloat64(12.3),
		"energy0": cachevalue.FromFloat64(0.5),
	})
	updatedProps := []string{"output0", "power0", "energy0"}
	err := r.fanOutConnections(context.Background(), topic.NameShelly1PM, "aa:bb:cc:dd:ee:ff", actuatorValue, updatedProps)
	if err != nil {
		t.Fatalf("fanOutConnections failed: %v", err)
	}

	written, err := cache.GetTopicUUID(context.Background(), topic.NameDomoLight, "light-1")
	if err != nil {
		t.Fatalf("expected the source topic to be written: %v", err)
	}
	obj, _ := written.Value.Object()
	status, _ := obj["status"].Bool()
	if !status {
		t.Fatalf("expected mangled status=true on the fanned-out source topic")
	}

	updatedArr, err := obj["updated_properties"].Array()
	if err != nil {
		t.Fatalf("expected updated_properties to be an array: %v", err)
	}
	if len(updatedArr) != 2 {
		t.Fatalf("updated_properties = %v, want exactly [power,energy]", updatedArr)
	}
	first, _ := updatedArr[0].String()
	second, _ := updatedArr[1].String()
	if first != "power" || second != "energy" {
		t.Fatalf("updated_properties = [%q,%q], want [power,energy]", first, second)
	}
}

func arrayOf(items ...string) cachevalue.Value {
	raw, err := json.Marshal(items)
	if err != nil {
		panic(err)
	}
	v, err := cachevalue.Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}
