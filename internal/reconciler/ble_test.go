package reconciler

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/topic"
)

func TestHandleBLEIgnoresUnknownSensor(t *testing.T) {
	r := newTestReconciler(newFakeCache(), newFakeGen2())
	obj := map[string]cachevalue.Value{
		"beacon_adv": cachevalue.FromString("aabbccddeeff 00 -60"),
	}
	r.handleBLE(context.Background(), "proxymac", obj, []string{"beacon_adv"})
	if len(r.cache.(*fakeCacheFacade).writes) != 0 {
		t.Fatalf("expected no cache writes for an unknown sensor mac")
	}
}

func TestHandleBLEMalformedStringIsDropped(t *testing.T) {
	r := newTestReconciler(newFakeCache(), newFakeGen2())
	obj := map[string]cachevalue.Value{
		"beacon_adv": cachevalue.FromString("not-enough-fields"),
	}
	r.handleBLE(context.Background(), "proxymac", obj, []string{"beacon_adv"})
	if len(r.cache.(*fakeCacheFacade).writes) != 0 {
		t.Fatalf("expected no cache writes for a malformed beacon string")
	}
}

func TestHandleBLERoutesValveDigitToStatusWrite(t *testing.T) {
	cache := newFakeCache()
	cache.put(topic.NameDomoBLEValve, "aa:bb:cc:dd:ee:ff", cachevalue.FromObject(map[string]cachevalue.Value{
		"status": cachevalue.FromBool(false),
	}))
	r := newTestReconciler(cache, newFakeGen2())

	obj := map[string]cachevalue.Value{
		"valve_operation": cachevalue.FromString("aabbccddeeff 1 -55"),
	}
	r.handleBLE(context.Background(), "proxymac", obj, []string{"valve_operation"})

	tp, err := cache.GetTopicUUID(context.Background(), topic.NameDomoBLEValve, "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("expected the valve topic to be written: %v", err)
	}
	got, err := tp.Value.Object()
	if err != nil {
		t.Fatalf("value must be an object: %v", err)
	}
	status, _ := got["status"].Bool()
	if !status {
		t.Fatalf("expected status=true after valve digit 1")
	}
}

func TestHandleBLERoutesNonDigitValvePayloadToBestProxy(t *testing.T) {
	cache := newFakeCache()
	cache.put(topic.NameDomoBLEValve, "aa:bb:cc:dd:ee:ff", cachevalue.FromObject(nil))
	r := newTestReconciler(cache, newFakeGen2())

	obj := map[string]cachevalue.Value{
		"valve_operation": cachevalue.FromString("aabbccddeeff deadbeef -40"),
	}
	r.handleBLE(context.Background(), "proxy-mac", obj, []string{"valve_operation"})

	proxy := r.valveMgr.GetBestActuatorForValve("aa:bb:cc:dd:ee:ff")
	if proxy != "proxy-mac" {
		t.Fatalf("expected best-proxy to record proxy-mac, got %q", proxy)
	}
}

func TestHandleThermometerBeaconUndecodablePayloadDoesNotWrite(t *testing.T) {
	mac := "a4c1384f9388"
	canonicalMAC, _ := topic.CanonicalizeMAC(mac)

	cache := newFakeCache()
	cache.put(topic.NameDomoBLEThermometer, canonicalMAC, cachevalue.FromObject(map[string]cachevalue.Value{
		"key": cachevalue.FromString("0102030405060708090a0b0c0d0e0f10"),
	}))
	r := newTestReconciler(cache, newFakeGen2())

	// An invalid/undecodable payload should not panic and should not write.
	payloadHex := "0011223344"
	payloadB64 := base64.StdEncoding.EncodeToString(mustHexDecode(payloadHex))

	obj := map[string]cachevalue.Value{
		"beacon_adv": cachevalue.FromString(mac + " " + payloadB64 + " -50"),
	}
	writesBefore := len(cache.writes)
	r.handleBLE(context.Background(), "proxy", obj, []string{"beacon_adv"})
	if len(cache.writes) != writesBefore {
		t.Fatalf("expected a decode failure on a bogus thermometer payload not to write")
	}
}

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestHandleContactBeaconMissingKeyIsDropped(t *testing.T) {
	mac := "aabbccddeeff"
	canonicalMAC, _ := topic.CanonicalizeMAC(mac)
	cache := newFakeCache()
	cache.put(topic.NameDomoBLEContact, canonicalMAC, cachevalue.FromObject(map[string]cachevalue.Value{}))
	r := newTestReconciler(cache, newFakeGen2())

	obj := map[string]cachevalue.Value{
		"beacon_adv": cachevalue.FromString(mac + " 1d020106191695fe58588b09482b9e53ecaae46db81e190d00007d32b33ccb -60"),
	}
	writesBefore := len(cache.writes)
	r.handleBLE(context.Background(), "proxy", obj, []string{"beacon_adv"})
	if len(cache.writes) != writesBefore {
		t.Fatalf("expected contact beacon with no stored key to be dropped without writing")
	}
}

func TestBleKeyMissingReturnsError(t *testing.T) {
	tp := topic.Topic{Value: cachevalue.FromObject(map[string]cachevalue.Value{})}
	if _, err := bleKey(tp); err == nil {
		t.Fatalf("expected an error when the sensor topic has no key field")
	}
}

func TestMustObjectOnNonObjectReturnsNil(t *testing.T) {
	if obj := mustObject(cachevalue.FromString("x")); obj != nil {
		t.Fatalf("expected nil for a non-object value, got %v", obj)
	}
}
