package valve

import (
	"testing"
	"time"

	"github.com/grayhome/domo-bridge/internal/topic"
)

type fakeDispatcher struct {
	calls int
}

func (f *fakeDispatcher) DispatchValveCommand(proxyMAC, valveMAC string, desiredState bool) {
	f.calls++
}

func TestBestActuatorHigherRSSIWins(t *testing.T) {
	m := New(&fakeDispatcher{})
	m.UpdateBestActuator("valve1", "proxyA", -40)
	m.UpdateBestActuator("valve1", "proxyB", -70) // weaker, should not replace
	if got := m.GetBestActuatorForValve("valve1"); got != "proxyA" {
		t.Fatalf("got %q, want proxyA", got)
	}
	m.UpdateBestActuator("valve1", "proxyC", -20) // stronger, replaces
	if got := m.GetBestActuatorForValve("valve1"); got != "proxyC" {
		t.Fatalf("got %q, want proxyC", got)
	}
}

func TestBestActuatorStaleReplacesRegardlessOfRSSI(t *testing.T) {
	m := New(&fakeDispatcher{})
	fixed := time.Now()
	m.now = func() time.Time { return fixed }
	m.UpdateBestActuator("valve1", "proxyA", -20)

	m.now = func() time.Time { return fixed.Add(topic.BestProxyTTL + time.Second) }
	m.UpdateBestActuator("valve1", "proxyB", -90) // weaker, but old entry stale
	if got := m.GetBestActuatorForValve("valve1"); got != "proxyB" {
		t.Fatalf("got %q, want proxyB (stale replacement)", got)
	}
}

func TestReconcileRemovesWhenStatusMatches(t *testing.T) {
	m := New(&fakeDispatcher{})
	m.Insert("valve1", true)
	m.Reconcile(func(mac string) (bool, bool) { return true, true })
	if _, exists := m.queue["valve1"]; exists {
		t.Fatal("expected entry removed once status matches desired")
	}
}

func TestReconcileRetransmitsThroughBestProxy(t *testing.T) {
	disp := &fakeDispatcher{}
	m := New(disp)
	m.Insert("valve1", true)
	m.UpdateBestActuator("valve1", "proxyA", -40)
	m.Reconcile(func(mac string) (bool, bool) { return false, true })
	if disp.calls != 1 {
		t.Fatalf("calls = %d, want 1", disp.calls)
	}
	if m.queue["valve1"].Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", m.queue["valve1"].Attempts)
	}
}

func TestReconcileGivesUpAfterMaxAttempts(t *testing.T) {
	disp := &fakeDispatcher{}
	m := New(disp)
	m.queue["valve1"] = topic.ValveDesired{DesiredValue: true, Attempts: topic.MaxValveAttempts}
	m.Reconcile(func(mac string) (bool, bool) { return false, true })
	if _, exists := m.queue["valve1"]; exists {
		t.Fatal("expected entry dropped after reaching max attempts")
	}
}

func TestReconcileSkipsWithoutProxy(t *testing.T) {
	disp := &fakeDispatcher{}
	m := New(disp)
	m.Insert("valve1", true)
	m.Reconcile(func(mac string) (bool, bool) { return false, true })
	if disp.calls != 0 {
		t.Fatalf("calls = %d, want 0 (no proxy yet)", disp.calls)
	}
	if _, exists := m.queue["valve1"]; !exists {
		t.Fatal("entry should remain queued without a proxy")
	}
}
