package reconciler

import (
	"context"
	"errors"
	"testing"

	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/discovery"
	"github.com/grayhome/domo-bridge/internal/topic"
)

func TestMacNoColons(t *testing.T) {
	if got := macNoColons("aa:bb:cc:dd:ee:ff"); got != "aabbccddeeff" {
		t.Fatalf("got %q, want aabbccddeeff", got)
	}
}

type fakeGen1Dialer struct {
	dialed  []string
	session Gen1Session
	err     error
}

func (d *fakeGen1Dialer) Dial(ctx context.Context, mdnsName, kind, mac, user, password string) (Gen1Session, error) {
	d.dialed = append(d.dialed, mdnsName)
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

func TestHandleDiscoveryDialsWithHostOnlyMDNSName(t *testing.T) {
	fc := newFakeCache()
	fc.put(topic.NameShelly1PM, "aa:bb:cc:dd:ee:ff", cachevalue.FromObject(map[string]cachevalue.Value{
		"user_login":    cachevalue.FromString("admin"),
		"user_password": cachevalue.FromString("secret"),
	}))
	r := newTestReconciler(fc, newFakeGen2())
	dialer := &fakeGen1Dialer{session: &fakeGen1Session{}}
	r.gen1Dialer = dialer

	r.handleDiscovery(context.Background(), discovery.Result{
		MAC:  "aa:bb:cc:dd:ee:ff",
		IP:   "10.0.1.50",
		Kind: "shelly_1pm",
	})
	r.handleDialResult(<-r.dialResultCh)

	if len(dialer.dialed) != 1 {
		t.Fatalf("expected exactly one dial attempt, got %d", len(dialer.dialed))
	}
	want := "shelly_1pm-aabbccddeeff.local"
	if dialer.dialed[0] != want {
		t.Fatalf("got mdnsName %q, want %q", dialer.dialed[0], want)
	}
	if _, ok := r.sessions["aa:bb:cc:dd:ee:ff"]; !ok {
		t.Fatalf("expected a session table entry after a successful dial")
	}
	if _, ok := r.gen1Sessions["aa:bb:cc:dd:ee:ff"]; !ok {
		t.Fatalf("expected the dialed session to be tracked")
	}
	if r.dialing["aa:bb:cc:dd:ee:ff"] {
		t.Fatalf("expected dialing flag to be cleared after the result is applied")
	}
}

func TestHandleDiscoverySkipsWhileDialInFlight(t *testing.T) {
	fc := newFakeCache()
	fc.put(topic.NameShelly1PM, "aa:bb:cc:dd:ee:ff", cachevalue.FromObject(map[string]cachevalue.Value{
		"user_login":    cachevalue.FromString("admin"),
		"user_password": cachevalue.FromString("secret"),
	}))
	r := newTestReconciler(fc, newFakeGen2())
	dialer := &fakeGen1Dialer{session: &fakeGen1Session{}}
	r.gen1Dialer = dialer
	r.dialing["aa:bb:cc:dd:ee:ff"] = true

	r.handleDiscovery(context.Background(), discovery.Result{MAC: "aa:bb:cc:dd:ee:ff", Kind: "shelly_1pm"})

	if len(dialer.dialed) != 0 {
		t.Fatalf("expected no dial attempt while one is already in flight for this mac")
	}
}

func TestHandleDiscoverySkipsAlreadyConnectedMAC(t *testing.T) {
	r := newTestReconciler(newFakeCache(), newFakeGen2())
	r.sessions["aa:bb:cc:dd:ee:ff"] = &sessionEntry{}
	dialer := &fakeGen1Dialer{session: &fakeGen1Session{}}
	r.gen1Dialer = dialer

	r.handleDiscovery(context.Background(), discovery.Result{MAC: "aa:bb:cc:dd:ee:ff", Kind: "shelly_1pm"})

	if len(dialer.dialed) != 0 {
		t.Fatalf("expected no dial attempt for an already-connected mac")
	}
}

func TestHandleDiscoverySkipsWithoutCachedCredentials(t *testing.T) {
	r := newTestReconciler(newFakeCache(), newFakeGen2())
	dialer := &fakeGen1Dialer{session: &fakeGen1Session{}}
	r.gen1Dialer = dialer

	r.handleDiscovery(context.Background(), discovery.Result{MAC: "aa:bb:cc:dd:ee:ff", Kind: "shelly_1pm"})

	if len(dialer.dialed) != 0 {
		t.Fatalf("expected no dial attempt when the device has no cached credentials yet")
	}
}

func TestHandleDiscoveryDialFailureLeavesNoSession(t *testing.T) {
	fc := newFakeCache()
	fc.put(topic.NameShelly1PM, "aa:bb:cc:dd:ee:ff", cachevalue.FromObject(map[string]cachevalue.Value{}))
	r := newTestReconciler(fc, newFakeGen2())
	r.gen1Dialer = &fakeGen1Dialer{err: errors.New("dial refused")}

	r.handleDiscovery(context.Background(), discovery.Result{MAC: "aa:bb:cc:dd:ee:ff", Kind: "shelly_1pm"})
	r.handleDialResult(<-r.dialResultCh)

	if _, ok := r.sessions["aa:bb:cc:dd:ee:ff"]; ok {
		t.Fatalf("expected no session entry after a dial failure")
	}
	if r.dialing["aa:bb:cc:dd:ee:ff"] {
		t.Fatalf("expected dialing flag to be cleared after a failed dial")
	}
}
