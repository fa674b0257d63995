// Package valve implements the valve command manager (C6): the BestProxy
// RSSI-based routing table and the retry queue that drives radiator valves
// through whichever gen-2 actuator currently forwards their BLE beacons
// most strongly. Grounded on the teacher's Bridge struct pattern
// (internal/bridges/knx/bridge.go) — state owned by a single struct,
// mutated only by the reconciler's goroutine, no internal locking because
// there is exactly one caller.
package valve

import (
	"time"

	"github.com/grayhome/domo-bridge/internal/topic"
)

// Dispatcher sends a resolved radiator-valve command to an actuator MAC.
// Implemented by the reconciler's session table; injected so this package
// has no dependency on the transport layer.
type Dispatcher interface {
	DispatchValveCommand(proxyMAC, valveMAC string, desiredState bool)
}

// Manager owns the BestProxy table and the ValveQueue. It is not
// goroutine-safe by design: every method is called only from the
// reconciler's single event-select loop (spec §5).
type Manager struct {
	bestProxy map[string]topic.BestProxyEntry   // valve MAC -> best proxy
	queue     map[string]topic.ValveDesired      // valve MAC -> desired state + attempts
	dispatch  Dispatcher
	now       func() time.Time
}

// New constructs an empty Manager.
func New(dispatch Dispatcher) *Manager {
	return &Manager{
		bestProxy: make(map[string]topic.BestProxyEntry),
		queue:     make(map[string]topic.ValveDesired),
		dispatch:  dispatch,
		now:       time.Now,
	}
}

// UpdateBestActuator applies the BestProxy rule (I5): the new observation
// replaces the recorded one when its RSSI is higher, or the recorded
// observation has gone stale (older than BestProxyTTL).
func (m *Manager) UpdateBestActuator(valveMAC, actuatorMAC string, rssi int8) {
	now := m.now()
	current, ok := m.bestProxy[valveMAC]
	if !ok || rssi > current.RSSI || now.Sub(current.ObservedAt) > topic.BestProxyTTL {
		m.bestProxy[valveMAC] = topic.BestProxyEntry{
			ActuatorMAC: actuatorMAC,
			RSSI:        rssi,
			ObservedAt:  now,
		}
	}
}

// GetBestActuatorForValve returns the current best-proxy MAC for a valve,
// or "" if none has been observed yet.
func (m *Manager) GetBestActuatorForValve(valveMAC string) string {
	entry, ok := m.bestProxy[valveMAC]
	if !ok {
		return ""
	}
	return entry.ActuatorMAC
}

// Insert queues a valve command. If an entry already exists for this valve
// it is replaced (a newer desired state supersedes an in-flight retry).
func (m *Manager) Insert(valveMAC string, desiredState bool) {
	m.queue[valveMAC] = topic.ValveDesired{DesiredValue: desiredState}
}

// Remove drops a valve's queue entry, used on explicit delete or once the
// desired state is confirmed.
func (m *Manager) Remove(valveMAC string) {
	delete(m.queue, valveMAC)
}

// QueueDepth reports the number of valves with an in-flight desired state,
// for the metrics gauge (C12).
func (m *Manager) QueueDepth() int {
	return len(m.queue)
}

// CachedStatus reports a valve's last-known status, consulted by
// Reconcile to decide whether a queue entry is already satisfied.
type CachedStatus func(valveMAC string) (status bool, ok bool)

// Reconcile runs one 20s tick of the valve queue (spec §4.6 steps 1-4):
// snapshot, check against cached status, retransmit through the best proxy
// up to the attempt cap, or drop.
func (m *Manager) Reconcile(cachedStatus CachedStatus) {
	type snapshotEntry struct {
		mac     string
		desired topic.ValveDesired
	}
	snapshot := make([]snapshotEntry, 0, len(m.queue))
	for mac, desired := range m.queue {
		snapshot = append(snapshot, snapshotEntry{mac: mac, desired: desired})
	}

	for _, entry := range snapshot {
		status, ok := cachedStatus(entry.mac)
		if ok && status == entry.desired.DesiredValue {
			m.Remove(entry.mac)
			continue
		}

		if entry.desired.Attempts >= topic.MaxValveAttempts {
			m.Remove(entry.mac)
			continue
		}

		proxy := m.GetBestActuatorForValve(entry.mac)
		if proxy == "" {
			continue
		}

		m.dispatch.DispatchValveCommand(proxy, entry.mac, entry.desired.DesiredValue)
		entry.desired.Attempts++
		m.queue[entry.mac] = entry.desired
	}
}
