// Package reconciler implements the event-reconciliation engine (C7): the
// single-threaded cooperative scheduler that owns every piece of mutable
// bridge state (session table, valve queue, BestProxy map) and multiplexes
// the six concurrent event sources named in SPEC_FULL.md §4.7 onto one
// select loop. Grounded on the teacher's internal/bridges/knx/bridge.go
// Bridge struct — one owner, one goroutine, channels in from everywhere
// else — generalized from a single KNX gateway connection to the full
// actuator/BLE/cache/discovery fan-in this bridge needs.
package reconciler

import (
	"context"
	"time"

	"github.com/grayhome/domo-bridge/internal/actuator"
	"github.com/grayhome/domo-bridge/internal/cache"
	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/command"
	"github.com/grayhome/domo-bridge/internal/discovery"
	"github.com/grayhome/domo-bridge/internal/infrastructure/logging"
	"github.com/grayhome/domo-bridge/internal/topic"
	"github.com/grayhome/domo-bridge/internal/valve"
)

// CacheFacade is the subset of the cache client the reconciler depends on.
// Satisfied directly by *cache.Client; injected so tests can use a fake.
type CacheFacade interface {
	GetTopicName(ctx context.Context, name topic.Name) ([]topic.Topic, error)
	GetTopicUUID(ctx context.Context, name topic.Name, uuid string) (topic.Topic, error)
	WriteValue(ctx context.Context, name topic.Name, uuid string, value cachevalue.Value) error
}

// Gen1Session is the subset of *gen1.Session the reconciler drives.
type Gen1Session interface {
	SendAction(payload cachevalue.Value) error
	Close()
}

// Gen1Dialer opens new gen-1 sessions on discovery. Satisfied by
// *gen1.Dialer.
type Gen1Dialer interface {
	Dial(ctx context.Context, mdnsName, kind, mac, user, password string) (Gen1Session, error)
}

// Gen2Dispatcher is the subset of *gen2.Server the reconciler drives.
// Satisfied directly since gen2.Server already exposes these methods.
type Gen2Dispatcher interface {
	SendAction(mac string, payload cachevalue.Value) error
	BroadcastPing()
}

// EnergyWriter records an energy-channel reading (C11). Satisfied by
// *telemetry.Writer; nil-safe at every call site so telemetry stays
// optional when InfluxDB is disabled.
type EnergyWriter interface {
	WriteEnergyMetric(sourceTopicUUID string, channel int, powerWatts, energyKWh float64)
}

// MetricsRecorder is the subset of *metrics.Metrics the reconciler reports
// into (C12). Satisfied directly by *metrics.Metrics; nil-safe at every
// call site so metrics stay optional.
type MetricsRecorder interface {
	SetActiveSessions(gen1, gen2 int)
	IncBLEProcessed(kind string)
	IncBLEDropped(reason string)
	SetValveQueueDepth(n int)
	IncValveRetry()
	ObserveCacheWriteLatency(d time.Duration)
	IncModeCorrection()
}

// sessionEntry mirrors spec §3's Device session record for the metadata the
// reconciler itself tracks (the live transport handle lives in gen1Sessions
// or is reached via Gen2Dispatcher by MAC instead).
type sessionEntry struct {
	topic.DeviceSession
}

// Reconciler owns all mutable bridge state and runs the single-threaded
// event-select loop. Every method that mutates sessions, gen2Plus, or the
// valve manager is only ever called from Run's goroutine.
type Reconciler struct {
	cache      CacheFacade
	gen1Dialer Gen1Dialer
	gen2       Gen2Dispatcher
	energy     EnergyWriter
	metrics    MetricsRecorder
	cmdParser  *command.Parser
	valveMgr   *valve.Manager
	log        *logging.Logger

	sessions     map[string]*sessionEntry // mac -> metadata
	gen1Sessions map[string]Gen1Session   // mac -> live gen-1 handle
	gen2Plus     map[string]bool          // mac -> authenticated as gen-2-plus
	dialing      map[string]bool          // mac -> gen-1 dial in flight

	statusCh     chan actuator.PropertyStatus
	closedCh     chan actuator.SessionClosed
	authCh       chan string
	discoveryCh  chan discovery.Result
	dialResultCh chan dialResult
	cacheEvents  <-chan cache.Event

	valveInterval, keepaliveInterval, modeInterval time.Duration
}

// Config bundles the constructor's dependencies.
type Config struct {
	Cache             CacheFacade
	Gen1Dialer        Gen1Dialer
	Gen2              Gen2Dispatcher
	Energy            EnergyWriter
	Metrics           MetricsRecorder
	CacheEvents       <-chan cache.Event
	ValveInterval     time.Duration
	KeepaliveInterval time.Duration
	ModeInterval      time.Duration
	Log               *logging.Logger
}

// New constructs a Reconciler. Call StatusChannel/ClosedChannel to obtain
// the fan-in channels to hand to gen1.Dialer/gen2.Server's constructors,
// and CredentialResolver/DiscoveryChannel for the gen-2 server and the
// discovery listener respectively.
func New(cfg Config) *Reconciler {
	r := &Reconciler{
		cache:             cfg.Cache,
		gen1Dialer:        cfg.Gen1Dialer,
		gen2:              cfg.Gen2,
		energy:            cfg.Energy,
		metrics:           cfg.Metrics,
		log:               cfg.Log.With("component", "reconciler"),
		sessions:          make(map[string]*sessionEntry),
		gen1Sessions:      make(map[string]Gen1Session),
		gen2Plus:          make(map[string]bool),
		dialing:           make(map[string]bool),
		statusCh:          make(chan actuator.PropertyStatus, 256),
		closedCh:          make(chan actuator.SessionClosed, 64),
		authCh:            make(chan string, 64),
		discoveryCh:       make(chan discovery.Result, 64),
		dialResultCh:      make(chan dialResult, 64),
		cacheEvents:       cfg.CacheEvents,
		valveInterval:     cfg.ValveInterval,
		keepaliveInterval: cfg.KeepaliveInterval,
		modeInterval:      cfg.ModeInterval,
	}
	r.valveMgr = valve.New(r)
	r.cmdParser = command.New(r)
	return r
}

// StatusChannel is the shared fan-in for gen1.Dial and gen2.NewServer's
// propertyStatus delivery.
func (r *Reconciler) StatusChannel() chan<- actuator.PropertyStatus { return r.statusCh }

// ClosedChannel is the shared fan-in for gen1/gen2 session-closed signals.
func (r *Reconciler) ClosedChannel() chan<- actuator.SessionClosed { return r.closedCh }

// CredentialResolver returns a gen2.CredentialResolver wired to the
// reconciler's cache and auth-success channel (E1).
func (r *Reconciler) CredentialResolver() *credentialResolver {
	return &credentialResolver{cache: r.cache, authCh: r.authCh}
}

// DiscoveryChannel is where the mDNS listener reports new actuators (E4).
func (r *Reconciler) DiscoveryChannel() chan<- discovery.Result { return r.discoveryCh }

// SetTransports binds the outbound gen-1 dialer and inbound gen-2 dispatcher
// once their constructors have consumed StatusChannel/ClosedChannel/
// CredentialResolver. Must be called before Run.
func (r *Reconciler) SetTransports(dialer Gen1Dialer, dispatcher Gen2Dispatcher) {
	r.gen1Dialer = dialer
	r.gen2 = dispatcher
}

// Run is the single-threaded cooperative event-select loop (spec §4.7,
// events E1-E8). It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	valveTicker := time.NewTicker(r.valveInterval)
	keepaliveTicker := time.NewTicker(r.keepaliveInterval)
	modeTicker := time.NewTicker(r.modeInterval)
	defer valveTicker.Stop()
	defer keepaliveTicker.Stop()
	defer modeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return ctx.Err()

		case mac := <-r.authCh: // E1
			r.gen2Plus[mac] = true
			r.log.Info("gen-2-plus authenticated", "mac", mac)
			r.reportSessionCounts()

		case status := <-r.statusCh: // E2/E3
			r.dispatchStatus(ctx, status)

		case closed := <-r.closedCh:
			r.handleSessionClosed(closed)

		case result := <-r.discoveryCh: // E4
			r.handleDiscovery(ctx, result)

		case res := <-r.dialResultCh: // E4 dial completion
			r.handleDialResult(res)

		case <-valveTicker.C: // E5
			r.valveMgr.Reconcile(r.cachedValveStatus(ctx))
			if r.metrics != nil {
				r.metrics.SetValveQueueDepth(r.valveMgr.QueueDepth())
			}

		case <-keepaliveTicker.C: // E6
			r.handleKeepaliveTick()

		case <-modeTicker.C: // E7
			r.handleModeCheckTick(ctx)

		case evt, ok := <-r.cacheEvents: // E8
			if !ok {
				r.cacheEvents = nil
				continue
			}
			r.handleCacheEvent(ctx, evt)
		}
	}
}

func (r *Reconciler) shutdown() {
	for mac, sess := range r.gen1Sessions {
		sess.Close()
		delete(r.gen1Sessions, mac)
	}
}

// dispatchStatus routes a propertyStatus frame to handle_ble when its
// updated_properties names a BLE relay field, and to handle_property_status
// otherwise (spec §4.7, §6's beacon-framing note).
func (r *Reconciler) dispatchStatus(ctx context.Context, status actuator.PropertyStatus) {
	obj, err := status.Status.Object()
	if err != nil {
		r.log.Warn("dropping propertyStatus with non-object status", "error", err, "mac", status.SessionMAC)
		return
	}

	updated := stringArrayField(obj, "updated_properties")
	if hasAny(updated, "beacon_adv", "valve_operation") {
		r.handleBLE(ctx, status.SessionMAC, obj, updated)
		return
	}

	if err := r.handlePropertyStatus(ctx, status); err != nil {
		r.log.Warn("handle_property_status failed", "error", err, "mac", status.SessionMAC)
	}
}

func (r *Reconciler) handleSessionClosed(closed actuator.SessionClosed) {
	delete(r.gen1Sessions, closed.MAC)
	delete(r.sessions, closed.MAC)
	delete(r.gen2Plus, closed.MAC)
	r.log.Info("session closed", "mac", closed.MAC, "error", closed.Err)
	r.reportSessionCounts()
}

// reportSessionCounts refreshes the active-session gauges. Called from
// every event that adds or removes a session so the gauge never drifts
// from the session table it mirrors.
func (r *Reconciler) reportSessionCounts() {
	if r.metrics == nil {
		return
	}
	r.metrics.SetActiveSessions(len(r.gen1Sessions), len(r.gen2Plus))
}

func stringArrayField(obj map[string]cachevalue.Value, key string) []string {
	v, ok := obj[key]
	if !ok {
		return nil
	}
	arr, err := v.Array()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, err := item.String()
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

func hasAny(haystack []string, needles ...string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if h == n {
				return true
			}
		}
	}
	return false
}
