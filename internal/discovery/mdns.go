// Package discovery implements the mDNS discovery integrator (C9): it
// browses for actuator Webthing services, filters their advertised names to
// the kinds the reconciler dials outbound (gen-1 only — gen-2-plus devices
// reach the bridge inbound instead), and reports newly seen (mac, ip, kind)
// tuples. Built on grandcat/zeroconf, the same mDNS library the example
// pack's periph-home node uses for its own service advertisement.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/grayhome/domo-bridge/internal/infrastructure/config"
	"github.com/grayhome/domo-bridge/internal/infrastructure/logging"
	"github.com/grayhome/domo-bridge/internal/topic"
)

// Result is one discovered gen-1 actuator, ready to hand to the reconciler
// for a Dial.
type Result struct {
	MAC  string
	IP   string
	Kind string
}

// rejectedKinds never reach the bridge via discovery: gen-2-plus actuators
// dial inbound and authenticate via Basic auth instead (spec §4.7).
var rejectedKinds = map[string]bool{
	"shelly_1plus":     true,
	"shelly_1pm_plus":  true,
	"shelly_2pm_plus":  true,
}

// Listener periodically browses the configured service and reports matching
// instances.
type Listener struct {
	service  string
	interval time.Duration
	iface    *net.Interface
	log      *logging.Logger
}

// New constructs a Listener scoped to the network interface carrying
// 10.0.<node_id>.1, the bridge's per-instance discovery address.
func New(cfg config.MDNSConfig, nodeID uint8, log *logging.Logger) (*Listener, error) {
	iface, err := findInterface(nodeID)
	if err != nil {
		return nil, err
	}
	return &Listener{
		service:  cfg.Service,
		interval: cfg.Interval,
		iface:    iface,
		log:      log.With("component", "discovery"),
	}, nil
}

func findInterface(nodeID uint8) (*net.Interface, error) {
	want := fmt.Sprintf("10.0.%d.1", nodeID)

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing network interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if ok && ipNet.IP.String() == want {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface carries discovery address %s", want)
}

// Listen browses for services every interval until ctx is cancelled,
// sending each accepted (mac, ip, kind) on out. Browse errors are logged and
// retried on the next tick rather than treated as fatal.
func (l *Listener) Listen(ctx context.Context, out chan<- Result) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.browseOnce(ctx, out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.browseOnce(ctx, out)
		}
	}
}

func (l *Listener) browseOnce(ctx context.Context, out chan<- Result) {
	resolver, err := zeroconf.NewResolver(zeroconf.SelectIfaces([]net.Interface{*l.iface}))
	if err != nil {
		l.log.Warn("creating mdns resolver", "error", err)
		return
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	browseCtx, cancel := context.WithTimeout(ctx, l.interval)
	defer cancel()

	if err := resolver.Browse(browseCtx, l.service, "local.", entries); err != nil {
		l.log.Warn("browsing mdns service", "error", err)
		return
	}

	for entry := range entries {
		kind, mac, ok := parseInstanceName(entry.HostName)
		if !ok || !accept(kind) {
			continue
		}
		ip := primaryAddr(entry)
		if ip == "" {
			continue
		}
		canonicalMAC, err := topic.CanonicalizeMAC(mac)
		if err != nil {
			l.log.Warn("dropping discovery result with malformed mac", "error", err, "hostname", entry.HostName)
			continue
		}
		out <- Result{MAC: canonicalMAC, IP: ip, Kind: kind}
	}
}

// parseInstanceName splits a "<kind>-<mac12>.local." hostname into its kind
// and 12-hex-digit MAC.
func parseInstanceName(hostname string) (kind, mac12 string, ok bool) {
	name := strings.TrimSuffix(strings.TrimSuffix(hostname, "."), ".local")
	idx := strings.LastIndex(name, "-")
	if idx < 0 || idx == len(name)-1 {
		return "", "", false
	}
	kind = name[:idx]
	mac12 = name[idx+1:]
	if len(mac12) != 12 {
		return "", "", false
	}
	return kind, mac12, true
}

// accept filters to shelly*/geeklink* kinds, rejecting the inbound-only
// gen-2-plus kinds that never arrive via discovery.
func accept(kind string) bool {
	if rejectedKinds[kind] {
		return false
	}
	return strings.HasPrefix(kind, "shelly") || strings.HasPrefix(kind, "geeklink")
}

func primaryAddr(entry *zeroconf.ServiceEntry) string {
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0].String()
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0].String()
	}
	return ""
}
