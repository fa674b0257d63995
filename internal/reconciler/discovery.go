package reconciler

import (
	"context"
	"fmt"

	"github.com/grayhome/domo-bridge/internal/discovery"
	"github.com/grayhome/domo-bridge/internal/topic"
)

// dialResult is what a background gen-1 dial reports back to Run's select
// loop once gen1Dialer.Dial returns (or fails). Carrying the session-entry
// metadata alongside the session itself means handleDialResult never has to
// re-derive anything discovery already resolved.
type dialResult struct {
	mac      string
	kind     string
	ip       string
	mdnsName string
	user     string
	password string
	session  Gen1Session
	err      error
}

// handleDiscovery implements the E4 discovery integration: for a newly
// reported (mac, ip), look up the device's provisioned credentials and kick
// off a gen-1 dial if one isn't already held or in flight (I1: exactly one
// session per mac). The dial itself runs on its own goroutine and reports
// back through dialResultCh — gen1.Dialer.Dial can block for up to
// connectAttempts*connectTimeout, and Run's select loop must never stall on
// a single slow or unreachable device.
func (r *Reconciler) handleDiscovery(ctx context.Context, result discovery.Result) {
	if _, ok := r.sessions[result.MAC]; ok {
		return // already connected, per I1
	}
	if r.dialing[result.MAC] {
		return // dial already in flight for this mac
	}

	t, err := r.cache.GetTopicUUID(ctx, topic.Name(result.Kind), result.MAC)
	if err != nil {
		r.log.Debug("discovered actuator has no cache credentials yet", "mac", result.MAC, "kind", result.Kind)
		return
	}
	obj, err := t.Value.Object()
	if err != nil {
		return
	}
	user, _ := obj["user_login"].String()
	password, _ := obj["user_password"].String()

	mdnsName := fmt.Sprintf("%s-%s.local", result.Kind, macNoColons(result.MAC))

	r.dialing[result.MAC] = true
	go func() {
		sess, err := r.gen1Dialer.Dial(ctx, mdnsName, result.Kind, result.MAC, user, password)
		r.dialResultCh <- dialResult{
			mac:      result.MAC,
			kind:     result.Kind,
			ip:       result.IP,
			mdnsName: mdnsName,
			user:     user,
			password: password,
			session:  sess,
			err:      err,
		}
	}()
}

// handleDialResult applies a completed background dial (success or failure)
// onto the reconciler's session table. Only ever called from Run's
// goroutine, so it is safe to mutate sessions/gen1Sessions/dialing here.
func (r *Reconciler) handleDialResult(res dialResult) {
	delete(r.dialing, res.mac)

	if res.err != nil {
		r.log.Warn("dialing discovered gen1 actuator failed", "error", res.err, "mac", res.mac)
		return
	}

	r.gen1Sessions[res.mac] = res.session
	r.sessions[res.mac] = &sessionEntry{
		DeviceSession: topic.DeviceSession{
			MAC:        res.mac,
			IP:         res.ip,
			MDNSName:   res.mdnsName,
			Kind:       topic.Name(res.kind),
			Generation: topic.Gen1,
			User:       res.user,
			Password:   res.password,
		},
	}
	r.log.Info("opened gen1 session", "mac", res.mac, "kind", res.kind)
	r.reportSessionCounts()
}

func macNoColons(mac string) string {
	out := make([]byte, 0, 12)
	for _, c := range mac {
		if c != ':' {
			out = append(out, byte(c))
		}
	}
	return string(out)
}
