package reconciler

import (
	"context"

	"github.com/grayhome/domo-bridge/internal/actuator/gen1"
)

// gen1DialerAdapter narrows *gen1.Dialer's concrete *gen1.Session return
// into the Gen1Session interface Reconciler depends on.
type gen1DialerAdapter struct {
	dialer *gen1.Dialer
}

// NewGen1Dialer wraps a *gen1.Dialer as a reconciler.Gen1Dialer.
func NewGen1Dialer(d *gen1.Dialer) Gen1Dialer {
	return &gen1DialerAdapter{dialer: d}
}

func (a *gen1DialerAdapter) Dial(ctx context.Context, mdnsName, kind, mac, user, password string) (Gen1Session, error) {
	return a.dialer.Dial(ctx, mdnsName, kind, mac, user, password)
}
