package actuator

import "errors"

// ErrConnectFailed marks a G1 session exhausting its two-attempt connect
// budget (spec §4.4). It is a TransientIO condition: discovery will retry
// the device on its next mDNS sighting.
var ErrConnectFailed = errors.New("actuator: connect failed")

// ErrUnauthorized marks a G2 upgrade whose Basic-auth credentials did not
// resolve against any known actuator topic.
var ErrUnauthorized = errors.New("actuator: unauthorized")
