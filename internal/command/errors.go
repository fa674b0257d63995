package command

import "errors"

// ErrBadCommand marks a parse failure in a logical command (turn, shutter,
// dim, rgbw, valve): a missing or malformed field. The reconciler logs the
// error and drops the command rather than treating it as session- or
// process-fatal; nothing is sent back to the originating cache peer.
var ErrBadCommand = errors.New("command: bad command")
