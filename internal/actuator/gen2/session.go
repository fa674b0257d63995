package gen2

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/grayhome/domo-bridge/internal/actuator"
	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/infrastructure/logging"
)

// Session is one connected gen-2 actuator's inbound WebSocket connection.
// Unlike gen1's Session (owned exclusively by the reconciler's single
// goroutine), a gen2 Session can be closed by register() from an HTTP
// handler goroutine concurrently with a sendAction call already in flight
// from Server.SendAction/BroadcastPing, so send and close are serialized
// through mu rather than relying on the send channel's close alone.
type Session struct {
	MAC  string
	conn *websocket.Conn
	send chan []byte
	log  *logging.Logger

	mu     sync.Mutex
	closed bool
}

// sendAction wraps payload as a requestAction frame and queues it for
// transmission. The send channel is bounded; a saturated session drops the
// write rather than blocking the caller.
func (s *Session) sendAction(payload cachevalue.Value) error {
	frame, err := actuator.EncodeRequestAction(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("actuator %s: session closed", s.MAC)
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return fmt.Errorf("actuator %s: send buffer full", s.MAC)
	}
}

// Close tears the session down; safe to call more than once or concurrently
// with sendAction.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}
