// Package gen1 implements the bridge-outbound actuator session (C4): for
// each discovered first-generation actuator the bridge dials a TLS
// WebSocket client to the device and maintains it with the same
// read/write-pump shape the teacher's internal/api/websocket.go uses for
// its inbound hub, mirrored here for an outbound connection.
package gen1

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grayhome/domo-bridge/internal/actuator"
	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/infrastructure/logging"
	"github.com/grayhome/domo-bridge/internal/topic"
)

const (
	connectAttempts   = 2
	connectTimeout    = 10 * time.Second
	pingInterval      = 10 * time.Second
	pongTimeout       = 60 * time.Second
	sendBufferSize    = 32
)

// Session is one connected gen-1 actuator's outbound WebSocket client.
type Session struct {
	MAC  string
	conn *websocket.Conn
	send chan []byte
	log  *logging.Logger
}

// Dial opens a gen-1 session per spec §4.4: two connect attempts of 10s
// each, HTTP Basic auth from the device's cache credentials, then an
// initial get_status_update action. On success it starts the read/write
// pumps; PropertyStatus frames are forwarded to statusCh, and the session's
// eventual close is reported on closedCh.
func Dial(
	ctx context.Context,
	mdnsName, kind, mac, user, password string,
	tlsConfig *tls.Config,
	statusCh chan<- actuator.PropertyStatus,
	closedCh chan<- actuator.SessionClosed,
	log *logging.Logger,
) (*Session, error) {
	macNoColons := strings.ReplaceAll(mac, ":", "")
	url := fmt.Sprintf("wss://%s/things/%s-%s", mdnsName, kind, macNoColons)

	header := http.Header{}
	auth := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	header.Set("Authorization", "Basic "+auth)

	var conn *websocket.Conn
	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		dialer := websocket.Dialer{
			TLSClientConfig:  tlsConfig,
			HandshakeTimeout: connectTimeout,
		}
		c, _, err := dialer.DialContext(dialCtx, url, header)
		cancel()
		if err == nil {
			conn = c
			break
		}
		lastErr = err
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: %s after %d attempts: %v", actuator.ErrConnectFailed, url, connectAttempts, lastErr)
	}

	s := &Session{
		MAC:  mac,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		log:  log.With("component", "gen1", "mac", mac),
	}

	go s.readPump(statusCh, closedCh)
	go s.writePump()

	if err := s.SendAction(cachevalue.FromObject(map[string]cachevalue.Value{
		"get_status_update": cachevalue.FromBool(true),
	})); err != nil {
		s.log.Warn("sending initial get_status_update failed", "error", err)
	}

	return s, nil
}

// SendAction wraps payload as send_action's requestAction frame and queues
// it for transmission. Per spec §4.4 this is fire-and-forget: the send
// channel is bounded and a closed session simply drops the write.
func (s *Session) SendAction(payload cachevalue.Value) error {
	frame, err := actuator.EncodeRequestAction(payload)
	if err != nil {
		return err
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return fmt.Errorf("actuator %s: send buffer full", s.MAC)
	}
}

// Close tears the session down by closing the send channel. A second Close,
// or a SendAction after Close, panics.
func (s *Session) Close() {
	close(s.send)
}

// Dialer binds the transport-level settings (TLS config, fan-in channels,
// logger) once so the reconciler can dial new sessions through a narrow
// interface without importing crypto/tls or the channel plumbing itself.
type Dialer struct {
	TLSConfig *tls.Config
	StatusCh  chan<- actuator.PropertyStatus
	ClosedCh  chan<- actuator.SessionClosed
	Log       *logging.Logger
}

// Dial opens a new gen-1 session using the Dialer's bound settings.
func (d *Dialer) Dial(ctx context.Context, mdnsName, kind, mac, user, password string) (*Session, error) {
	return Dial(ctx, mdnsName, kind, mac, user, password, d.TLSConfig, d.StatusCh, d.ClosedCh, d.Log)
}

func (s *Session) readPump(statusCh chan<- actuator.PropertyStatus, closedCh chan<- actuator.SessionClosed) {
	defer func() {
		s.conn.Close()
		closedCh <- actuator.SessionClosed{MAC: s.MAC}
	}()

	s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug("session read loop ended", "error", err)
			return
		}

		var frame actuator.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Warn("dropping malformed frame", "error", err)
			continue
		}
		if frame.MessageType != actuator.MessageTypePropertyStatus {
			continue
		}
		status, err := actuator.ParsePropertyStatus(s.MAC, frame.Data)
		if err != nil {
			s.log.Warn("dropping malformed propertyStatus", "error", err)
			continue
		}
		status.Generation = topic.Gen1
		statusCh <- status
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(pongTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(pongTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
