// Package gen2 implements the bridge-inbound actuator session (C5): a TLS
// WebSocket server that second-generation actuators dial into. Routing and
// the Basic-auth upgrade gate are built on go-chi, the hub/session split is
// the teacher's internal/api/websocket.go pattern turned inside out for an
// inbound-only transport with no outbound UI clients.
package gen2

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/grayhome/domo-bridge/internal/actuator"
	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/infrastructure/config"
	"github.com/grayhome/domo-bridge/internal/infrastructure/logging"
	"github.com/grayhome/domo-bridge/internal/topic"
)

const (
	pingInterval   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	sendBufferSize = 32
)

// CredentialResolver resolves the Basic-auth credentials a gen-2 actuator
// presents on Upgrade against the cache topics of kinds
// {shelly_1plus, shelly_1pm_plus, shelly_2pm_plus} (spec §4.4).
type CredentialResolver interface {
	ResolveCredentials(ctx context.Context, user, password string) (mac string, ok bool, err error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Server accepts inbound gen-2 actuator connections.
type Server struct {
	cfg       config.G2ServerConfig
	tlsConfig *tls.Config
	resolver  CredentialResolver
	statusCh  chan<- actuator.PropertyStatus
	closedCh  chan<- actuator.SessionClosed
	log       *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewServer constructs a gen-2 server. ListenAndServe starts accepting.
func NewServer(
	cfg config.G2ServerConfig,
	tlsConfig *tls.Config,
	resolver CredentialResolver,
	statusCh chan<- actuator.PropertyStatus,
	closedCh chan<- actuator.SessionClosed,
	log *logging.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		resolver:  resolver,
		statusCh:  statusCh,
		closedCh:  closedCh,
		log:       log.With("component", "gen2"),
		sessions:  make(map[string]*Session),
	}
}

// ListenAndServe blocks serving TLS WebSocket connections until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	r := chi.NewRouter()
	r.Get("/things/{kind}-{mac}", s.handleUpgrade)

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := tls.Listen("tcp", addr, s.tlsConfig)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	httpServer := &http.Server{Handler: r}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	user, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	mac, ok, err := s.resolver.ResolveCredentials(r.Context(), user, password)
	if err != nil {
		s.log.Error("resolving gen2 credentials", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "error", err, "mac", mac)
		return
	}

	sess := &Session{
		MAC:  mac,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		log:  s.log.With("mac", mac),
	}

	s.register(sess)
	go s.readPump(sess)
	go s.writePump(sess)

	if err := sess.sendAction(cachevalue.FromObject(map[string]cachevalue.Value{
		"get_status_update": cachevalue.FromBool(true),
	})); err != nil {
		sess.log.Warn("sending initial get_status_update failed", "error", err)
	}
}

func (s *Server) register(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, exists := s.sessions[sess.MAC]; exists {
		old.Close()
	}
	s.sessions[sess.MAC] = sess
}

func (s *Server) unregister(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.MAC] == sess {
		delete(s.sessions, sess.MAC)
	}
}

// SendAction wraps payload as send_action and forwards it to mac's session,
// if one is currently connected.
func (s *Server) SendAction(mac string, payload cachevalue.Value) error {
	s.mu.RLock()
	sess, ok := s.sessions[mac]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("gen2: no session for %s", mac)
	}
	return sess.sendAction(payload)
}

// BroadcastPing sends an application-level "Ping" command to every
// connected gen-2 session, the E6 keepalive tick's broadcast step.
func (s *Server) BroadcastPing() {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		_ = sess.sendAction(cachevalue.FromObject(map[string]cachevalue.Value{
			"ping": cachevalue.FromBool(true),
		}))
	}
}

func (s *Server) readPump(sess *Session) {
	defer func() {
		s.unregister(sess)
		sess.conn.Close()
		s.closedCh <- actuator.SessionClosed{MAC: sess.MAC}
	}()

	sess.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			sess.log.Debug("session read loop ended", "error", err)
			return
		}

		var frame actuator.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			sess.log.Warn("dropping malformed frame", "error", err)
			continue
		}
		if frame.MessageType != actuator.MessageTypePropertyStatus {
			continue
		}
		status, err := actuator.ParsePropertyStatus(sess.MAC, frame.Data)
		if err != nil {
			sess.log.Warn("dropping malformed propertyStatus", "error", err)
			continue
		}
		status.Generation = topic.Gen2

		select {
		case s.statusCh <- status:
		default:
			sess.log.Warn("status channel full, dropping telemetry")
		}
	}
}

func (s *Server) writePump(sess *Session) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sess.conn.Close()
	}()

	for {
		select {
		case data, ok := <-sess.send:
			if !ok {
				sess.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			sess.conn.SetWriteDeadline(time.Now().Add(pongTimeout))
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(pongTimeout))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// LoadTLSConfig builds a *tls.Config from the configured certificate pair.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS key pair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
