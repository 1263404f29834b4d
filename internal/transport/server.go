// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport serves the protocol over WebSocket. One connection
// carries one handshake followed by a stream of JSON-RPC frames; the
// dispatch core stays transport-agnostic and only ever sees decoded
// requests.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/blueprint/internal/capability"
	"github.com/tombee/blueprint/internal/dispatch"
	"github.com/tombee/blueprint/internal/log"
	"github.com/tombee/blueprint/internal/session"
)

var (
	// ErrServerClosed is returned when operations are attempted on a
	// closed server.
	ErrServerClosed = errors.New("transport: server closed")

	// ErrNoPortAvailable is returned when no port in the configured
	// range is free.
	ErrNoPortAvailable = errors.New("transport: no port available in range")
)

const (
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	handshakeWait = 10 * time.Second
)

// Config configures the transport server.
type Config struct {
	// PortRange is the inclusive range of localhost ports to try.
	PortRange [2]int

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// AuthToken, when set, is required on every connection via the
	// X-Auth-Token header.
	AuthToken string
}

// DefaultConfig returns the default transport settings.
func DefaultConfig() Config {
	return Config{
		PortRange:       [2]int{9370, 9399},
		ShutdownTimeout: 5 * time.Second,
	}
}

// Handshake is the first frame a client sends after connecting. A non-empty
// SessionID asks to resume an existing session; otherwise a fresh session
// is created.
type Handshake struct {
	SessionID    string                         `json:"session_id,omitempty"`
	Client       session.ClientInfo             `json:"client"`
	Capabilities *capability.ClientCapabilities `json:"capabilities,omitempty"`
}

// HandshakeResult is the server's reply to a handshake.
type HandshakeResult struct {
	SessionID    string                         `json:"session_id"`
	Resumed      bool                           `json:"resumed,omitempty"`
	Capabilities capability.ServerCapabilities  `json:"capabilities"`
	Features     capability.Features            `json:"features"`
}

// Server accepts WebSocket connections and feeds their frames to the
// dispatcher.
type Server struct {
	cfg        Config
	sessions   *session.Manager
	negotiator *capability.Negotiator
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	validator  *tokenValidator

	mu         sync.RWMutex
	httpServer *http.Server
	listener   net.Listener
	port       int
	closed     bool

	connMu sync.Mutex
	conns  map[*websocket.Conn]struct{}

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	wg           sync.WaitGroup
}

// NewServer creates a transport server over the given collaborators.
func NewServer(cfg Config, sessions *session.Manager, negotiator *capability.Negotiator, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Server {
	if cfg.PortRange[0] == 0 {
		cfg.PortRange = DefaultConfig().PortRange
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:        cfg,
		sessions:   sessions,
		negotiator: negotiator,
		dispatcher: dispatcher,
		logger:     log.WithComponent(logger, "transport"),
		upgrader: websocket.Upgrader{
			// Localhost-only listener; origins are not meaningful here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:      make(map[*websocket.Conn]struct{}),
		shutdownCh: make(chan struct{}),
	}
	if cfg.AuthToken != "" {
		s.validator = newTokenValidator(cfg.AuthToken)
	}
	return s
}

// Start binds the first free port in the configured range and begins
// serving. It returns the bound port.
func (s *Server) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrServerClosed
	}
	if s.httpServer != nil {
		return s.port, nil
	}

	port, listener, err := s.findAvailablePort()
	if err != nil {
		return 0, err
	}
	s.listener = listener
	s.port = port

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// WriteTimeout omitted to support long-lived WebSocket connections
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("transport server error", log.Error(err))
		}
	}()

	s.logger.Info("transport server started", "port", port)
	return port, nil
}

func (s *Server) findAvailablePort() (int, net.Listener, error) {
	for port := s.cfg.PortRange[0]; port <= s.cfg.PortRange[1]; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return port, listener, nil
		}
		s.logger.Debug("port unavailable", "port", port, log.Error(err))
	}
	return 0, nil, ErrNoPortAvailable
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	status := "ready"
	httpStatus := http.StatusOK
	if closed {
		status = "shutting_down"
		httpStatus = http.StatusServiceUnavailable
	}

	stats := s.sessions.Stats()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          status,
		"active_sessions": stats.Active,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	if s.validator != nil {
		token := r.Header.Get("X-Auth-Token")
		if err := s.validator.validate(token, r.RemoteAddr); err != nil {
			if errors.Is(err, ErrTooManyAttempts) {
				s.logger.Warn("authentication locked out", "remote", r.RemoteAddr)
				http.Error(w, "too many requests", http.StatusTooManyRequests)
			} else {
				s.logger.Warn("authentication failed",
					"remote", r.RemoteAddr,
					"has_token", token != "")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			}
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", log.Error(err), "remote", r.RemoteAddr)
		return
	}

	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()

	s.wg.Add(1)
	go s.handleConnection(r.Context(), conn)
}

// handleConnection runs the handshake, then pumps frames through the
// dispatcher until the connection closes.
func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()
	defer func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
		conn.Close()
	}()

	sessionID, err := s.performHandshake(conn)
	if err != nil {
		s.logger.Warn("handshake failed", log.Error(err), "remote", conn.RemoteAddr())
		return
	}
	defer s.dispatcher.ReleaseSession(sessionID)

	logger := log.WithSession(s.logger, sessionID)
	logger.Info("connection established", "remote", conn.RemoteAddr())
	defer logger.Info("connection closed", "remote", conn.RemoteAddr())

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.pingLoop(conn, stopPing)

	for {
		select {
		case <-s.shutdownCh:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", log.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		resp := s.dispatcher.HandleMessage(ctx, sessionID, message)
		if resp == nil {
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn("websocket write error", log.Error(err))
			return
		}
	}
}

// performHandshake reads the handshake frame, creates or resumes the
// session, negotiates capabilities, and replies.
func (s *Server) performHandshake(conn *websocket.Conn) (string, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeWait))

	var hello Handshake
	if err := conn.ReadJSON(&hello); err != nil {
		return "", fmt.Errorf("failed to read handshake: %w", err)
	}

	var sessionID string
	resumed := false
	if hello.SessionID != "" {
		if existing := s.sessions.Get(hello.SessionID); existing != nil {
			sessionID = existing.ID
			resumed = true
		}
	}
	if sessionID == "" {
		sessionID = s.sessions.Create(hello.Client).ID
	}

	negotiated := s.negotiator.Negotiate(hello.Capabilities)
	s.sessions.UpdateCapabilities(sessionID, session.CapabilityPatch{
		Tools:     &negotiated.Features.Tools,
		Resources: &negotiated.Features.Resources,
		Prompts:   &negotiated.Features.Prompts,
		Logging:   &negotiated.Features.Logging,
	})

	result := HandshakeResult{
		SessionID:    sessionID,
		Resumed:      resumed,
		Capabilities: negotiated.Server,
		Features:     negotiated.Features,
	}
	if err := conn.WriteJSON(result); err != nil {
		return "", fmt.Errorf("failed to write handshake result: %w", err)
	}
	return sessionID, nil
}

func (s *Server) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.shutdownCh:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// Shutdown closes all connections and stops the HTTP server, waiting up to
// the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		server := s.httpServer
		s.mu.Unlock()

		close(s.shutdownCh)

		s.connMu.Lock()
		for conn := range s.conns {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			conn.Close()
		}
		s.connMu.Unlock()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()

		select {
		case <-done:
		case <-shutdownCtx.Done():
			s.logger.Warn("shutdown timeout waiting for connections")
		}

		if server != nil {
			err = server.Shutdown(shutdownCtx)
		}
		s.logger.Info("transport server stopped")
	})
	return err
}
