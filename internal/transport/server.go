/*
Package transport owns the network layer: framed connections, the module
router, the server-side connection registry, and the client dialer.

This file defines the NetServer, which accepts TCP connections, tracks every
live connection in a registry keyed by an opaque connection ID, and fans
inbound frames into the shared Router. Feature modules send through TrySend
and Broadcast and subscribe to connect/disconnect events.
*/
package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/randx"
	"chatwire/internal/protocol"
)

// Sender is the outbound surface feature modules depend on. NetServer
// implements it; tests substitute fakes.
type Sender interface {
	// TrySend delivers one frame to the given connection. It reports false
	// when the connection is unknown or the send failed; it never panics
	// across the caller boundary.
	TrySend(connID string, frame protocol.Frame) bool
}

// NetServer listens for connections and owns the connection registry.
type NetServer struct {
	addr string

	router *Router

	listener net.Listener
	wg       sync.WaitGroup

	mu    sync.RWMutex
	conns map[string]*Conn

	cbMu         sync.RWMutex
	onConnect    []func(connID string)
	onDisconnect []func(connID string)

	closed bool

	logger zerolog.Logger
}

// NewNetServer constructs a NetServer listening on the given address once
// started. The Router is created empty; modules register their handlers
// before Start is called.
func NewNetServer(addr string) *NetServer {
	return &NetServer{
		addr:   addr,
		router: NewRouter(),
		conns:  make(map[string]*Conn),
		logger: logx.Logger().With().Str("component", "NetServer").Logger(),
	}
}

// RegisterHandler binds a module handler on the shared router.
func (s *NetServer) RegisterHandler(module string, handler Handler) error {
	return s.router.RegisterHandler(module, handler)
}

// OnConnect subscribes a callback fired after a connection is registered.
// Subscriptions must happen before Start.
func (s *NetServer) OnConnect(fn func(connID string)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

// OnDisconnect subscribes a callback fired after a connection is removed
// from the registry. Cleanup across modules hangs off this event.
func (s *NetServer) OnDisconnect(fn func(connID string)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onDisconnect = append(s.onDisconnect, fn)
}

// Start binds the listening socket and launches the accept loop. Failure to
// bind is fatal to the caller; it is the one transport error that cannot be
// recovered locally.
func (s *NetServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.addr, err)
	}
	s.listener = listener

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Listening for connections")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	return nil
}

// Addr returns the bound listen address, useful when the configured port is 0.
func (s *NetServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *NetServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			closed := s.closed
			s.mu.RUnlock()

			if closed {
				return
			}

			s.logger.Warn().Err(err).Msg("Accept failed")
			continue
		}

		s.Attach(newTCPFrameConn(conn))
	}
}

// Attach registers a framed stream as a live connection and starts its
// pumps. Both the TCP accept loop and the WebSocket bridge enter here, so
// every transport shares one registry and one router.
func (s *NetServer) Attach(fc frameConn) string {
	id := randx.UUID()

	connLogger := logx.Logger().With().
		Str("connection_id", id).
		Str("remote_addr", fc.RemoteAddr()).
		Logger()

	c := newConn(id, fc, true, connLogger)
	c.onFrame = func(c *Conn, frame protocol.Frame) {
		s.router.Dispatch(c.ID, frame)
	}
	c.onClosed = func(c *Conn) {
		s.unregister(c.ID)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fc.Close()
		return id
	}
	s.conns[id] = c
	s.mu.Unlock()

	connLogger.Info().Msg("Connection accepted")

	// Notify subscribers before frames can arrive, so the authenticator's
	// challenge is the first thing on the wire.
	s.cbMu.RLock()
	for _, fn := range s.onConnect {
		fn(id)
	}
	s.cbMu.RUnlock()

	c.start()

	return id
}

// unregister removes a dead connection and cascades the disconnect event to
// subscribers (session and login invalidation hang off this).
func (s *NetServer) unregister(connID string) {
	s.mu.Lock()
	_, ok := s.conns[connID]
	if ok {
		delete(s.conns, connID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	s.logger.Info().Str("connection_id", connID).Msg("Connection closed")

	s.cbMu.RLock()
	for _, fn := range s.onDisconnect {
		fn(connID)
	}
	s.cbMu.RUnlock()
}

// TrySend delivers one frame to the given connection, reporting success.
func (s *NetServer) TrySend(connID string, frame protocol.Frame) bool {
	s.mu.RLock()
	c, ok := s.conns[connID]
	s.mu.RUnlock()

	if !ok {
		return false
	}

	if err := c.Send(frame); err != nil {
		s.logger.Warn().Err(err).Str("connection_id", connID).Msg("Send failed")
		return false
	}

	return true
}

// Broadcast sends the frame to every registered connection except the
// excluded IDs. Delivery is best-effort per recipient; one failure does not
// abort the rest.
func (s *NetServer) Broadcast(frame protocol.Frame, excludedIDs ...string) {
	excluded := make(map[string]struct{}, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = struct{}{}
	}

	s.mu.RLock()
	targets := make([]*Conn, 0, len(s.conns))
	for id, c := range s.conns {
		if _, skip := excluded[id]; !skip {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(frame); err != nil {
			s.logger.Warn().Err(err).Str("connection_id", c.ID).Msg("Broadcast send failed")
		}
	}
}

// Disconnect closes the given connection. Cleanup runs through the same
// path as a remote disconnect.
func (s *NetServer) Disconnect(connID string) {
	s.mu.RLock()
	c, ok := s.conns[connID]
	s.mu.RUnlock()

	if ok {
		c.Close()
	}
}

// ConnectionIDs returns a snapshot of the currently registered connections.
func (s *NetServer) ConnectionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}

// Stop closes the listener and every live connection, then waits for the
// accept loop to exit.
func (s *NetServer) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	for _, c := range conns {
		c.Close()
	}

	s.wg.Wait()
	s.logger.Info().Msg("Server stopped")
}
