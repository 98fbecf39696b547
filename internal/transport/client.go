/*
Package transport owns the network layer: framed connections, the module
router, the server-side connection registry, and the client dialer.

This file defines the NetClient, the client-side counterpart of NetServer:
one framed connection to the server, the same Router for inbound dispatch,
and disconnect notification for session-scoped cleanup.
*/
package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/randx"
	"chatwire/internal/protocol"
)

// dialTimeout bounds how long Connect waits for the TCP handshake.
const dialTimeout = 10 * time.Second

// NetClient maintains one connection to a server and dispatches inbound
// frames through a Router.
type NetClient struct {
	router *Router

	mu   sync.RWMutex
	conn *Conn

	cbMu         sync.RWMutex
	onDisconnect []func()

	logger zerolog.Logger
}

// NewNetClient constructs a disconnected NetClient. Modules register their
// handlers before Connect is called.
func NewNetClient() *NetClient {
	return &NetClient{
		router: NewRouter(),
		logger: logx.Logger().With().Str("component", "NetClient").Logger(),
	}
}

// RegisterHandler binds a module handler on the client's router.
func (c *NetClient) RegisterHandler(module string, handler Handler) error {
	return c.router.RegisterHandler(module, handler)
}

// OnDisconnect subscribes a callback fired once when the connection dies.
// Client modules clear their session-scoped state here.
func (c *NetClient) OnDisconnect(fn func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// Connect dials the server. An existing connection is closed first.
func (c *NetClient) Connect(addr string) error {
	c.Disconnect()

	netConn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	id := randx.UUID()
	connLogger := logx.Logger().With().
		Str("connection_id", id).
		Str("server_addr", addr).
		Logger()

	conn := newConn(id, newTCPFrameConn(netConn), false, connLogger)
	conn.onFrame = func(conn *Conn, frame protocol.Frame) {
		c.router.Dispatch(conn.ID, frame)
	}
	conn.onClosed = func(conn *Conn) {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()

		c.cbMu.RLock()
		for _, fn := range c.onDisconnect {
			fn()
		}
		c.cbMu.RUnlock()
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.start()
	connLogger.Info().Msg("Connected to server")

	return nil
}

// Connected reports whether a live connection exists.
func (c *NetClient) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Send queues a frame for the server. It fails locally when disconnected.
func (c *NetClient) Send(frame protocol.Frame) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	return conn.Send(frame)
}

// Disconnect closes the current connection, if any.
func (c *NetClient) Disconnect() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil {
		conn.Close()
	}
}
