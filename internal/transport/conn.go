/*
Package transport owns the network layer: framed connections, the module
router, the server-side connection registry, and the client dialer.

This file defines the Conn struct, one live framed connection. It manages the
connection's lifecycle and its read/write loops. Inbound frames are delivered
synchronously in arrival order; outbound frames are serialized through a
buffered send channel so two sends never interleave on the wire.
*/
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chatwire/internal/pkg/errs"
	"chatwire/internal/protocol"
)

const (
	// sendQueueSize is the capacity of the per-connection outbound queue.
	sendQueueSize = 256

	// inboundFrameRate is the sustained number of inbound frames allowed per
	// second on one connection.
	inboundFrameRate = 20

	// inboundFrameBurst is the burst capacity of the inbound frame limiter.
	inboundFrameBurst = 40
)

// frameConn abstracts one framed byte stream. The TCP implementation uses a
// length prefix; the WebSocket bridge maps one frame per message.
type frameConn interface {
	ReadFrame() (protocol.Frame, error)
	WriteFrame(protocol.Frame) error
	Close() error
	RemoteAddr() string
}

// tcpFrameConn carries frames over a raw TCP stream with a length prefix.
type tcpFrameConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newTCPFrameConn(conn net.Conn) *tcpFrameConn {
	return &tcpFrameConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

func (t *tcpFrameConn) ReadFrame() (protocol.Frame, error) {
	return protocol.ReadFrame(t.reader)
}

func (t *tcpFrameConn) WriteFrame(frame protocol.Frame) error {
	return protocol.WriteFrame(t.conn, frame)
}

func (t *tcpFrameConn) Close() error {
	return t.conn.Close()
}

func (t *tcpFrameConn) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// Conn represents one live connection identified by a server-assigned ID.
// A Conn has no identity of its own until the authenticator grants one.
type Conn struct {
	// ID is the opaque connection identifier. Never reused.
	ID string

	fc frameConn

	// send queues outbound frames for the write loop.
	send chan protocol.Frame

	// limiter bounds the inbound frame rate; nil disables limiting
	// (client side).
	limiter *rate.Limiter

	// onFrame receives every inbound frame in arrival order.
	onFrame func(c *Conn, frame protocol.Frame)

	// onClosed fires exactly once when the connection dies, regardless of
	// which side initiated closure.
	onClosed func(c *Conn)

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	logger zerolog.Logger
}

// newConn wraps a framed stream into a managed connection. The caller must
// set onFrame/onClosed before calling start.
func newConn(id string, fc frameConn, limited bool, logger zerolog.Logger) *Conn {
	c := &Conn{
		ID:     id,
		fc:     fc,
		send:   make(chan protocol.Frame, sendQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}

	if limited {
		c.limiter = rate.NewLimiter(rate.Limit(inboundFrameRate), inboundFrameBurst)
	}

	return c
}

// start launches the connection's read and write loops.
func (c *Conn) start() {
	c.wg.Add(2)

	go func() {
		defer c.wg.Done()
		c.readPump()
	}()

	go func() {
		defer c.wg.Done()
		c.writePump()
	}()
}

// readPump reads frames until the connection fails, dispatching each one
// synchronously so per-connection arrival order is preserved. A frame body
// that was consumed but cannot be decoded leaves the stream in sync, so it
// is logged and discarded without touching the connection.
func (c *Conn) readPump() {
	defer c.Close()

	for {
		frame, err := c.fc.ReadFrame()
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				c.logger.Warn().
					Err(err).
					Int("code", errs.ErrInvalidFrame).
					Msg("Discarding malformed frame")
				continue
			}
			if errors.Is(err, protocol.ErrTooLarge) {
				c.logger.Warn().
					Err(err).
					Int("code", errs.ErrFrameTooLarge).
					Msg("Oversized frame, closing connection")
				return
			}
			if !c.closed.Load() {
				c.logger.Debug().Err(err).Msg("Read loop finished")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warn().
				Str("module", frame.Module).
				Int("code", errs.ErrRateLimitExceeded).
				Msg("Inbound frame rate limit exceeded, discarding frame")
			continue
		}

		c.onFrame(c, frame)
	}
}

// writePump drains the send queue onto the wire. It is the only goroutine
// that writes, which keeps each frame's bytes contiguous.
func (c *Conn) writePump() {
	for {
		select {
		case frame := <-c.send:
			if err := c.fc.WriteFrame(frame); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed, closing connection")
				c.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}

// Send queues a frame for delivery. It fails locally when the connection is
// closed or the outbound queue is full; it never blocks on the network.
func (c *Conn) Send(frame protocol.Frame) error {
	if c.closed.Load() {
		return fmt.Errorf("connection %s is closed", c.ID)
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, dropping frame")
		return fmt.Errorf("send queue full for connection %s", c.ID)
	}
}

// Close tears the connection down. It is idempotent and safe to call from
// the read loop, the write loop, or any application thread; the onClosed
// callback fires exactly once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		if err := c.fc.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error")
		}

		if c.onClosed != nil {
			c.onClosed(c)
		}
	})
}

// IsClosed reports whether the connection has been torn down.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// RemoteAddr returns the remote address of the connection.
func (c *Conn) RemoteAddr() string {
	return c.fc.RemoteAddr()
}
