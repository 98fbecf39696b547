package transport

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatwire/internal/pkg/logx"
	"chatwire/internal/protocol"
)

// scriptedConn is an in-memory frameConn driven directly by tests.
type scriptedConn struct {
	in  chan protocol.Frame
	out chan protocol.Frame

	closed    atomic.Bool
	closeOnce sync.Once
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		in:  make(chan protocol.Frame, 64),
		out: make(chan protocol.Frame, 64),
	}
}

func (c *scriptedConn) ReadFrame() (protocol.Frame, error) {
	frame, ok := <-c.in
	if !ok {
		return protocol.Frame{}, io.EOF
	}
	return frame, nil
}

func (c *scriptedConn) WriteFrame(frame protocol.Frame) error {
	if c.closed.Load() {
		return io.ErrClosedPipe
	}
	c.out <- frame
	return nil
}

func (c *scriptedConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.in)
	})
	return nil
}

func (c *scriptedConn) RemoteAddr() string {
	return "scripted:0"
}

func testFrame(t *testing.T, name string) protocol.Frame {
	t.Helper()
	frame, err := protocol.NewFrame("chat", name, map[string]string{"n": name})
	require.NoError(t, err)
	return frame
}

func TestConnDeliversFramesInOrder(t *testing.T) {
	fc := newScriptedConn()
	received := make(chan protocol.Frame, 8)

	c := newConn("c1", fc, false, *logx.Logger())
	c.onFrame = func(c *Conn, frame protocol.Frame) {
		received <- frame
	}
	c.onClosed = func(c *Conn) {}
	c.start()
	defer c.Close()

	names := []string{"First", "Second", "Third"}
	for _, name := range names {
		fc.in <- testFrame(t, name)
	}

	for _, name := range names {
		select {
		case frame := <-received:
			assert.Equal(t, name, frame.PacketName())
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for frame %s", name)
		}
	}
}

func TestConnSendReachesWire(t *testing.T) {
	fc := newScriptedConn()

	c := newConn("c1", fc, false, *logx.Logger())
	c.onFrame = func(c *Conn, frame protocol.Frame) {}
	c.onClosed = func(c *Conn) {}
	c.start()
	defer c.Close()

	require.NoError(t, c.Send(testFrame(t, "Ping")))

	select {
	case frame := <-fc.out:
		assert.Equal(t, "Ping", frame.PacketName())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}
}

func TestConnCloseIsIdempotent(t *testing.T) {
	fc := newScriptedConn()

	var closedCount atomic.Int32
	c := newConn("c1", fc, false, *logx.Logger())
	c.onFrame = func(c *Conn, frame protocol.Frame) {}
	c.onClosed = func(c *Conn) {
		closedCount.Add(1)
	}
	c.start()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), closedCount.Load())
	assert.True(t, c.IsClosed())
}

func TestConnCloseFiresWhenRemoteEndDies(t *testing.T) {
	fc := newScriptedConn()

	closed := make(chan struct{})
	c := newConn("c1", fc, false, *logx.Logger())
	c.onFrame = func(c *Conn, frame protocol.Frame) {}
	c.onClosed = func(c *Conn) {
		close(closed)
	}
	c.start()

	// Simulate the remote side going away.
	fc.Close()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("onClosed never fired after remote close")
	}
}

// writeRawBody sends an arbitrary length-prefixed body, bypassing the frame
// encoder so tests can put invalid envelopes on the wire.
func writeRawBody(t *testing.T, w io.Writer, body []byte) {
	t.Helper()
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	_, err := w.Write(append(header[:], body...))
	require.NoError(t, err)
}

func TestConnSurvivesMalformedFrame(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	received := make(chan protocol.Frame, 1)
	c := newConn("c1", newTCPFrameConn(serverSide), false, *logx.Logger())
	c.onFrame = func(c *Conn, frame protocol.Frame) {
		received <- frame
	}
	c.onClosed = func(c *Conn) {}
	c.start()
	defer c.Close()

	// Bodies that read cleanly off the wire but are not valid envelopes.
	writeRawBody(t, clientSide, []byte("{not json"))
	writeRawBody(t, clientSide, []byte(`{"module":"chat","type":"evil.chat.X"}`))

	// The stream is still in sync after each bad body, so the next valid
	// frame must be dispatched on the same connection.
	require.NoError(t, protocol.WriteFrame(clientSide, testFrame(t, "AfterGarbage")))

	select {
	case frame := <-received:
		assert.Equal(t, "AfterGarbage", frame.PacketName())
	case <-time.After(time.Second):
		t.Fatal("frame after malformed body was never dispatched")
	}
	assert.False(t, c.IsClosed())
}

func TestConnClosesOnOversizedFrame(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	closed := make(chan struct{})
	c := newConn("c1", newTCPFrameConn(serverSide), false, *logx.Logger())
	c.onFrame = func(c *Conn, frame protocol.Frame) {}
	c.onClosed = func(c *Conn) {
		close(closed)
	}
	c.start()

	// A length header past the limit cannot be skipped; the connection
	// must come down.
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], protocol.MaxFrameSize+1)
	_, err := clientSide.Write(header[:])
	require.NoError(t, err)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("connection stayed up after oversized frame header")
	}
}

func TestConnSendAfterCloseFails(t *testing.T) {
	fc := newScriptedConn()

	c := newConn("c1", fc, false, *logx.Logger())
	c.onFrame = func(c *Conn, frame protocol.Frame) {}
	c.onClosed = func(c *Conn) {}
	c.start()

	c.Close()

	assert.Error(t, c.Send(testFrame(t, "Late")))
}
