/*
Package transport owns the network layer: framed connections, the module
router, the server-side connection registry, and the client dialer.

This file bridges WebSocket clients into the same pipeline as TCP clients.
Each binary WebSocket message carries exactly one encoded frame; the adapter
satisfies the frameConn interface, so the registry, the router, and every
feature module are oblivious to the transport underneath.
*/
package transport

import (
	"net/http"

	"github.com/gorilla/websocket"

	"chatwire/internal/pkg/logx"
	"chatwire/internal/protocol"
)

// wsFrameConn adapts a WebSocket connection to the frameConn interface.
type wsFrameConn struct {
	conn *websocket.Conn
}

func (w *wsFrameConn) ReadFrame() (protocol.Frame, error) {
	_, body, err := w.conn.ReadMessage()
	if err != nil {
		return protocol.Frame{}, err
	}

	// A message that fails DecodeFrame comes back as a *protocol.DecodeError;
	// message boundaries are intact, so the read loop discards it and the
	// connection survives.
	return protocol.DecodeFrame(body)
}

func (w *wsFrameConn) WriteFrame(frame protocol.Frame) error {
	body, err := protocol.EncodeFrame(frame)
	if err != nil {
		return err
	}

	return w.conn.WriteMessage(websocket.BinaryMessage, body)
}

func (w *wsFrameConn) Close() error {
	return w.conn.Close()
}

func (w *wsFrameConn) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}

// WSHandler returns an http.Handler that upgrades requests and attaches the
// resulting WebSocket connection to the server's registry. allowedOrigins
// restricts browsers in production; an empty list admits any origin
// (development).
func WSHandler(s *NetServer, allowedOrigins []string) http.Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = struct{}{}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := origins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Warn("WebSocket upgrade failed.", "remote_addr", r.RemoteAddr, "error", err.Error())
			return
		}

		wsConn.SetReadLimit(protocol.MaxFrameSize)

		s.Attach(&wsFrameConn{conn: wsConn})
	})
}
