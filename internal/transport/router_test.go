package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatwire/internal/protocol"
)

func TestRegisterHandlerRejectsDuplicate(t *testing.T) {
	r := NewRouter()

	require.NoError(t, r.RegisterHandler("chat", func(connID string, frame protocol.Frame) {}))
	assert.Error(t, r.RegisterHandler("chat", func(connID string, frame protocol.Frame) {}))
}

func TestDispatchRoutesToRegisteredModule(t *testing.T) {
	r := NewRouter()

	var gotConnID string
	var gotFrame protocol.Frame
	require.NoError(t, r.RegisterHandler("chat", func(connID string, frame protocol.Frame) {
		gotConnID = connID
		gotFrame = frame
	}))

	frame := protocol.Frame{Module: "chat", Type: protocol.TypeURL("chat", "ChatMessagePacket")}
	r.Dispatch("c1", frame)

	assert.Equal(t, "c1", gotConnID)
	assert.Equal(t, frame.Type, gotFrame.Type)
}

func TestDispatchDiscardsUnregisteredModule(t *testing.T) {
	r := NewRouter()

	called := false
	require.NoError(t, r.RegisterHandler("chat", func(connID string, frame protocol.Frame) {
		called = true
	}))

	r.Dispatch("c1", protocol.Frame{Module: "users", Type: protocol.TypeURL("users", "LoginPacket")})
	assert.False(t, called)
}

func TestDispatchDiscardsNamespaceMismatch(t *testing.T) {
	r := NewRouter()

	called := false
	require.NoError(t, r.RegisterHandler("chat", func(connID string, frame protocol.Frame) {
		called = true
	}))

	// Addressed to chat but carrying another module's packet type.
	r.Dispatch("c1", protocol.Frame{Module: "chat", Type: protocol.TypeURL("auth", "CredentialsPacket")})
	assert.False(t, called)
}
