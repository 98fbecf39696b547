package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeURL(t *testing.T) {
	assert.Equal(t, "chatwire.chat.ChatMessagePacket", TypeURL("chat", "ChatMessagePacket"))
}

func TestPacketName(t *testing.T) {
	f := Frame{Type: "chatwire.auth.HelloPacket"}
	assert.Equal(t, "HelloPacket", f.PacketName())

	f = Frame{Type: "bare"}
	assert.Equal(t, "bare", f.PacketName())
}

func TestBelongsTo(t *testing.T) {
	f := Frame{Module: "chat", Type: "chatwire.chat.ChatMessagePacket"}
	assert.True(t, f.BelongsTo("chat"))
	assert.False(t, f.BelongsTo("auth"))

	// A type merely prefixed with another module's name must not match.
	f = Frame{Module: "chat", Type: "chatwire.chatty.ChatMessagePacket"}
	assert.False(t, f.BelongsTo("chat"))
}

func TestWriteReadRoundTrip(t *testing.T) {
	type payload struct {
		Value string `json:"value"`
	}

	frame, err := NewFrame("chat", "ChatMessagePacket", payload{Value: "hello"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, frame))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)

	assert.Equal(t, frame.Module, got.Module)
	assert.Equal(t, frame.Type, got.Type)
	assert.JSONEq(t, string(frame.Payload), string(got.Payload))
}

func TestReadFramePreservesOrder(t *testing.T) {
	var buf bytes.Buffer
	for _, name := range []string{"First", "Second", "Third"} {
		frame, err := NewFrame("chat", name, map[string]string{"n": name})
		require.NoError(t, err)
		require.NoError(t, WriteFrame(&buf, frame))
	}

	for _, name := range []string{"First", "Second", "Third"} {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, name, got.PacketName())
	}
}

func TestWriteFrameRejectsOversize(t *testing.T) {
	frame, err := NewFrame("chat", "ChatMessagePacket", map[string]string{
		"body": strings.Repeat("x", MaxFrameSize),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	assert.Error(t, WriteFrame(&buf, frame))
}

func TestReadFrameRejectsOversizeHeader(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
	buf.Write(header[:])

	_, err := ReadFrame(&buf)
	require.Error(t, err)

	// The body was never consumed, so this is not a recoverable decode
	// failure: the stream is lost.
	assert.True(t, errors.Is(err, ErrTooLarge))
	var decodeErr *DecodeError
	assert.False(t, errors.As(err, &decodeErr))
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0})

	_, err := ReadFrame(buf)
	require.Error(t, err)

	// No body to consume, so the stream is still in sync.
	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestDecodeFrameValidatesEnvelope(t *testing.T) {
	bad := [][]byte{
		[]byte("not json"),
		[]byte(`{"type":"chatwire.chat.X"}`),           // missing module
		[]byte(`{"module":"chat","type":"evil.chat.X"}`), // foreign namespace
	}
	for _, body := range bad {
		_, err := DecodeFrame(body)
		require.Error(t, err, "body %q", body)

		// Every envelope violation is recoverable: the body is already off
		// the stream.
		var decodeErr *DecodeError
		assert.True(t, errors.As(err, &decodeErr), "body %q", body)
	}

	frame, err := DecodeFrame([]byte(`{"module":"chat","type":"chatwire.chat.X","payload":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "chat", frame.Module)
}
