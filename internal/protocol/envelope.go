/*
Package protocol defines the module-agnostic wire format shared by every
feature module.

Every frame on the wire is a length-prefixed JSON envelope carrying a module
name, a self-describing type URL, and the packet payload. The router uses the
type URL namespace to defend each module from envelopes that do not belong
to it; the module itself decodes the payload into its own closed set of
packet types.
*/
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// TypeURLPrefix roots every packet type URL ("chatwire.<module>.<Packet>").
	TypeURLPrefix = "chatwire"

	// MaxFrameSize is the maximum allowed size of a single encoded frame body.
	MaxFrameSize = 64 * 1024

	// lengthPrefixSize is the size of the big-endian frame length prefix.
	lengthPrefixSize = 4
)

// ErrTooLarge reports a frame whose declared length exceeds MaxFrameSize.
// The body is never consumed, so the stream cannot be resynchronized past
// it and the connection must close.
var ErrTooLarge = errors.New("frame exceeds maximum size")

// DecodeError marks a frame body that was fully consumed off the stream
// but could not be parsed into a valid envelope. The stream itself is
// still in sync, so the transport may discard the frame and keep reading.
type DecodeError struct {
	err error
}

func (e *DecodeError) Error() string { return e.err.Error() }

func (e *DecodeError) Unwrap() error { return e.err }

// Frame is the envelope wrapped around every message on the wire.
type Frame struct {
	// Module addresses the feature handler the payload belongs to.
	Module string `json:"module"`

	// Type is the packet type URL, "chatwire.<module>.<PacketName>".
	Type string `json:"type"`

	// Payload is the serialized packet body.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TypeURL builds the type URL for a packet of the given module.
func TypeURL(module, packetName string) string {
	return fmt.Sprintf("%s.%s.%s", TypeURLPrefix, module, packetName)
}

// PacketName extracts the bare packet name from the frame's type URL.
func (f Frame) PacketName() string {
	idx := strings.LastIndexByte(f.Type, '.')
	if idx < 0 {
		return f.Type
	}
	return f.Type[idx+1:]
}

// BelongsTo reports whether the frame's type URL lives in the given module's
// namespace. Handlers never see frames for which this is false.
func (f Frame) BelongsTo(module string) bool {
	return strings.HasPrefix(f.Type, TypeURLPrefix+"."+module+".")
}

// NewFrame marshals the packet and wraps it in a frame addressed to the
// given module.
func NewFrame(module, packetName string, packet any) (Frame, error) {
	payload, err := json.Marshal(packet)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal %s payload: %w", packetName, err)
	}

	return Frame{
		Module:  module,
		Type:    TypeURL(module, packetName),
		Payload: payload,
	}, nil
}

// WriteFrame encodes the frame and writes it as one length-prefixed record.
// The caller is responsible for serializing concurrent writers.
func WriteFrame(w io.Writer, frame Frame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d: %w", len(body), MaxFrameSize, ErrTooLarge)
	}

	buf := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(buf[:lengthPrefixSize], uint32(len(body)))
	copy(buf[lengthPrefixSize:], body)

	if _, err := w.Write(buf); err != nil {
		return err
	}

	return nil
}

// ReadFrame reads one length-prefixed frame from the reader. It blocks until
// a full frame arrives or the reader fails.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return Frame{}, &DecodeError{err: errors.New("zero-length frame")}
	}
	if length > MaxFrameSize {
		return Frame{}, fmt.Errorf("frame of %d bytes exceeds limit of %d: %w", length, MaxFrameSize, ErrTooLarge)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}

	return DecodeFrame(body)
}

// DecodeFrame parses a raw frame body into a Frame, enforcing the envelope
// invariants (module present, type URL present and rooted in our prefix).
// Every failure is a *DecodeError: the bytes are already off the stream, so
// the caller can drop the frame without losing framing.
func DecodeFrame(body []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(body, &frame); err != nil {
		return Frame{}, &DecodeError{err: fmt.Errorf("failed to decode frame: %w", err)}
	}

	if frame.Module == "" {
		return Frame{}, &DecodeError{err: errors.New("frame is missing a module name")}
	}
	if !strings.HasPrefix(frame.Type, TypeURLPrefix+".") {
		return Frame{}, &DecodeError{err: fmt.Errorf("frame type %q is outside the %s namespace", frame.Type, TypeURLPrefix)}
	}

	return frame, nil
}

// EncodeFrame marshals a frame body without the length prefix. Used by
// transports that carry their own message boundaries (WebSocket).
func EncodeFrame(frame Frame) ([]byte, error) {
	body, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	if len(body) > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d: %w", len(body), MaxFrameSize, ErrTooLarge)
	}

	return body, nil
}
