package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"chatwire/internal/protocol"
)

// ModuleName addresses this module on the wire.
const ModuleName = "chat"

// ChatMessagePacket carries a message in both directions: client to server
// with a provisional MessageID, server to clients with the canonical one.
type ChatMessagePacket struct {
	SessionToken string    `json:"sessionToken,omitempty"`
	UUID         string    `json:"uuid"`
	MessageID    string    `json:"messageId"`
	Body         string    `json:"body"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// ChatMessageResponsePacket tells the sender what became of its message.
// OriginalMessageID is always the provisional ID the client sent, so the
// client can find its pending record; NewMessageID is set on success.
type ChatMessageResponsePacket struct {
	Success           bool   `json:"success"`
	OriginalMessageID string `json:"originalMessageId"`
	NewMessageID      string `json:"newMessageId,omitempty"`
	Body              string `json:"body,omitempty"`
	FailureCode       int    `json:"failureCode,omitempty"`
	FailureMessage    string `json:"failureMessage,omitempty"`
}

// ChatHistoryPacket replays the room's recent history, oldest first.
type ChatHistoryPacket struct {
	Messages []ChatMessagePacket `json:"messages"`
}

// DecodePacket decodes a validated frame into one of this module's packet
// types. Callers dispatch on the returned concrete type.
func DecodePacket(frame protocol.Frame) (any, error) {
	switch frame.PacketName() {
	case "ChatMessagePacket":
		var p ChatMessagePacket
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode ChatMessagePacket: %w", err)
		}
		return p, nil

	case "ChatMessageResponsePacket":
		var p ChatMessageResponsePacket
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode ChatMessageResponsePacket: %w", err)
		}
		return p, nil

	case "ChatHistoryPacket":
		var p ChatHistoryPacket
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode ChatHistoryPacket: %w", err)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown chat packet type %q", frame.Type)
	}
}
