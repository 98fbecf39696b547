/*
Package chat implements the public chat room: the server-side broadcast and
bounded history, and the client-side message list with optimistic local
echo and pending/confirmed/denied tracking.
*/
package chat

import "time"

// ChatMessage is the canonical, server-accepted form of a message.
type ChatMessage struct {
	// MessageID is the server-minted UUID; clients replace their
	// provisional IDs with it on confirmation.
	MessageID string `json:"messageId"`

	// SenderUUID is the identity that sent the message.
	SenderUUID string `json:"senderUuid"`

	// Body is the sanitized message text.
	Body string `json:"body"`

	// Timestamp is the server receipt time, UTC.
	Timestamp time.Time `json:"timestamp"`
}

// MessageStatus tracks a client-side message through the optimistic echo
// cycle.
type MessageStatus int

const (
	// StatusPending means the message was echoed locally and is awaiting
	// the server's verdict.
	StatusPending MessageStatus = iota

	// StatusConfirmed means the server accepted the message.
	StatusConfirmed

	// StatusDenied means the server rejected the message; it stays visible
	// so the sender can see what failed.
	StatusDenied
)

// ClientChatMessage is a message as the client tracks it, status included.
type ClientChatMessage struct {
	Message ChatMessage
	Status  MessageStatus
}
