/*
This file defines the ClientChat: the local message list with optimistic
echo. A sent message appears immediately as Pending under a provisional ID;
the server's response either promotes it to Confirmed under the canonical
ID or marks it Denied in place.
*/
package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/randx"
	"chatwire/internal/protocol"
	"chatwire/internal/transport"
)

// sessionSource is the slice of the client authenticator the chat needs.
type sessionSource interface {
	Authenticated() bool
	SessionToken() string
}

// loginSource is the slice of the client user manager the chat needs.
type loginSource interface {
	LoggedIn() bool
	UUID() string
}

// ClientChat holds the client's view of the room.
type ClientChat struct {
	client *transport.NetClient
	authn  sessionSource
	users  loginSource

	mu       sync.RWMutex
	messages []ClientChatMessage

	// pendingIndex maps a provisional message ID to its slot in messages
	// until the server's verdict arrives.
	pendingIndex map[string]int

	// countAtLastCheck is the high-water mark for unread counting: the
	// list length the last time Messages was read.
	countAtLastCheck int

	cbMu       sync.RWMutex
	onReceived []func(msg ChatMessage)

	logger zerolog.Logger
}

// NewClientChat constructs the client chat and binds it to the transport.
// The message list clears on disconnect; history is replayed at next login.
func NewClientChat(client *transport.NetClient, authn sessionSource, users loginSource) (*ClientChat, error) {
	c := &ClientChat{
		client:       client,
		authn:        authn,
		users:        users,
		pendingIndex: make(map[string]int),
		logger:       logx.Logger().With().Str("component", "ClientChat").Logger(),
	}

	if err := client.RegisterHandler(ModuleName, c.handleFrame); err != nil {
		return nil, err
	}
	client.OnDisconnect(c.handleDisconnect)

	return c, nil
}

// OnChatMessageReceived subscribes a callback fired for each message
// arriving from another user.
func (c *ClientChat) OnChatMessageReceived(fn func(msg ChatMessage)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onReceived = append(c.onReceived, fn)
}

// Send submits a message and echoes it locally as Pending. The returned
// provisional ID identifies the local record until the server's verdict
// rebinds it.
func (c *ClientChat) Send(body string) (string, error) {
	if Sanitize(body) == "" {
		return "", errs.NewError(errs.ErrMessageEmpty)
	}
	if !c.authn.Authenticated() {
		return "", errs.NewError(errs.ErrNotAuthenticated)
	}
	if !c.users.LoggedIn() {
		return "", errs.NewError(errs.ErrNotLoggedIn)
	}

	provisionalID := randx.UUID()
	msg := ChatMessage{
		MessageID:  provisionalID,
		SenderUUID: c.users.UUID(),
		Body:       body,
		Timestamp:  time.Now().UTC(),
	}

	p := ChatMessagePacket{
		SessionToken: c.authn.SessionToken(),
		UUID:         msg.SenderUUID,
		MessageID:    provisionalID,
		Body:         body,
	}

	frame, err := protocol.NewFrame(ModuleName, "ChatMessagePacket", p)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.pendingIndex[provisionalID] = len(c.messages)
	c.messages = append(c.messages, ClientChatMessage{Message: msg, Status: StatusPending})
	c.mu.Unlock()

	if err := c.client.Send(frame); err != nil {
		// Never echoed to the server; drop the optimistic record again.
		c.mu.Lock()
		if idx, ok := c.pendingIndex[provisionalID]; ok {
			delete(c.pendingIndex, provisionalID)
			c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
			c.reindexPendingLocked()
		}
		c.mu.Unlock()
		return "", err
	}

	return provisionalID, nil
}

func (c *ClientChat) handleDisconnect() {
	c.mu.Lock()
	c.messages = nil
	c.pendingIndex = make(map[string]int)
	c.countAtLastCheck = 0
	c.mu.Unlock()
}

func (c *ClientChat) handleFrame(connID string, frame protocol.Frame) {
	packet, err := DecodePacket(frame)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Discarding undecodable chat packet")
		return
	}

	switch p := packet.(type) {
	case ChatMessagePacket:
		c.handleIncoming(p)
	case ChatMessageResponsePacket:
		c.handleResponse(p)
	case ChatHistoryPacket:
		c.handleHistory(p)
	default:
		c.logger.Debug().Str("type", frame.Type).Msg("Ignoring unexpected chat packet")
	}
}

// handleIncoming appends a broadcast message from another user.
func (c *ClientChat) handleIncoming(p ChatMessagePacket) {
	msg := ChatMessage{
		MessageID:  p.MessageID,
		SenderUUID: p.UUID,
		Body:       p.Body,
		Timestamp:  p.Timestamp,
	}

	c.mu.Lock()
	c.messages = append(c.messages, ClientChatMessage{Message: msg, Status: StatusConfirmed})
	c.mu.Unlock()

	c.cbMu.RLock()
	for _, fn := range c.onReceived {
		fn(msg)
	}
	c.cbMu.RUnlock()
}

// handleResponse resolves a pending record by its provisional ID. A
// response for an ID we are not waiting on is logged and ignored.
func (c *ClientChat) handleResponse(p ChatMessageResponsePacket) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.pendingIndex[p.OriginalMessageID]
	if !ok {
		c.logger.Warn().
			Str("original_message_id", p.OriginalMessageID).
			Msg("Response for unknown pending message")
		return
	}
	delete(c.pendingIndex, p.OriginalMessageID)

	record := &c.messages[idx]
	if p.Success {
		record.Message.MessageID = p.NewMessageID
		record.Message.Body = p.Body
		record.Status = StatusConfirmed
		return
	}

	// Denied messages keep the body the user typed so they can see what
	// was rejected.
	record.Status = StatusDenied
	c.logger.Warn().
		Str("message_id", record.Message.MessageID).
		Int("failure_code", p.FailureCode).
		Str("failure_message", p.FailureMessage).
		Msg("Message denied by server")
}

// handleHistory appends the server's replay, oldest first, all Confirmed.
func (c *ClientChat) handleHistory(p ChatHistoryPacket) {
	c.mu.Lock()
	for _, pkt := range p.Messages {
		c.messages = append(c.messages, ClientChatMessage{
			Message: ChatMessage{
				MessageID:  pkt.MessageID,
				SenderUUID: pkt.UUID,
				Body:       pkt.Body,
				Timestamp:  pkt.Timestamp,
			},
			Status: StatusConfirmed,
		})
	}
	c.mu.Unlock()

	c.logger.Info().Int("count", len(p.Messages)).Msg("Chat history replayed")
}

// reindexPendingLocked rebuilds pendingIndex after a removal shifted the
// slice. Callers hold mu.
func (c *ClientChat) reindexPendingLocked() {
	for id := range c.pendingIndex {
		delete(c.pendingIndex, id)
	}
	for i, rec := range c.messages {
		if rec.Status == StatusPending {
			c.pendingIndex[rec.Message.MessageID] = i
		}
	}
}

// Messages returns a copy of the message list and marks everything read.
func (c *ClientChat) Messages() []ClientChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ClientChatMessage, len(c.messages))
	copy(out, c.messages)
	c.countAtLastCheck = len(c.messages)
	return out
}

// UnreadCount reports how many messages arrived since Messages was last
// read.
func (c *ClientChat) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages) - c.countAtLastCheck
}

// GetUnreadCountExcluding reports the unread count, not counting messages
// sent by the given identities. Used to skip the user's own echoes.
func (c *ClientChat) GetUnreadCountExcluding(excludedUUIDs ...string) int {
	excluded := make(map[string]struct{}, len(excludedUUIDs))
	for _, uuid := range excludedUUIDs {
		excluded[uuid] = struct{}{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, rec := range c.messages[c.countAtLastCheck:] {
		if _, skip := excluded[rec.Message.SenderUUID]; !skip {
			count++
		}
	}
	return count
}
