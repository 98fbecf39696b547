/*
This file defines the ServerChat: it accepts messages from logged-in
senders, mints canonical IDs, broadcasts to every other logged-in
connection, and replays the bounded history to each fresh login.
*/
package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatwire/internal/configs"
	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/randx"
	"chatwire/internal/protocol"
	"chatwire/internal/transport"
)

// Authenticator gates messages behind the session handshake.
type Authenticator interface {
	IsAuthenticated(connID, sessionToken string) bool
}

// UserRegistry is the slice of the login registry the chat room uses.
type UserRegistry interface {
	IsLoggedIn(connID, uuid string) bool
	GetConnections() []string
	OnLogin(fn func(connID, uuid string))
}

// Registrar is the handler surface the chat room binds to.
type Registrar interface {
	RegisterHandler(module string, handler transport.Handler) error
}

// ServerChat is the chat room: one shared history, every logged-in
// connection a participant.
type ServerChat struct {
	server transport.Sender
	authn  Authenticator
	users  UserRegistry
	store  HistoryStore
	cfg    *configs.AppConfig

	mu      sync.RWMutex
	history []ChatMessage

	logger zerolog.Logger
}

// NewServerChat constructs the room, loads persisted history, and binds to
// the transport. A corrupt history store fails construction.
func NewServerChat(server transport.Sender, registrar Registrar, authn Authenticator, users UserRegistry, store HistoryStore, cfg *configs.AppConfig) (*ServerChat, error) {
	history, err := store.Load()
	if err != nil {
		return nil, err
	}
	if len(history) > cfg.HistoryCapacity {
		history = history[len(history)-cfg.HistoryCapacity:]
	}

	c := &ServerChat{
		server:  server,
		authn:   authn,
		users:   users,
		store:   store,
		cfg:     cfg,
		history: history,
		logger:  logx.Logger().With().Str("component", "ServerChat").Logger(),
	}

	if err := registrar.RegisterHandler(ModuleName, c.handleFrame); err != nil {
		return nil, err
	}
	users.OnLogin(c.handleLogin)

	return c, nil
}

func (c *ServerChat) handleFrame(connID string, frame protocol.Frame) {
	packet, err := DecodePacket(frame)
	if err != nil {
		c.logger.Warn().Err(err).Str("connection_id", connID).Msg("Discarding undecodable chat packet")
		return
	}

	switch p := packet.(type) {
	case ChatMessagePacket:
		c.handleMessage(connID, p)
	default:
		c.logger.Debug().
			Str("connection_id", connID).
			Str("type", frame.Type).
			Msg("Ignoring unexpected chat packet")
	}
}

// handleMessage validates, accepts, and broadcasts one inbound message.
// Every failure answers the sender with its provisional ID so the local
// echo can be marked denied.
func (c *ServerChat) handleMessage(connID string, p ChatMessagePacket) {
	if !c.authn.IsAuthenticated(connID, p.SessionToken) {
		c.sendFailure(connID, p.MessageID, errs.ErrNotAuthenticated)
		return
	}
	if !c.users.IsLoggedIn(connID, p.UUID) {
		c.sendFailure(connID, p.MessageID, errs.ErrNotLoggedIn)
		return
	}

	body := Sanitize(p.Body)
	if body == "" {
		c.sendFailure(connID, p.MessageID, errs.ErrMessageEmpty)
		return
	}
	if len(body) > c.cfg.MaxMessageBytes {
		c.sendFailure(connID, p.MessageID, errs.ErrMessageContentTooLong)
		return
	}

	msg := ChatMessage{
		MessageID:  randx.UUID(),
		SenderUUID: p.UUID,
		Body:       body,
		Timestamp:  time.Now().UTC(),
	}

	c.mu.Lock()
	c.history = append(c.history, msg)
	if len(c.history) > c.cfg.HistoryCapacity {
		c.history = c.history[len(c.history)-c.cfg.HistoryCapacity:]
	}
	c.mu.Unlock()

	c.sendResponse(connID, ChatMessageResponsePacket{
		Success:           true,
		OriginalMessageID: p.MessageID,
		NewMessageID:      msg.MessageID,
		Body:              msg.Body,
	})

	c.broadcast(msg, connID)
}

// broadcast fans the accepted message out to every logged-in connection
// except the sender. Delivery is best effort per recipient.
func (c *ServerChat) broadcast(msg ChatMessage, senderConnID string) {
	frame, err := protocol.NewFrame(ModuleName, "ChatMessagePacket", messageToPacket(msg))
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build broadcast ChatMessagePacket")
		return
	}

	for _, connID := range c.users.GetConnections() {
		if connID == senderConnID {
			continue
		}
		if !c.server.TrySend(connID, frame) {
			c.logger.Warn().Str("connection_id", connID).Msg("Failed to deliver chat message")
		}
	}
}

// handleLogin replays the room's history to a freshly logged-in
// connection, oldest first, after the login response already went out.
func (c *ServerChat) handleLogin(connID, uuid string) {
	c.mu.RLock()
	packets := make([]ChatMessagePacket, 0, len(c.history))
	for _, msg := range c.history {
		packets = append(packets, messageToPacket(msg))
	}
	c.mu.RUnlock()

	frame, err := protocol.NewFrame(ModuleName, "ChatHistoryPacket", ChatHistoryPacket{Messages: packets})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build ChatHistoryPacket")
		return
	}

	if !c.server.TrySend(connID, frame) {
		c.logger.Warn().Str("connection_id", connID).Msg("Failed to replay chat history")
	}
}

func (c *ServerChat) sendFailure(connID, originalMessageID string, failureCode int) {
	c.sendResponse(connID, ChatMessageResponsePacket{
		Success:           false,
		OriginalMessageID: originalMessageID,
		FailureCode:       failureCode,
		FailureMessage:    errs.NewError(failureCode).Message,
	})
}

func (c *ServerChat) sendResponse(connID string, p ChatMessageResponsePacket) {
	frame, err := protocol.NewFrame(ModuleName, "ChatMessageResponsePacket", p)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build ChatMessageResponsePacket")
		return
	}

	if !c.server.TrySend(connID, frame) {
		c.logger.Warn().Str("connection_id", connID).Msg("Failed to send ChatMessageResponsePacket")
	}
}

// Announce injects a server-originated message into the room: it enters
// the history and reaches every logged-in connection. The sender UUID is
// empty, which no client identity can claim.
func (c *ServerChat) Announce(body string) (ChatMessage, error) {
	body = Sanitize(body)
	if body == "" {
		return ChatMessage{}, errs.NewError(errs.ErrMessageEmpty)
	}
	if len(body) > c.cfg.MaxMessageBytes {
		return ChatMessage{}, errs.NewError(errs.ErrMessageContentTooLong)
	}

	msg := ChatMessage{
		MessageID: randx.UUID(),
		Body:      body,
		Timestamp: time.Now().UTC(),
	}

	c.mu.Lock()
	c.history = append(c.history, msg)
	if len(c.history) > c.cfg.HistoryCapacity {
		c.history = c.history[len(c.history)-c.cfg.HistoryCapacity:]
	}
	c.mu.Unlock()

	c.broadcast(msg, "")
	return msg, nil
}

// History returns a copy of the room's current history, oldest first.
func (c *ServerChat) History() []ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ChatMessage, len(c.history))
	copy(out, c.history)
	return out
}

// Close checkpoints the history to its store.
func (c *ServerChat) Close() error {
	return c.store.Save(c.History())
}

func messageToPacket(msg ChatMessage) ChatMessagePacket {
	return ChatMessagePacket{
		UUID:      msg.SenderUUID,
		MessageID: msg.MessageID,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
	}
}
