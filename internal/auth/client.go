/*
Package auth implements the authentication handshake shared by server and
client: the per-connection state machine, session token issuance, and the
IsAuthenticated gate every other module consults before trusting a request.

This file defines the ClientAuthenticator, which answers the server's
challenge with the configured credentials and holds the session token for
the other client modules.
*/
package auth

import (
	"sync"

	"github.com/rs/zerolog"

	"chatwire/internal/pkg/logx"
	"chatwire/internal/protocol"
	"chatwire/internal/transport"
)

// Credentials holds what the client offers when challenged. AuthType may be
// left empty to follow whatever the server advertises.
type Credentials struct {
	AuthType  string
	ClientKey string
	Username  string
	Password  string
}

// ClientAuthenticator drives the client side of the handshake.
type ClientAuthenticator struct {
	client *transport.NetClient
	creds  Credentials

	mu                sync.RWMutex
	authenticated     bool
	sessionToken      string
	serverName        string
	serverDescription string

	cbMu            sync.RWMutex
	onAuthenticated []func(sessionToken string)
	onRejected      []func(failureCode int, message string)

	logger zerolog.Logger
}

// NewClientAuthenticator constructs the authenticator and binds it to the
// client transport. Session state clears automatically on disconnect.
func NewClientAuthenticator(client *transport.NetClient, creds Credentials) (*ClientAuthenticator, error) {
	a := &ClientAuthenticator{
		client: client,
		creds:  creds,
		logger: logx.Logger().With().Str("component", "ClientAuthenticator").Logger(),
	}

	if err := client.RegisterHandler(ModuleName, a.handleFrame); err != nil {
		return nil, err
	}
	client.OnDisconnect(a.handleDisconnect)

	return a, nil
}

// OnAuthenticated subscribes a callback fired when the handshake succeeds.
func (a *ClientAuthenticator) OnAuthenticated(fn func(sessionToken string)) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()
	a.onAuthenticated = append(a.onAuthenticated, fn)
}

// OnRejected subscribes a callback fired when the server rejects the
// handshake.
func (a *ClientAuthenticator) OnRejected(fn func(failureCode int, message string)) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()
	a.onRejected = append(a.onRejected, fn)
}

func (a *ClientAuthenticator) handleDisconnect() {
	a.mu.Lock()
	a.authenticated = false
	a.sessionToken = ""
	a.serverName = ""
	a.serverDescription = ""
	a.mu.Unlock()
}

func (a *ClientAuthenticator) handleFrame(connID string, frame protocol.Frame) {
	packet, err := DecodePacket(frame)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Discarding undecodable auth packet")
		return
	}

	switch p := packet.(type) {
	case HelloPacket:
		a.handleHello(p)
	case AuthResponsePacket:
		a.handleResponse(p)
	default:
		a.logger.Debug().Str("type", frame.Type).Msg("Ignoring unexpected auth packet")
	}
}

// handleHello answers the server's challenge with credentials matching the
// advertised auth type.
func (a *ClientAuthenticator) handleHello(p HelloPacket) {
	a.mu.Lock()
	a.serverName = p.ServerName
	a.serverDescription = p.ServerDescription
	a.mu.Unlock()

	a.logger.Info().
		Str("server_name", p.ServerName).
		Str("auth_type", p.AuthType).
		Int("protocol_version", p.ProtocolVersion).
		Msg("Received server challenge")

	authType := a.creds.AuthType
	if authType == "" {
		authType = p.AuthType
	}

	reply := CredentialsPacket{
		AuthType:  authType,
		ClientKey: a.creds.ClientKey,
		Username:  a.creds.Username,
		Password:  a.creds.Password,
	}

	frame, err := protocol.NewFrame(ModuleName, "CredentialsPacket", reply)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to build CredentialsPacket")
		return
	}

	if err := a.client.Send(frame); err != nil {
		a.logger.Error().Err(err).Msg("Failed to send credentials")
	}
}

func (a *ClientAuthenticator) handleResponse(p AuthResponsePacket) {
	if !p.Success {
		a.logger.Warn().
			Int("failure_code", p.FailureCode).
			Str("failure_message", p.FailureMessage).
			Msg("Authentication rejected by server")

		a.cbMu.RLock()
		for _, fn := range a.onRejected {
			fn(p.FailureCode, p.FailureMessage)
		}
		a.cbMu.RUnlock()
		return
	}

	a.mu.Lock()
	a.authenticated = true
	a.sessionToken = p.SessionToken
	a.mu.Unlock()

	a.logger.Info().Msg("Authenticated with server")

	a.cbMu.RLock()
	for _, fn := range a.onAuthenticated {
		fn(p.SessionToken)
	}
	a.cbMu.RUnlock()
}

// Authenticated reports whether the handshake has completed successfully on
// the current connection.
func (a *ClientAuthenticator) Authenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authenticated
}

// SessionToken returns the token issued by the server, empty when not
// authenticated.
func (a *ClientAuthenticator) SessionToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionToken
}

// ServerName returns the name advertised in the server's challenge.
func (a *ClientAuthenticator) ServerName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.serverName
}
