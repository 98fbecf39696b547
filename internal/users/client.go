/*
This file defines the ClientUserManager: the client side of the login
registry. It sends the login request once the session is authenticated and
holds the identity the server bound the session to.
*/
package users

import (
	"sync"

	"github.com/rs/zerolog"

	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/protocol"
	"chatwire/internal/transport"
)

// sessionSource is the slice of the client authenticator this manager needs.
type sessionSource interface {
	Authenticated() bool
	SessionToken() string
}

// ClientUserManager tracks the identity bound to the current session.
type ClientUserManager struct {
	client *transport.NetClient
	authn  sessionSource

	mu          sync.RWMutex
	loggedIn    bool
	uuid        string
	displayName string

	cbMu          sync.RWMutex
	onLogin       []func(uuid, displayName string)
	onLoginFailed []func(failureCode int, message string)

	logger zerolog.Logger
}

// NewClientUserManager constructs the manager and binds it to the client
// transport. Login state clears automatically on disconnect.
func NewClientUserManager(client *transport.NetClient, authn sessionSource) (*ClientUserManager, error) {
	m := &ClientUserManager{
		client: client,
		authn:  authn,
		logger: logx.Logger().With().Str("component", "ClientUserManager").Logger(),
	}

	if err := client.RegisterHandler(ModuleName, m.handleFrame); err != nil {
		return nil, err
	}
	client.OnDisconnect(m.handleDisconnect)

	return m, nil
}

// OnLogin subscribes a callback fired when the server confirms the login.
func (m *ClientUserManager) OnLogin(fn func(uuid, displayName string)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onLogin = append(m.onLogin, fn)
}

// OnLoginFailed subscribes a callback fired when the server rejects the
// login.
func (m *ClientUserManager) OnLoginFailed(fn func(failureCode int, message string)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onLoginFailed = append(m.onLoginFailed, fn)
}

// SendLogin asks the server to bind the session to an identity. The
// credential fields must match what the handshake verified.
func (m *ClientUserManager) SendLogin(clientKey, username, displayName string) error {
	if !m.authn.Authenticated() {
		return errs.NewError(errs.ErrNotAuthenticated)
	}

	p := LoginPacket{
		SessionToken: m.authn.SessionToken(),
		ClientKey:    clientKey,
		Username:     username,
		DisplayName:  displayName,
	}

	frame, err := protocol.NewFrame(ModuleName, "LoginPacket", p)
	if err != nil {
		return err
	}
	return m.client.Send(frame)
}

// SendLogout releases the login binding without disconnecting.
func (m *ClientUserManager) SendLogout() error {
	m.mu.RLock()
	uuid := m.uuid
	loggedIn := m.loggedIn
	m.mu.RUnlock()

	if !loggedIn {
		return errs.NewError(errs.ErrNotLoggedIn)
	}

	p := LogoutPacket{
		SessionToken: m.authn.SessionToken(),
		UUID:         uuid,
	}

	frame, err := protocol.NewFrame(ModuleName, "LogoutPacket", p)
	if err != nil {
		return err
	}
	if err := m.client.Send(frame); err != nil {
		return err
	}

	m.mu.Lock()
	m.loggedIn = false
	m.uuid = ""
	m.displayName = ""
	m.mu.Unlock()

	return nil
}

func (m *ClientUserManager) handleDisconnect() {
	m.mu.Lock()
	m.loggedIn = false
	m.uuid = ""
	m.displayName = ""
	m.mu.Unlock()
}

func (m *ClientUserManager) handleFrame(connID string, frame protocol.Frame) {
	packet, err := DecodePacket(frame)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Discarding undecodable users packet")
		return
	}

	switch p := packet.(type) {
	case LoginResponsePacket:
		m.handleLoginResponse(p)
	default:
		m.logger.Debug().Str("type", frame.Type).Msg("Ignoring unexpected users packet")
	}
}

func (m *ClientUserManager) handleLoginResponse(p LoginResponsePacket) {
	if !p.Success {
		m.logger.Warn().
			Int("failure_code", p.FailureCode).
			Str("failure_message", p.FailureMessage).
			Msg("Login rejected by server")

		m.cbMu.RLock()
		for _, fn := range m.onLoginFailed {
			fn(p.FailureCode, p.FailureMessage)
		}
		m.cbMu.RUnlock()
		return
	}

	m.mu.Lock()
	m.loggedIn = true
	m.uuid = p.UUID
	m.displayName = p.DisplayName
	m.mu.Unlock()

	m.logger.Info().Str("uuid", p.UUID).Str("display_name", p.DisplayName).Msg("Logged in")

	m.cbMu.RLock()
	for _, fn := range m.onLogin {
		fn(p.UUID, p.DisplayName)
	}
	m.cbMu.RUnlock()
}

// LoggedIn reports whether the session is bound to an identity.
func (m *ClientUserManager) LoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loggedIn
}

// UUID returns the identity bound to the session, empty when logged out.
func (m *ClientUserManager) UUID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uuid
}

// DisplayName returns the display name the server confirmed at login.
func (m *ClientUserManager) DisplayName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.displayName
}
