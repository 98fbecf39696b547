/*
This file defines the ServerUserManager: the registry binding live
connections to persistent identities. A connection may hold at most one
login, and an identity may be bound to at most one connection; a second
login for the same identity either replaces the first session or is
rejected, by configuration.
*/
package users

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatwire/internal/auth"
	"chatwire/internal/configs"
	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/randx"
	"chatwire/internal/protocol"
	"chatwire/internal/transport"
)

// netServer is the slice of the transport surface the user manager uses.
type netServer interface {
	transport.Sender
	Disconnect(connID string)
}

// Authenticator is the gate and session surface the user manager consults.
type Authenticator interface {
	IsAuthenticated(connID, sessionToken string) bool
	SessionCredential(connID string) (loginKey, passwordHash string, ok bool)
}

// Registrar is the handler/event surface the user manager binds to.
type Registrar interface {
	RegisterHandler(module string, handler transport.Handler) error
	OnDisconnect(fn func(connID string))
}

// LoggedInUser pairs a live connection with its bound identity.
type LoggedInUser struct {
	ConnectionID string `json:"connectionId"`
	UUID         string `json:"uuid"`
	DisplayName  string `json:"displayName"`
}

// ServerUserManager tracks which connection is logged in as which identity.
type ServerUserManager struct {
	server        netServer
	authenticator Authenticator
	store         Store
	cfg           *configs.AppConfig

	mu         sync.RWMutex
	connToUUID map[string]string
	uuidToConn map[string]string

	cbMu    sync.RWMutex
	onLogin []func(connID, uuid string)

	logger zerolog.Logger
}

// NewServerUserManager constructs the registry and binds it to the transport.
func NewServerUserManager(server netServer, registrar Registrar, authenticator Authenticator, store Store, cfg *configs.AppConfig) (*ServerUserManager, error) {
	m := &ServerUserManager{
		server:        server,
		authenticator: authenticator,
		store:         store,
		cfg:           cfg,
		connToUUID:    make(map[string]string),
		uuidToConn:    make(map[string]string),
		logger:        logx.Logger().With().Str("component", "ServerUserManager").Logger(),
	}

	if err := registrar.RegisterHandler(ModuleName, m.handleFrame); err != nil {
		return nil, err
	}
	registrar.OnDisconnect(m.handleDisconnect)

	return m, nil
}

// OnLogin subscribes a callback fired after a login succeeds and the
// response has been sent, so anything the callback sends arrives after it.
func (m *ServerUserManager) OnLogin(fn func(connID, uuid string)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onLogin = append(m.onLogin, fn)
}

// handleDisconnect releases the connection's binding, if any.
func (m *ServerUserManager) handleDisconnect(connID string) {
	m.mu.Lock()
	uuid, ok := m.connToUUID[connID]
	if ok {
		delete(m.connToUUID, connID)
		if m.uuidToConn[uuid] == connID {
			delete(m.uuidToConn, uuid)
		}
	}
	m.mu.Unlock()

	if ok {
		m.logger.Info().Str("connection_id", connID).Str("uuid", uuid).Msg("Login released on disconnect")
	}
}

func (m *ServerUserManager) handleFrame(connID string, frame protocol.Frame) {
	packet, err := DecodePacket(frame)
	if err != nil {
		m.logger.Warn().Err(err).Str("connection_id", connID).Msg("Discarding undecodable users packet")
		return
	}

	switch p := packet.(type) {
	case LoginPacket:
		m.handleLogin(connID, p)
	case LogoutPacket:
		m.handleLogout(connID, p)
	default:
		m.logger.Debug().
			Str("connection_id", connID).
			Str("type", frame.Type).
			Msg("Ignoring unexpected users packet")
	}
}

// handleLogin binds the connection to an identity, provisioning one on
// first login.
func (m *ServerUserManager) handleLogin(connID string, p LoginPacket) {
	if !m.authenticator.IsAuthenticated(connID, p.SessionToken) {
		m.sendLoginFailure(connID, errs.ErrNotAuthenticated)
		return
	}

	sessionKey, passwordHash, ok := m.authenticator.SessionCredential(connID)
	if !ok {
		m.sendLoginFailure(connID, errs.ErrNotAuthenticated)
		return
	}

	// The login credential must resolve to the same identity the handshake
	// verified; a mismatch means the client is trying to log in as someone
	// it never authenticated as.
	loginKey := p.Username
	if p.ClientKey != "" {
		loginKey = auth.HashClientKey(p.ClientKey)
	}
	if loginKey != sessionKey {
		m.sendLoginFailure(connID, errs.ErrInvalidCredentials)
		return
	}

	user, found, err := m.store.FindByLoginKey(loginKey)
	if err != nil {
		m.logger.Error().Err(err).Str("connection_id", connID).Msg("Identity lookup failed")
		m.sendLoginFailure(connID, errs.ErrUnknown)
		return
	}

	if !found {
		displayName := p.DisplayName
		if displayName == "" {
			displayName, err = randx.DisplayName()
			if err != nil {
				m.logger.Error().Err(err).Msg("Failed to generate display name")
				m.sendLoginFailure(connID, errs.ErrUnknown)
				return
			}
		}
		user = User{
			UUID:         randx.UUID(),
			LoginKey:     loginKey,
			DisplayName:  displayName,
			PasswordHash: passwordHash,
			CreatedAt:    time.Now().UTC(),
		}
		if err := m.store.Upsert(user); err != nil {
			m.logger.Error().Err(err).Str("connection_id", connID).Msg("Failed to provision identity")
			m.sendLoginFailure(connID, errs.ErrUnknown)
			return
		}
		m.logger.Info().Str("uuid", user.UUID).Msg("Provisioned new identity")
	} else if p.DisplayName != "" && p.DisplayName != user.DisplayName {
		user.DisplayName = p.DisplayName
		if err := m.store.Upsert(user); err != nil {
			m.logger.Error().Err(err).Str("uuid", user.UUID).Msg("Failed to update display name")
			m.sendLoginFailure(connID, errs.ErrUnknown)
			return
		}
	}

	m.mu.Lock()
	priorConn, alreadyBound := m.uuidToConn[user.UUID]
	if alreadyBound && priorConn != connID && m.cfg.RejectDuplicateLogin {
		m.mu.Unlock()
		m.sendLoginFailure(connID, errs.ErrAlreadyLoggedIn)
		return
	}
	m.connToUUID[connID] = user.UUID
	m.uuidToConn[user.UUID] = connID
	m.mu.Unlock()

	// Default policy: the newest session wins. The kicked connection is told
	// why before it goes down so the client can tell a kick from a network
	// failure.
	if alreadyBound && priorConn != connID {
		m.logger.Info().
			Str("uuid", user.UUID).
			Str("replaced_connection_id", priorConn).
			Msg("Replacing prior session for identity")
		m.sendLoginFailure(priorConn, errs.ErrSessionReplaced)
		m.server.Disconnect(priorConn)
	}

	m.logger.Info().
		Str("connection_id", connID).
		Str("uuid", user.UUID).
		Msg("Connection logged in")

	m.sendResponse(connID, LoginResponsePacket{
		Success:     true,
		UUID:        user.UUID,
		DisplayName: user.DisplayName,
	})

	m.cbMu.RLock()
	for _, fn := range m.onLogin {
		fn(connID, user.UUID)
	}
	m.cbMu.RUnlock()
}

// handleLogout releases the connection's binding without disconnecting.
func (m *ServerUserManager) handleLogout(connID string, p LogoutPacket) {
	if !m.authenticator.IsAuthenticated(connID, p.SessionToken) {
		return
	}

	m.mu.Lock()
	uuid, ok := m.connToUUID[connID]
	released := ok && uuid == p.UUID
	if released {
		delete(m.connToUUID, connID)
		if m.uuidToConn[uuid] == connID {
			delete(m.uuidToConn, uuid)
		}
	}
	m.mu.Unlock()

	if released {
		m.logger.Info().Str("connection_id", connID).Str("uuid", uuid).Msg("Connection logged out")
	} else if ok {
		m.logger.Warn().
			Str("connection_id", connID).
			Str("claimed_uuid", p.UUID).
			Int("code", errs.ErrUuidMismatch).
			Msg("Logout for a UUID not bound to this connection, ignoring")
	}
}

func (m *ServerUserManager) sendLoginFailure(connID string, failureCode int) {
	m.sendResponse(connID, LoginResponsePacket{
		Success:        false,
		FailureCode:    failureCode,
		FailureMessage: errs.NewError(failureCode).Message,
	})
}

func (m *ServerUserManager) sendResponse(connID string, p LoginResponsePacket) {
	frame, err := protocol.NewFrame(ModuleName, "LoginResponsePacket", p)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to build LoginResponsePacket")
		return
	}

	if !m.server.TrySend(connID, frame) {
		m.logger.Warn().Str("connection_id", connID).Msg("Failed to send LoginResponsePacket")
	}
}

// IsLoggedIn reports whether the connection is currently bound to exactly
// the given identity.
func (m *ServerUserManager) IsLoggedIn(connID, uuid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uuid != "" && m.connToUUID[connID] == uuid
}

// GetConnections returns the IDs of every logged-in connection.
func (m *ServerUserManager) GetConnections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.connToUUID))
	for connID := range m.connToUUID {
		out = append(out, connID)
	}
	return out
}

// LoggedInUsers lists every live binding with its display name.
func (m *ServerUserManager) LoggedInUsers() []LoggedInUser {
	m.mu.RLock()
	bindings := make(map[string]string, len(m.connToUUID))
	for connID, uuid := range m.connToUUID {
		bindings[connID] = uuid
	}
	m.mu.RUnlock()

	out := make([]LoggedInUser, 0, len(bindings))
	for connID, uuid := range bindings {
		name, _ := m.TryGetDisplayName(uuid)
		out = append(out, LoggedInUser{ConnectionID: connID, UUID: uuid, DisplayName: name})
	}
	return out
}

// TryGetDisplayName resolves an identity's display name from the store.
func (m *ServerUserManager) TryGetDisplayName(uuid string) (string, bool) {
	u, ok, err := m.store.Get(uuid)
	if err != nil || !ok {
		return "", false
	}
	return u.DisplayName, true
}
