/*
Package auth implements the authentication handshake shared by server and
client: the per-connection state machine, session token issuance, and the
IsAuthenticated gate every other module consults before trusting a request.

This file defines the ServerAuthenticator. Each connection walks the state
machine Unauthenticated -> AwaitingCredentials -> Authenticated, or lands in
Rejected, after which the connection is closed by policy. Session state is
discarded the moment its connection dies.
*/
package auth

import (
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"chatwire/internal/configs"
	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/token"
	"chatwire/internal/protocol"
	"chatwire/internal/transport"
)

// SessionState tracks a connection's progress through the handshake.
type SessionState int

const (
	// StateUnauthenticated is the zero state, before the challenge is sent.
	StateUnauthenticated SessionState = iota

	// StateAwaitingCredentials means the challenge went out and the server
	// is waiting for the client's reply.
	StateAwaitingCredentials

	// StateAuthenticated means credentials were accepted and a session token
	// is bound to the connection.
	StateAuthenticated

	// StateRejected is terminal; the connection is closed by policy.
	StateRejected
)

// session is the per-connection handshake record.
type session struct {
	state        SessionState
	sessionToken string

	// loginKey records the verified credential key (username or hashed
	// client key) so the login path can resolve the same identity.
	loginKey string

	// passwordHash carries the bcrypt hash of a first-time password user's
	// credential so the login path can provision the account.
	passwordHash string
}

// netServer is the slice of the transport surface the authenticator uses.
type netServer interface {
	transport.Sender
	Disconnect(connID string)
}

// CredentialVerifier checks password credentials against the identity store.
// An unknown username is accepted here; the account is provisioned when the
// user logs in.
type CredentialVerifier interface {
	VerifyPassword(username, password string) (bool, error)
}

// ServerAuthenticator gates every feature module behind the handshake.
type ServerAuthenticator struct {
	server   netServer
	verifier CredentialVerifier
	cfg      *configs.AppConfig

	mu       sync.RWMutex
	sessions map[string]*session

	logger zerolog.Logger
}

// Registrar is the handler/event surface the authenticator binds to.
type Registrar interface {
	RegisterHandler(module string, handler transport.Handler) error
	OnConnect(fn func(connID string))
	OnDisconnect(fn func(connID string))
}

// NewServerAuthenticator constructs the authenticator and binds it to the
// transport: it handles the auth module, challenges every new connection,
// and drops session state on disconnect.
func NewServerAuthenticator(server netServer, registrar Registrar, verifier CredentialVerifier, cfg *configs.AppConfig) (*ServerAuthenticator, error) {
	a := &ServerAuthenticator{
		server:   server,
		verifier: verifier,
		cfg:      cfg,
		sessions: make(map[string]*session),
		logger:   logx.Logger().With().Str("component", "ServerAuthenticator").Logger(),
	}

	if err := registrar.RegisterHandler(ModuleName, a.handleFrame); err != nil {
		return nil, err
	}
	registrar.OnConnect(a.handleConnect)
	registrar.OnDisconnect(a.handleDisconnect)

	return a, nil
}

// handleConnect opens a handshake record and sends the challenge.
func (a *ServerAuthenticator) handleConnect(connID string) {
	a.mu.Lock()
	a.sessions[connID] = &session{state: StateAwaitingCredentials}
	a.mu.Unlock()

	hello := HelloPacket{
		ServerName:        a.cfg.ServerName,
		ServerDescription: a.cfg.ServerDescription,
		AuthType:          a.cfg.AuthType,
		ProtocolVersion:   ProtocolVersion,
	}

	frame, err := protocol.NewFrame(ModuleName, "HelloPacket", hello)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to build HelloPacket")
		return
	}

	if !a.server.TrySend(connID, frame) {
		a.logger.Warn().Str("connection_id", connID).Msg("Failed to send HelloPacket")
	}
}

// handleDisconnect discards the connection's session immediately, from any
// state. Idempotent.
func (a *ServerAuthenticator) handleDisconnect(connID string) {
	a.mu.Lock()
	delete(a.sessions, connID)
	a.mu.Unlock()
}

func (a *ServerAuthenticator) handleFrame(connID string, frame protocol.Frame) {
	packet, err := DecodePacket(frame)
	if err != nil {
		a.logger.Warn().Err(err).Str("connection_id", connID).Msg("Discarding undecodable auth packet")
		return
	}

	switch p := packet.(type) {
	case CredentialsPacket:
		a.handleCredentials(connID, p)
	default:
		a.logger.Debug().
			Str("connection_id", connID).
			Str("type", frame.Type).
			Msg("Ignoring unexpected auth packet")
	}
}

// handleCredentials validates the client's reply to the challenge.
func (a *ServerAuthenticator) handleCredentials(connID string, p CredentialsPacket) {
	a.mu.RLock()
	sess, ok := a.sessions[connID]
	state := StateUnauthenticated
	if ok {
		state = sess.state
	}
	a.mu.RUnlock()

	if !ok {
		a.logger.Warn().Str("connection_id", connID).Msg("Credentials from unknown connection")
		return
	}

	// No re-handshake mid-session. The existing session stays intact.
	if state == StateAuthenticated {
		a.sendResponse(connID, AuthResponsePacket{
			Success:        false,
			FailureCode:    errs.ErrAlreadyAuthenticated,
			FailureMessage: errs.NewError(errs.ErrAlreadyAuthenticated).Message,
		})
		return
	}

	if p.AuthType != a.cfg.AuthType {
		a.reject(connID, errs.ErrAuthTypeMismatch)
		return
	}

	loginKey, passwordHash, failureCode := a.verifyCredentials(p)
	if failureCode != 0 {
		a.reject(connID, failureCode)
		return
	}

	sessionToken, err := token.Generate(connID, a.cfg.JWTSecret)
	if err != nil {
		a.logger.Error().Err(err).Str("connection_id", connID).Msg("Failed to generate session token")
		a.reject(connID, errs.ErrUnknown)
		return
	}

	a.mu.Lock()
	sess, ok = a.sessions[connID]
	if !ok {
		// Disconnected while we were validating; nothing to bind.
		a.mu.Unlock()
		return
	}
	sess.state = StateAuthenticated
	sess.sessionToken = sessionToken
	sess.loginKey = loginKey
	sess.passwordHash = passwordHash
	a.mu.Unlock()

	a.logger.Info().Str("connection_id", connID).Msg("Connection authenticated")

	a.sendResponse(connID, AuthResponsePacket{
		Success:      true,
		SessionToken: sessionToken,
	})
}

// verifyCredentials checks the credentials and returns the login key used to
// resolve the identity later, plus the password hash for accounts that do
// not exist yet, or a non-zero failure code.
func (a *ServerAuthenticator) verifyCredentials(p CredentialsPacket) (string, string, int) {
	switch p.AuthType {
	case configs.AuthTypeClientKey:
		if p.ClientKey == "" {
			return "", "", errs.ErrInvalidCredentials
		}
		return HashClientKey(p.ClientKey), "", 0

	case configs.AuthTypePassword:
		if p.Username == "" || p.Password == "" {
			return "", "", errs.ErrInvalidCredentials
		}

		valid, err := a.verifier.VerifyPassword(p.Username, p.Password)
		if err != nil {
			a.logger.Error().Err(err).Msg("Credential verification failed")
			return "", "", errs.ErrUnknown
		}
		if !valid {
			return "", "", errs.ErrInvalidCredentials
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
		if err != nil {
			a.logger.Error().Err(err).Msg("Failed to hash password")
			return "", "", errs.ErrUnknown
		}
		return p.Username, string(hash), 0

	default:
		return "", "", errs.ErrAuthTypeMismatch
	}
}

// reject marks the session terminal, tells the client why, and closes the
// connection by policy.
func (a *ServerAuthenticator) reject(connID string, failureCode int) {
	a.mu.Lock()
	if sess, ok := a.sessions[connID]; ok {
		sess.state = StateRejected
		sess.sessionToken = ""
	}
	a.mu.Unlock()

	a.logger.Info().
		Str("connection_id", connID).
		Int("failure_code", failureCode).
		Msg("Authentication rejected")

	a.sendResponse(connID, AuthResponsePacket{
		Success:        false,
		FailureCode:    failureCode,
		FailureMessage: errs.NewError(failureCode).Message,
	})

	a.server.Disconnect(connID)
}

func (a *ServerAuthenticator) sendResponse(connID string, p AuthResponsePacket) {
	frame, err := protocol.NewFrame(ModuleName, "AuthResponsePacket", p)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to build AuthResponsePacket")
		return
	}

	if !a.server.TrySend(connID, frame) {
		a.logger.Warn().Str("connection_id", connID).Msg("Failed to send AuthResponsePacket")
	}
}

// IsAuthenticated is the single source of truth consulted by every other
// module. The presented token must match the live connection's bound token
// byte for byte and carry that connection's ID, so a token captured from one
// connection is useless on another.
func (a *ServerAuthenticator) IsAuthenticated(connID, sessionToken string) bool {
	a.mu.RLock()
	sess, ok := a.sessions[connID]
	a.mu.RUnlock()

	if !ok || sess.state != StateAuthenticated {
		return false
	}
	if sessionToken == "" || sess.sessionToken != sessionToken {
		return false
	}

	claims, err := token.Parse(sessionToken, a.cfg.JWTSecret)
	if err != nil {
		return false
	}

	return claims.ConnectionID == connID
}

// SessionCredential returns the credential key verified during the
// handshake for a currently authenticated connection, plus the password
// hash for accounts still to be provisioned.
func (a *ServerAuthenticator) SessionCredential(connID string) (loginKey, passwordHash string, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sess, found := a.sessions[connID]
	if !found || sess.state != StateAuthenticated {
		return "", "", false
	}
	return sess.loginKey, sess.passwordHash, true
}

// State reports the connection's current handshake state.
func (a *ServerAuthenticator) State(connID string) SessionState {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if sess, ok := a.sessions[connID]; ok {
		return sess.state
	}
	return StateUnauthenticated
}
