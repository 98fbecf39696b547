package users

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatwire/internal/auth"
	"chatwire/internal/configs"
	"chatwire/internal/pkg/errs"
	"chatwire/internal/protocol"
	"chatwire/internal/transport"
)

// fakeTransport records sends and disconnects and lets tests drive inbound
// frames and disconnect events.
type fakeTransport struct {
	mu           sync.Mutex
	sent         map[string][]protocol.Frame
	disconnected []string

	handler      transport.Handler
	onDisconnect []func(connID string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[string][]protocol.Frame)}
}

func (f *fakeTransport) TrySend(connID string, frame protocol.Frame) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[connID] = append(f.sent[connID], frame)
	return true
}

func (f *fakeTransport) Disconnect(connID string) {
	f.mu.Lock()
	f.disconnected = append(f.disconnected, connID)
	f.mu.Unlock()

	for _, fn := range f.onDisconnect {
		fn(connID)
	}
}

func (f *fakeTransport) RegisterHandler(module string, handler transport.Handler) error {
	f.handler = handler
	return nil
}

func (f *fakeTransport) OnDisconnect(fn func(connID string)) {
	f.onDisconnect = append(f.onDisconnect, fn)
}

func (f *fakeTransport) deliver(t *testing.T, connID, packetName string, packet any) {
	t.Helper()
	frame, err := protocol.NewFrame(ModuleName, packetName, packet)
	require.NoError(t, err)
	f.handler(connID, frame)
}

func (f *fakeTransport) lastSent(t *testing.T, connID string) protocol.Frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	frames := f.sent[connID]
	require.NotEmpty(t, frames, "no frames sent to %s", connID)
	return frames[len(frames)-1]
}

func (f *fakeTransport) wasDisconnected(connID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.disconnected {
		if id == connID {
			return true
		}
	}
	return false
}

// fakeAuthenticator marks chosen connections as authenticated with a known
// credential.
type fakeAuthenticator struct {
	sessions map[string]string // connID -> loginKey
}

func (f *fakeAuthenticator) IsAuthenticated(connID, sessionToken string) bool {
	_, ok := f.sessions[connID]
	return ok && sessionToken != ""
}

func (f *fakeAuthenticator) SessionCredential(connID string) (string, string, bool) {
	loginKey, ok := f.sessions[connID]
	return loginKey, "", ok
}

func newTestManager(t *testing.T, rejectDuplicate bool) (*ServerUserManager, *fakeTransport, *fakeAuthenticator, Store) {
	t.Helper()

	ft := newFakeTransport()
	fa := &fakeAuthenticator{sessions: make(map[string]string)}
	store, err := NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)

	cfg := &configs.AppConfig{RejectDuplicateLogin: rejectDuplicate}
	m, err := NewServerUserManager(ft, ft, fa, store, cfg)
	require.NoError(t, err)

	return m, ft, fa, store
}

func decodeLoginResponse(t *testing.T, frame protocol.Frame) LoginResponsePacket {
	t.Helper()
	packet, err := DecodePacket(frame)
	require.NoError(t, err)
	resp, ok := packet.(LoginResponsePacket)
	require.True(t, ok, "expected LoginResponsePacket, got %T", packet)
	return resp
}

func TestLoginProvisionsIdentity(t *testing.T) {
	m, ft, fa, store := newTestManager(t, false)
	fa.sessions["c1"] = auth.HashClientKey("key-1")

	ft.deliver(t, "c1", "LoginPacket", LoginPacket{
		SessionToken: "tok",
		ClientKey:    "key-1",
		DisplayName:  "Alice",
	})

	resp := decodeLoginResponse(t, ft.lastSent(t, "c1"))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.UUID)
	assert.Equal(t, "Alice", resp.DisplayName)

	assert.True(t, m.IsLoggedIn("c1", resp.UUID))
	assert.False(t, m.IsLoggedIn("c1", "someone-else"))

	stored, ok, err := store.Get(resp.UUID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, auth.HashClientKey("key-1"), stored.LoginKey)
}

func TestLoginReusesExistingIdentity(t *testing.T) {
	m, ft, fa, _ := newTestManager(t, false)
	fa.sessions["c1"] = auth.HashClientKey("key-1")
	fa.sessions["c2"] = auth.HashClientKey("key-1")

	ft.deliver(t, "c1", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1"})
	first := decodeLoginResponse(t, ft.lastSent(t, "c1"))
	require.True(t, first.Success)

	// Same credential from a later connection resolves the same UUID.
	ft.Disconnect("c1")
	ft.deliver(t, "c2", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1"})
	second := decodeLoginResponse(t, ft.lastSent(t, "c2"))
	require.True(t, second.Success)

	assert.Equal(t, first.UUID, second.UUID)
	assert.True(t, m.IsLoggedIn("c2", second.UUID))
}

func TestLoginRequiresAuthentication(t *testing.T) {
	m, ft, _, _ := newTestManager(t, false)

	ft.deliver(t, "c1", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1"})

	resp := decodeLoginResponse(t, ft.lastSent(t, "c1"))
	assert.False(t, resp.Success)
	assert.Equal(t, errs.ErrNotAuthenticated, resp.FailureCode)
	assert.Empty(t, m.GetConnections())
}

func TestLoginRejectsCredentialMismatch(t *testing.T) {
	_, ft, fa, _ := newTestManager(t, false)
	fa.sessions["c1"] = auth.HashClientKey("key-1")

	// Authenticated as key-1 but trying to log in as key-2.
	ft.deliver(t, "c1", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-2"})

	resp := decodeLoginResponse(t, ft.lastSent(t, "c1"))
	assert.False(t, resp.Success)
	assert.Equal(t, errs.ErrInvalidCredentials, resp.FailureCode)
}

func TestDuplicateLoginReplacesPriorSession(t *testing.T) {
	m, ft, fa, _ := newTestManager(t, false)
	fa.sessions["c1"] = auth.HashClientKey("key-1")
	fa.sessions["c2"] = auth.HashClientKey("key-1")

	ft.deliver(t, "c1", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1"})
	first := decodeLoginResponse(t, ft.lastSent(t, "c1"))
	require.True(t, first.Success)

	ft.deliver(t, "c2", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1"})
	second := decodeLoginResponse(t, ft.lastSent(t, "c2"))
	require.True(t, second.Success)

	// The newest session wins; the prior connection is told it was
	// replaced, then kicked.
	kicked := decodeLoginResponse(t, ft.lastSent(t, "c1"))
	assert.False(t, kicked.Success)
	assert.Equal(t, errs.ErrSessionReplaced, kicked.FailureCode)

	assert.True(t, ft.wasDisconnected("c1"))
	assert.False(t, m.IsLoggedIn("c1", first.UUID))
	assert.True(t, m.IsLoggedIn("c2", second.UUID))
	assert.Equal(t, []string{"c2"}, m.GetConnections())
}

func TestDuplicateLoginRejectedWhenConfigured(t *testing.T) {
	m, ft, fa, _ := newTestManager(t, true)
	fa.sessions["c1"] = auth.HashClientKey("key-1")
	fa.sessions["c2"] = auth.HashClientKey("key-1")

	ft.deliver(t, "c1", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1"})
	first := decodeLoginResponse(t, ft.lastSent(t, "c1"))
	require.True(t, first.Success)

	ft.deliver(t, "c2", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1"})
	second := decodeLoginResponse(t, ft.lastSent(t, "c2"))

	assert.False(t, second.Success)
	assert.Equal(t, errs.ErrAlreadyLoggedIn, second.FailureCode)

	// The original session is untouched.
	assert.False(t, ft.wasDisconnected("c1"))
	assert.True(t, m.IsLoggedIn("c1", first.UUID))
}

func TestOnLoginFiresAfterResponse(t *testing.T) {
	m, ft, fa, _ := newTestManager(t, false)
	fa.sessions["c1"] = auth.HashClientKey("key-1")

	var order []string
	m.OnLogin(func(connID, uuid string) {
		// The login response must already be on the wire when subscribers
		// run, so anything they send arrives after it.
		ft.mu.Lock()
		if len(ft.sent[connID]) > 0 {
			order = append(order, "response-first")
		}
		ft.mu.Unlock()
		order = append(order, "login-event")
	})

	ft.deliver(t, "c1", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1"})

	assert.Equal(t, []string{"response-first", "login-event"}, order)
}

func TestLogoutReleasesBinding(t *testing.T) {
	m, ft, fa, _ := newTestManager(t, false)
	fa.sessions["c1"] = auth.HashClientKey("key-1")

	ft.deliver(t, "c1", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1"})
	resp := decodeLoginResponse(t, ft.lastSent(t, "c1"))
	require.True(t, resp.Success)

	ft.deliver(t, "c1", "LogoutPacket", LogoutPacket{SessionToken: "tok", UUID: resp.UUID})

	assert.False(t, m.IsLoggedIn("c1", resp.UUID))
	assert.Empty(t, m.GetConnections())
}

func TestLogoutWithForeignUUIDKeepsBinding(t *testing.T) {
	m, ft, fa, _ := newTestManager(t, false)
	fa.sessions["c1"] = auth.HashClientKey("key-1")

	ft.deliver(t, "c1", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1"})
	resp := decodeLoginResponse(t, ft.lastSent(t, "c1"))
	require.True(t, resp.Success)

	// A logout claiming someone else's UUID must not touch the binding.
	ft.deliver(t, "c1", "LogoutPacket", LogoutPacket{SessionToken: "tok", UUID: "someone-else"})

	assert.True(t, m.IsLoggedIn("c1", resp.UUID))
	assert.Equal(t, []string{"c1"}, m.GetConnections())
}

func TestDisconnectReleasesBinding(t *testing.T) {
	m, ft, fa, _ := newTestManager(t, false)
	fa.sessions["c1"] = auth.HashClientKey("key-1")

	ft.deliver(t, "c1", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1"})
	resp := decodeLoginResponse(t, ft.lastSent(t, "c1"))
	require.True(t, resp.Success)

	ft.Disconnect("c1")

	assert.False(t, m.IsLoggedIn("c1", resp.UUID))
	assert.Empty(t, m.GetConnections())
}

func TestTryGetDisplayNameFallsBackToStore(t *testing.T) {
	m, ft, fa, _ := newTestManager(t, false)
	fa.sessions["c1"] = auth.HashClientKey("key-1")

	ft.deliver(t, "c1", "LoginPacket", LoginPacket{SessionToken: "tok", ClientKey: "key-1", DisplayName: "Alice"})
	resp := decodeLoginResponse(t, ft.lastSent(t, "c1"))
	require.True(t, resp.Success)

	name, ok := m.TryGetDisplayName(resp.UUID)
	require.True(t, ok)
	assert.Equal(t, "Alice", name)

	_, ok = m.TryGetDisplayName("missing-uuid")
	assert.False(t, ok)
}
