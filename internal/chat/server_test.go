package chat

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatwire/internal/configs"
	"chatwire/internal/pkg/errs"
	"chatwire/internal/protocol"
	"chatwire/internal/transport"
)

// fakeSender records every frame handed to TrySend, keyed by connection.
type fakeSender struct {
	mu   sync.Mutex
	sent map[string][]protocol.Frame
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][]protocol.Frame)}
}

func (f *fakeSender) TrySend(connID string, frame protocol.Frame) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[connID] = append(f.sent[connID], frame)
	return true
}

func (f *fakeSender) framesFor(connID string) []protocol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Frame(nil), f.sent[connID]...)
}

func (f *fakeSender) lastSent(t *testing.T, connID string) protocol.Frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	frames := f.sent[connID]
	require.NotEmpty(t, frames, "no frames sent to %s", connID)
	return frames[len(frames)-1]
}

// fakeRegistrar captures the module handler for direct invocation.
type fakeRegistrar struct {
	handler transport.Handler
}

func (f *fakeRegistrar) RegisterHandler(module string, handler transport.Handler) error {
	f.handler = handler
	return nil
}

// fakeAuth authenticates any connection with a non-empty token.
type fakeAuth struct{}

func (fakeAuth) IsAuthenticated(connID, sessionToken string) bool {
	return sessionToken != ""
}

// fakeUsers is a static login registry.
type fakeUsers struct {
	bindings map[string]string // connID -> uuid
	onLogin  []func(connID, uuid string)
}

func (f *fakeUsers) IsLoggedIn(connID, uuid string) bool {
	return uuid != "" && f.bindings[connID] == uuid
}

func (f *fakeUsers) GetConnections() []string {
	out := make([]string, 0, len(f.bindings))
	for connID := range f.bindings {
		out = append(out, connID)
	}
	return out
}

func (f *fakeUsers) OnLogin(fn func(connID, uuid string)) {
	f.onLogin = append(f.onLogin, fn)
}

func (f *fakeUsers) login(connID, uuid string) {
	f.bindings[connID] = uuid
	for _, fn := range f.onLogin {
		fn(connID, uuid)
	}
}

func testChatConfig(capacity int) *configs.AppConfig {
	return &configs.AppConfig{
		HistoryCapacity: capacity,
		MaxMessageBytes: 100,
	}
}

func newTestChat(t *testing.T, capacity int) (*ServerChat, *fakeSender, *fakeRegistrar, *fakeUsers, HistoryStore) {
	t.Helper()

	sender := newFakeSender()
	registrar := &fakeRegistrar{}
	users := &fakeUsers{bindings: make(map[string]string)}
	store := NewFileHistoryStore(filepath.Join(t.TempDir(), "history.json"))

	c, err := NewServerChat(sender, registrar, fakeAuth{}, users, store, testChatConfig(capacity))
	require.NoError(t, err)

	return c, sender, registrar, users, store
}

func deliverMessage(t *testing.T, registrar *fakeRegistrar, connID string, p ChatMessagePacket) {
	t.Helper()
	frame, err := protocol.NewFrame(ModuleName, "ChatMessagePacket", p)
	require.NoError(t, err)
	registrar.handler(connID, frame)
}

func decodeChatResponse(t *testing.T, frame protocol.Frame) ChatMessageResponsePacket {
	t.Helper()
	packet, err := DecodePacket(frame)
	require.NoError(t, err)
	resp, ok := packet.(ChatMessageResponsePacket)
	require.True(t, ok, "expected ChatMessageResponsePacket, got %T", packet)
	return resp
}

func TestMessageAcceptedAndBroadcast(t *testing.T) {
	c, sender, registrar, users, _ := newTestChat(t, 10)
	users.bindings = map[string]string{"c1": "u1", "c2": "u2", "c3": "u3"}

	deliverMessage(t, registrar, "c1", ChatMessagePacket{
		SessionToken: "tok",
		UUID:         "u1",
		MessageID:    "provisional-1",
		Body:         "hello room",
	})

	resp := decodeChatResponse(t, sender.lastSent(t, "c1"))
	require.True(t, resp.Success)
	assert.Equal(t, "provisional-1", resp.OriginalMessageID)
	assert.NotEmpty(t, resp.NewMessageID)
	assert.NotEqual(t, "provisional-1", resp.NewMessageID, "server must mint its own ID")
	assert.Equal(t, "hello room", resp.Body)

	// Everyone but the sender receives the broadcast.
	for _, connID := range []string{"c2", "c3"} {
		frame := sender.lastSent(t, connID)
		packet, err := DecodePacket(frame)
		require.NoError(t, err)
		msg, ok := packet.(ChatMessagePacket)
		require.True(t, ok)
		assert.Equal(t, resp.NewMessageID, msg.MessageID)
		assert.Equal(t, "u1", msg.UUID)
		assert.Equal(t, "hello room", msg.Body)
		assert.False(t, msg.Timestamp.IsZero())
	}
	assert.Len(t, sender.framesFor("c1"), 1, "sender gets only the response, not the broadcast")

	history := c.History()
	require.Len(t, history, 1)
	assert.Equal(t, resp.NewMessageID, history[0].MessageID)
}

func TestUnauthenticatedSenderDenied(t *testing.T) {
	c, sender, registrar, users, _ := newTestChat(t, 10)
	users.bindings = map[string]string{"c1": "u1", "c2": "u2"}

	deliverMessage(t, registrar, "c1", ChatMessagePacket{
		UUID:      "u1",
		MessageID: "provisional-1",
		Body:      "hello",
	})

	resp := decodeChatResponse(t, sender.lastSent(t, "c1"))
	assert.False(t, resp.Success)
	assert.Equal(t, "provisional-1", resp.OriginalMessageID)
	assert.Equal(t, errs.ErrNotAuthenticated, resp.FailureCode)

	assert.Empty(t, c.History(), "rejected message must not enter history")
	assert.Empty(t, sender.framesFor("c2"), "rejected message must not be broadcast")
}

func TestSenderMustBeLoggedInAsClaimedIdentity(t *testing.T) {
	c, sender, registrar, users, _ := newTestChat(t, 10)
	users.bindings = map[string]string{"c1": "u1"}

	deliverMessage(t, registrar, "c1", ChatMessagePacket{
		SessionToken: "tok",
		UUID:         "u2",
		MessageID:    "provisional-1",
		Body:         "hello",
	})

	resp := decodeChatResponse(t, sender.lastSent(t, "c1"))
	assert.False(t, resp.Success)
	assert.Equal(t, errs.ErrNotLoggedIn, resp.FailureCode)
	assert.Empty(t, c.History())
}

func TestMessageSanitized(t *testing.T) {
	_, sender, registrar, users, _ := newTestChat(t, 10)
	users.bindings = map[string]string{"c1": "u1"}

	deliverMessage(t, registrar, "c1", ChatMessagePacket{
		SessionToken: "tok",
		UUID:         "u1",
		MessageID:    "provisional-1",
		Body:         "  <script>evil()</script>hello <b>world</b>  ",
	})

	resp := decodeChatResponse(t, sender.lastSent(t, "c1"))
	require.True(t, resp.Success)
	assert.Equal(t, "evil()hello world", resp.Body)
}

func TestEmptyAfterSanitizationDenied(t *testing.T) {
	c, sender, registrar, users, _ := newTestChat(t, 10)
	users.bindings = map[string]string{"c1": "u1"}

	deliverMessage(t, registrar, "c1", ChatMessagePacket{
		SessionToken: "tok",
		UUID:         "u1",
		MessageID:    "provisional-1",
		Body:         "  <b></b>  ",
	})

	resp := decodeChatResponse(t, sender.lastSent(t, "c1"))
	assert.False(t, resp.Success)
	assert.Equal(t, errs.ErrMessageEmpty, resp.FailureCode)
	assert.Empty(t, c.History())
}

func TestOverlongMessageDenied(t *testing.T) {
	c, sender, registrar, users, _ := newTestChat(t, 10)
	users.bindings = map[string]string{"c1": "u1"}

	deliverMessage(t, registrar, "c1", ChatMessagePacket{
		SessionToken: "tok",
		UUID:         "u1",
		MessageID:    "provisional-1",
		Body:         strings.Repeat("x", 101),
	})

	resp := decodeChatResponse(t, sender.lastSent(t, "c1"))
	assert.False(t, resp.Success)
	assert.Equal(t, errs.ErrMessageContentTooLong, resp.FailureCode)
	assert.Empty(t, c.History())
}

func TestHistoryEvictsOldest(t *testing.T) {
	c, _, registrar, users, _ := newTestChat(t, 3)
	users.bindings = map[string]string{"c1": "u1"}

	for i := 1; i <= 4; i++ {
		deliverMessage(t, registrar, "c1", ChatMessagePacket{
			SessionToken: "tok",
			UUID:         "u1",
			MessageID:    fmt.Sprintf("p-%d", i),
			Body:         fmt.Sprintf("message %d", i),
		})
	}

	history := c.History()
	require.Len(t, history, 3)
	assert.Equal(t, "message 2", history[0].Body)
	assert.Equal(t, "message 4", history[2].Body)
}

func TestHistoryReplayedOnLogin(t *testing.T) {
	_, sender, registrar, users, _ := newTestChat(t, 10)
	users.bindings = map[string]string{"c1": "u1"}

	for i := 1; i <= 2; i++ {
		deliverMessage(t, registrar, "c1", ChatMessagePacket{
			SessionToken: "tok",
			UUID:         "u1",
			MessageID:    fmt.Sprintf("p-%d", i),
			Body:         fmt.Sprintf("message %d", i),
		})
	}

	users.login("c2", "u2")

	frame := sender.lastSent(t, "c2")
	packet, err := DecodePacket(frame)
	require.NoError(t, err)
	replay, ok := packet.(ChatHistoryPacket)
	require.True(t, ok)

	require.Len(t, replay.Messages, 2)
	assert.Equal(t, "message 1", replay.Messages[0].Body)
	assert.Equal(t, "message 2", replay.Messages[1].Body)
}

func TestAnnounceEntersHistoryAndReachesEveryone(t *testing.T) {
	c, sender, _, users, _ := newTestChat(t, 10)
	users.bindings = map[string]string{"c1": "u1", "c2": "u2"}

	msg, err := c.Announce("maintenance in 5 minutes")
	require.NoError(t, err)
	assert.Empty(t, msg.SenderUUID)

	for _, connID := range []string{"c1", "c2"} {
		frame := sender.lastSent(t, connID)
		packet, err := DecodePacket(frame)
		require.NoError(t, err)
		got, ok := packet.(ChatMessagePacket)
		require.True(t, ok)
		assert.Equal(t, "maintenance in 5 minutes", got.Body)
	}

	require.Len(t, c.History(), 1)

	_, err = c.Announce("   ")
	assert.Error(t, err)
}

func TestHistorySurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store := NewFileHistoryStore(path)

	sender := newFakeSender()
	registrar := &fakeRegistrar{}
	users := &fakeUsers{bindings: map[string]string{"c1": "u1"}}

	c, err := NewServerChat(sender, registrar, fakeAuth{}, users, store, testChatConfig(10))
	require.NoError(t, err)

	deliverMessage(t, registrar, "c1", ChatMessagePacket{
		SessionToken: "tok",
		UUID:         "u1",
		MessageID:    "p-1",
		Body:         "persisted",
	})
	require.NoError(t, c.Close())

	reopened, err := NewServerChat(newFakeSender(), &fakeRegistrar{}, fakeAuth{},
		&fakeUsers{bindings: make(map[string]string)}, NewFileHistoryStore(path), testChatConfig(10))
	require.NoError(t, err)

	history := reopened.History()
	require.Len(t, history, 1)
	assert.Equal(t, "persisted", history[0].Body)
}
