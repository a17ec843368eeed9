package client

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dothash/huddle/internal/crypto"
	"github.com/dothash/huddle/internal/logging"
	"github.com/dothash/huddle/internal/protocol"
	"github.com/dothash/huddle/internal/transport"
)

type recordedEvent struct {
	Handle string
	Env    *protocol.Envelope
}

// testRelay is a bare transport server recording everything clients send
// and able to push events back at them.
type testRelay struct {
	server    *transport.Server
	events    chan recordedEvent
	connected chan string
}

func newTestRelay(t *testing.T) (*testRelay, string) {
	t.Helper()

	r := &testRelay{
		events:    make(chan recordedEvent, 64),
		connected: make(chan string, 8),
	}
	r.server = transport.NewServer(r, logging.Discard().GetLogger("testrelay"))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r.server.Start(listener)
	t.Cleanup(r.server.Halt)

	return r, listener.Addr().String()
}

func (r *testRelay) OnConnect(handle string)    { r.connected <- handle }
func (r *testRelay) OnDisconnect(handle string) {}
func (r *testRelay) OnEvent(handle string, env *protocol.Envelope) {
	r.events <- recordedEvent{Handle: handle, Env: env}
}

func (r *testRelay) push(t *testing.T, handle, event string, payload interface{}) {
	t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, r.server.Emit(handle, env))
}

func (r *testRelay) next(t *testing.T) recordedEvent {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a client event")
		return recordedEvent{}
	}
}

func (r *testRelay) handle(t *testing.T) string {
	t.Helper()
	select {
	case h := <-r.connected:
		return h
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the client to connect")
		return ""
	}
}

// stubSink records sink callbacks, exposing the awaited ones as channels.
type stubSink struct {
	mu     sync.Mutex
	errors []error
	infos  []string

	usernames chan string
	userLists chan []string
	peerKeys  chan string
	errCh     chan error
}

func newStubSink() *stubSink {
	return &stubSink{
		usernames: make(chan string, 8),
		userLists: make(chan []string, 8),
		peerKeys:  make(chan string, 8),
		errCh:     make(chan error, 8),
	}
}

func (s *stubSink) SendError(err error) {
	s.mu.Lock()
	s.errors = append(s.errors, err)
	s.mu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *stubSink) SendInfo(info string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, info)
}

func (s *stubSink) SendConnected()    {}
func (s *stubSink) SendDisconnected() {}

func (s *stubSink) SendUserList(users []string) {
	select {
	case s.userLists <- users:
	default:
	}
}

func (s *stubSink) SendUsernameChanged(username string) {
	select {
	case s.usernames <- username:
	default:
	}
}

func (s *stubSink) SendMessage(protocol.Message)                        {}
func (s *stubSink) SendPrivateMessage(protocol.PrivateMessageEvent)     {}
func (s *stubSink) SendPrivateMessageSent(protocol.PrivateMessageEvent) {}
func (s *stubSink) SendReadReceipt(int64)                               {}
func (s *stubSink) SendPublicTyping(string, bool)                       {}
func (s *stubSink) SendPrivateTyping(string, bool)                      {}
func (s *stubSink) SendHistory([]protocol.Message)                      {}
func (s *stubSink) SendTransferProgress(string, int, int)               {}
func (s *stubSink) SendFileReceived(string, string, []byte)             {}
func (s *stubSink) SendTransferResult(protocol.TransferAck)             {}

func (s *stubSink) SendPeerKey(username, fingerprint string) {
	select {
	case s.peerKeys <- username + "/" + fingerprint:
	default:
	}
}

func awaitString(t *testing.T, ch chan string, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestClientReplaysQueuedEventsInOrder(t *testing.T) {
	relay, addr := newTestRelay(t)

	c, err := New(addr, newStubSink(), logging.Discard())
	require.NoError(t, err)
	defer c.Disconnect()

	// All of these are queued before the connection exists. The
	// registration must be flushed first, then the messages in order.
	c.Register("alice")
	c.SendMessage("one")
	c.SendMessage("two")

	relay.handle(t)

	ev := relay.next(t)
	require.Equal(t, protocol.EventRegister, ev.Env.Event)
	var reg protocol.Register
	require.NoError(t, ev.Env.Decode(&reg))
	require.Equal(t, "alice", reg.Username)

	for _, want := range []string{"one", "two"} {
		ev = relay.next(t)
		require.Equal(t, protocol.EventMessage, ev.Env.Event)
		var msg protocol.Message
		require.NoError(t, ev.Env.Decode(&msg))
		require.Equal(t, want, msg.Message)
	}
}

func TestClientPrependsRegisterOnReconnectQueue(t *testing.T) {
	relay, addr := newTestRelay(t)

	c, err := New(addr, newStubSink(), logging.Discard())
	require.NoError(t, err)
	defer c.Disconnect()

	c.Register("alice")
	relay.handle(t)
	require.Equal(t, protocol.EventRegister, relay.next(t).Env.Event)

	// An action while connected goes straight through.
	c.SendMessage("live")
	require.Equal(t, protocol.EventMessage, relay.next(t).Env.Event)
}

func TestClientUsernameConfirmedByUserList(t *testing.T) {
	relay, addr := newTestRelay(t)
	sink := newStubSink()

	c, err := New(addr, sink, logging.Discard())
	require.NoError(t, err)
	defer c.Disconnect()

	c.Register("alice")
	handle := relay.handle(t)
	require.Equal(t, protocol.EventRegister, relay.next(t).Env.Event)

	relay.push(t, handle, protocol.EventUserList, &protocol.UserList{Users: []string{"alice", "bob"}})

	awaitString(t, sink.usernames, "alice")
	require.Equal(t, "alice", c.Username())
	require.ElementsMatch(t, []string{"alice", "bob"}, c.Users())

	// Confirmation triggers exactly one history request.
	ev := relay.next(t)
	require.Equal(t, protocol.EventRequestHistory, ev.Env.Event)

	relay.push(t, handle, protocol.EventUserList, &protocol.UserList{Users: []string{"alice"}})
	select {
	case ev := <-relay.events:
		require.NotEqual(t, protocol.EventRequestHistory, ev.Env.Event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClientTypingDedup(t *testing.T) {
	relay, addr := newTestRelay(t)

	c, err := New(addr, newStubSink(), logging.Discard())
	require.NoError(t, err)
	defer c.Disconnect()

	c.Register("alice")
	relay.handle(t)
	require.Equal(t, protocol.EventRegister, relay.next(t).Env.Event)

	c.IndicatePublicTyping(true)
	c.IndicatePublicTyping(true)
	c.IndicatePublicTyping(false)
	c.IndicatePublicTyping(false)

	var typing protocol.Typing
	ev := relay.next(t)
	require.Equal(t, protocol.EventTyping, ev.Env.Event)
	require.NoError(t, ev.Env.Decode(&typing))
	require.True(t, typing.IsTyping)
	require.Equal(t, protocol.ContextPublic, typing.Context)

	ev = relay.next(t)
	require.Equal(t, protocol.EventTyping, ev.Env.Event)
	require.NoError(t, ev.Env.Decode(&typing))
	require.False(t, typing.IsTyping)

	// No further typing events were emitted.
	c.SendMessage("sentinel")
	ev = relay.next(t)
	require.Equal(t, protocol.EventMessage, ev.Env.Event)
}

func TestClientPrivateTypingPerRecipient(t *testing.T) {
	relay, addr := newTestRelay(t)

	c, err := New(addr, newStubSink(), logging.Discard())
	require.NoError(t, err)
	defer c.Disconnect()

	c.Register("alice")
	relay.handle(t)
	require.Equal(t, protocol.EventRegister, relay.next(t).Env.Event)

	// A false state towards an untracked recipient is suppressed.
	c.IndicatePrivateTyping("bob", false)

	c.IndicatePrivateTyping("bob", true)
	c.IndicatePrivateTyping("carol", true)
	c.IndicatePrivateTyping("bob", true)
	c.IndicatePrivateTyping("bob", false)

	var typing protocol.Typing
	for _, want := range []struct {
		recipient string
		isTyping  bool
	}{
		{"bob", true},
		{"carol", true},
		{"bob", false},
	} {
		ev := relay.next(t)
		require.Equal(t, protocol.EventTyping, ev.Env.Event)
		require.NoError(t, ev.Env.Decode(&typing))
		require.Equal(t, protocol.ContextPrivate, typing.Context)
		require.Equal(t, want.recipient, typing.Recipient)
		require.Equal(t, want.isTyping, typing.IsTyping)
	}
}

func TestClientCachesPeerKeys(t *testing.T) {
	relay, addr := newTestRelay(t)
	sink := newStubSink()

	c, err := New(addr, sink, logging.Discard())
	require.NoError(t, err)
	defer c.Disconnect()

	c.Register("alice")
	handle := relay.handle(t)
	require.Equal(t, protocol.EventRegister, relay.next(t).Env.Event)

	peer, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pemKey, err := crypto.PublicKeyPEM(&peer.PublicKey)
	require.NoError(t, err)

	relay.push(t, handle, protocol.EventKeyExchange, &protocol.KeyExchange{
		Username:  "bob",
		PublicKey: pemKey,
	})

	awaitString(t, sink.peerKeys, "bob/"+crypto.Fingerprint(&peer.PublicKey))

	// A malformed key is rejected with an error, not cached.
	relay.push(t, handle, protocol.EventKeyExchange, &protocol.KeyExchange{
		Username:  "mallory",
		PublicKey: "garbage",
	})
	select {
	case err := <-sink.errCh:
		require.Contains(t, err.Error(), "mallory")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the key rejection error")
	}
}

func TestClientUsernameErrorClearsDesired(t *testing.T) {
	relay, addr := newTestRelay(t)
	sink := newStubSink()

	c, err := New(addr, sink, logging.Discard())
	require.NoError(t, err)
	defer c.Disconnect()

	c.Register("alice")
	handle := relay.handle(t)
	require.Equal(t, protocol.EventRegister, relay.next(t).Env.Event)

	relay.push(t, handle, protocol.EventError, &protocol.ErrorEvent{
		Message: "Username 'alice' is already taken.",
	})

	select {
	case err := <-sink.errCh:
		require.Contains(t, err.Error(), "already taken")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the registration error")
	}

	// A later user list without "alice" must not confirm the abandoned
	// registration.
	relay.push(t, handle, protocol.EventUserList, &protocol.UserList{Users: []string{"other"}})
	require.Eventually(t, func() bool {
		users := c.Users()
		return len(users) == 1 && users[0] == "other"
	}, 3*time.Second, 10*time.Millisecond)
	require.Empty(t, c.Username())
}

func TestClientRejectsEmptyUsername(t *testing.T) {
	relay, addr := newTestRelay(t)
	sink := newStubSink()

	c, err := New(addr, sink, logging.Discard())
	require.NoError(t, err)
	defer c.Disconnect()

	c.Register("   ")

	select {
	case err := <-sink.errCh:
		require.Contains(t, err.Error(), "username cannot be empty")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the validation error")
	}

	// Nothing was sent: no connection should even be attempted.
	select {
	case <-relay.connected:
		t.Fatal("client connected for a rejected local action")
	case <-time.After(200 * time.Millisecond):
	}
}
