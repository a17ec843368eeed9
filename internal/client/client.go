// Package client implements the chat client core: the outbound event
// queue that buffers actions until a connection exists, the inbound event
// dispatch, the per-peer public key cache, and file transfer
// orchestration. The UI talks to it through core.EventSink.
package client

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/dothash/huddle/internal/core"
	"github.com/dothash/huddle/internal/crypto"
	"github.com/dothash/huddle/internal/filetransfer"
	huddlelog "github.com/dothash/huddle/internal/logging"
	"github.com/dothash/huddle/internal/protocol"
	"github.com/dothash/huddle/internal/transport"
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

type pendingEvent struct {
	event   string
	payload interface{}
}

// Client is the chat client core. All methods are safe for concurrent
// use; none of them block on the network from the caller's perspective.
type Client struct {
	addr string
	sink core.EventSink
	log  *logging.Logger

	key *rsa.PrivateKey

	mu              sync.Mutex
	state           connState
	conn            *transport.Conn
	pending         []pendingEvent
	desiredUsername string
	username        string
	users           []string
	historySynced   bool
	publicTyping    bool
	privateTyping   map[string]bool
	peerKeys        map[string]*rsa.PublicKey

	transferMu sync.Mutex
	assemblers map[string]*filetransfer.Assembler

	dispatch map[string]func(*protocol.Envelope)
}

// New creates a client for the given relay address. The RSA key pair used
// for encrypted transfers is generated here, once per client.
func New(addr string, sink core.EventSink, backend *huddlelog.Backend) (*Client, error) {
	key, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	c := &Client{
		addr:          addr,
		sink:          sink,
		log:           backend.GetLogger("client"),
		key:           key,
		privateTyping: make(map[string]bool),
		peerKeys:      make(map[string]*rsa.PublicKey),
		assemblers:    make(map[string]*filetransfer.Assembler),
	}
	c.dispatch = map[string]func(*protocol.Envelope){
		protocol.EventUserList:               c.onUserList,
		protocol.EventMessage:                c.onMessage,
		protocol.EventPrivateMessageReceived: c.onPrivateMessage,
		protocol.EventPrivateMessageSent:     c.onPrivateMessageSent,
		protocol.EventPrivateMessageRead:     c.onReadReceipt,
		protocol.EventPublicTyping:           c.onPublicTyping,
		protocol.EventPrivateTyping:          c.onPrivateTyping,
		protocol.EventChatHistory:            c.onChatHistory,
		protocol.EventKeyExchange:            c.onKeyExchange,
		protocol.EventFileChunk:              c.onFileChunk,
		protocol.EventTransferAck:            c.onTransferAck,
		protocol.EventError:                  c.onError,
	}
	return c, nil
}

// Fingerprint returns the short fingerprint of the client's own key.
func (c *Client) Fingerprint() string {
	return crypto.Fingerprint(&c.key.PublicKey)
}

// Username returns the confirmed registered username, empty if none.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Users returns the latest user list snapshot.
func (c *Client) Users() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.users))
	copy(out, c.users)
	return out
}

// emit sends the event now if connected; otherwise it buffers the event
// and makes sure a connection attempt is underway. Buffered events are
// replayed in order on connect.
func (c *Client) emit(event string, payload interface{}) {
	c.mu.Lock()
	if c.state == stateConnected {
		conn := c.conn
		c.mu.Unlock()
		c.send(conn, event, payload)
		return
	}
	c.pending = append(c.pending, pendingEvent{event: event, payload: payload})
	c.mu.Unlock()
	c.ensureConnected()
}

func (c *Client) send(conn *transport.Conn, event string, payload interface{}) {
	if err := conn.Emit(event, payload); err != nil {
		// Send failures are non-fatal: report and carry on.
		c.sink.SendError(fmt.Errorf("failed to send '%s': %w", event, err))
	}
}

// ensureConnected starts the single background connect goroutine unless
// one is already running or the client is connected.
func (c *Client) ensureConnected() {
	c.mu.Lock()
	if c.state != stateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = stateConnecting
	c.mu.Unlock()

	go c.connect()
}

func (c *Client) connect() {
	conn, err := transport.Dial(c.addr)
	if err != nil {
		c.mu.Lock()
		c.state = stateDisconnected
		c.mu.Unlock()
		c.sink.SendError(fmt.Errorf("connection error: %w", err))
		return
	}

	// Flush the buffer: the state flip and the buffer grab happen in one
	// critical section so a concurrent emit is either in the flushed
	// batch or sent directly, never both and never neither.
	c.mu.Lock()
	c.state = stateConnected
	c.conn = conn
	pending := c.pending
	c.pending = nil

	queuedRegister := false
	for _, p := range pending {
		if p.event == protocol.EventRegister {
			queuedRegister = true
			break
		}
	}
	if c.desiredUsername != "" && !queuedRegister {
		pending = append([]pendingEvent{{
			event:   protocol.EventRegister,
			payload: &protocol.Register{Username: c.desiredUsername},
		}}, pending...)
	}
	c.mu.Unlock()

	c.log.Infof("connected to %s", c.addr)
	c.sink.SendConnected()
	for _, p := range pending {
		c.send(conn, p.event, p.payload)
	}

	go func() {
		if err := conn.Listen(c.handleEvent); err != nil {
			c.log.Warningf("connection lost: %v", err)
		}
		c.onDisconnected()
	}()
}

func (c *Client) handleEvent(env *protocol.Envelope) {
	handler, ok := c.dispatch[env.Event]
	if !ok {
		c.log.Debugf("ignoring unknown event %q", env.Event)
		return
	}
	handler(env)
}

func (c *Client) onDisconnected() {
	c.mu.Lock()
	c.state = stateDisconnected
	c.conn = nil
	c.pending = nil
	c.users = nil
	c.username = ""
	c.historySynced = false
	c.publicTyping = false
	c.privateTyping = make(map[string]bool)
	c.mu.Unlock()

	c.log.Infof("disconnected from server")
	c.sink.SendUserList(nil)
	c.sink.SendUsernameChanged("")
	c.sink.SendDisconnected()
}

// Disconnect closes the connection and forgets the desired username.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.desiredUsername = ""
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (c *Client) onUserList(env *protocol.Envelope) {
	var payload protocol.UserList
	if err := env.Decode(&payload); err != nil {
		return
	}

	c.mu.Lock()
	c.users = payload.Users
	desired := c.desiredUsername
	current := c.username
	c.mu.Unlock()

	// Registration is confirmed by the desired name showing up in the
	// list, and revoked by the current name disappearing from it.
	if desired != "" && contains(payload.Users, desired) {
		c.setUsername(desired)
	} else if current != "" && !contains(payload.Users, current) {
		c.setUsername("")
	}
	c.sink.SendUserList(payload.Users)
}

func (c *Client) setUsername(name string) {
	c.mu.Lock()
	if c.username == name {
		c.mu.Unlock()
		return
	}
	c.username = name
	if name == "" {
		c.historySynced = false
	}
	needHistory := name != "" && !c.historySynced
	if needHistory {
		c.historySynced = true
	}
	c.mu.Unlock()

	c.sink.SendUsernameChanged(name)
	if needHistory {
		c.emit(protocol.EventRequestHistory, nil)
	}
}

func (c *Client) onMessage(env *protocol.Envelope) {
	var msg protocol.Message
	if err := env.Decode(&msg); err != nil {
		return
	}
	c.sink.SendMessage(msg)
}

func (c *Client) onPrivateMessage(env *protocol.Envelope) {
	var msg protocol.PrivateMessageEvent
	if err := env.Decode(&msg); err != nil {
		return
	}
	c.sink.SendPrivateMessage(msg)
}

func (c *Client) onPrivateMessageSent(env *protocol.Envelope) {
	var msg protocol.PrivateMessageEvent
	if err := env.Decode(&msg); err != nil {
		return
	}
	c.sink.SendPrivateMessageSent(msg)
}

func (c *Client) onReadReceipt(env *protocol.Envelope) {
	var receipt protocol.ReadReceipt
	if err := env.Decode(&receipt); err != nil {
		return
	}
	c.sink.SendReadReceipt(receipt.MessageID)
}

func (c *Client) onPublicTyping(env *protocol.Envelope) {
	var typing protocol.TypingEvent
	if err := env.Decode(&typing); err != nil || typing.Username == "" {
		return
	}
	c.sink.SendPublicTyping(typing.Username, typing.IsTyping)
}

func (c *Client) onPrivateTyping(env *protocol.Envelope) {
	var typing protocol.TypingEvent
	if err := env.Decode(&typing); err != nil || typing.Username == "" {
		return
	}
	c.sink.SendPrivateTyping(typing.Username, typing.IsTyping)
}

func (c *Client) onChatHistory(env *protocol.Envelope) {
	var history protocol.ChatHistory
	if err := env.Decode(&history); err != nil {
		return
	}
	c.sink.SendHistory(history.Messages)
}

// onKeyExchange caches the peer's key under the sender's username. Keys
// are tracked per peer, not in a single most-recent slot, so encrypting
// to one peer is unaffected by a later key from another.
func (c *Client) onKeyExchange(env *protocol.Envelope) {
	var exchange protocol.KeyExchange
	if err := env.Decode(&exchange); err != nil || exchange.Username == "" {
		return
	}

	pub, err := crypto.ParsePublicKeyPEM(exchange.PublicKey)
	if err != nil {
		c.sink.SendError(fmt.Errorf("rejected public key from %s: %w", exchange.Username, err))
		return
	}

	c.mu.Lock()
	c.peerKeys[exchange.Username] = pub
	c.mu.Unlock()

	c.log.Infof("cached public key for %s", exchange.Username)
	c.sink.SendPeerKey(exchange.Username, crypto.Fingerprint(pub))
}

func (c *Client) onTransferAck(env *protocol.Envelope) {
	var ack protocol.TransferAck
	if err := env.Decode(&ack); err != nil {
		return
	}
	c.sink.SendTransferResult(ack)
}

func (c *Client) onError(env *protocol.Envelope) {
	var payload protocol.ErrorEvent
	if err := env.Decode(&payload); err != nil {
		return
	}
	message := payload.Message
	if message == "" {
		message = "An unknown error occurred."
	}
	c.sink.SendError(errors.New(message))

	// A username-related rejection invalidates the pending registration
	// so the user can pick another name.
	lowered := strings.ToLower(message)
	if !strings.Contains(lowered, "username") && !strings.Contains(lowered, "name") {
		return
	}
	c.mu.Lock()
	desired := c.desiredUsername
	current := c.username
	c.desiredUsername = ""
	c.mu.Unlock()
	if desired != "" && desired == current {
		c.setUsername("")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
