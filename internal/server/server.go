package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/dothash/huddle/internal/config"
	huddlelog "github.com/dothash/huddle/internal/logging"
	"github.com/dothash/huddle/internal/protocol"
	"github.com/dothash/huddle/internal/transport"
	"github.com/dothash/huddle/internal/worker"
)

// reapInterval is how often the idle transfer reaper runs.
const reapInterval = 30 * time.Second

// Server wires the transport to the registry, delivery tracker, typing
// relay and transfer table. One instance per process; all state lives in
// memory and dies with it.
type Server struct {
	worker.Group

	cfg *config.Config
	log *logging.Logger

	transport *transport.Server
	registry  *Registry
	tracker   *DeliveryTracker
	transfers *TransferTable
	metrics   *metrics

	dispatch   map[string]func(string, *protocol.Envelope)
	metricsSrv *http.Server
}

// New creates a server from its configuration.
func New(cfg *config.Config, backend *huddlelog.Backend) *Server {
	s := &Server{
		cfg:       cfg,
		log:       backend.GetLogger("server"),
		registry:  NewRegistry(cfg.Limits.HistorySize),
		tracker:   NewDeliveryTracker(),
		transfers: NewTransferTable(),
		metrics:   newMetrics(),
	}
	s.transport = transport.NewServer(s, backend.GetLogger("transport"))
	s.dispatch = map[string]func(string, *protocol.Envelope){
		protocol.EventRegister:           s.handleRegister,
		protocol.EventMessage:            s.handleMessage,
		protocol.EventPrivateMessage:     s.handlePrivateMessage,
		protocol.EventPrivateMessageRead: s.handleReadReceipt,
		protocol.EventTyping:             s.handleTyping,
		protocol.EventRequestHistory:     s.handleRequestHistory,
		protocol.EventKeyExchange:        s.handleKeyExchange,
		protocol.EventPublicFileChunk:    func(h string, e *protocol.Envelope) { s.handleFileChunk(h, e, false) },
		protocol.EventPrivateFileChunk:   func(h string, e *protocol.Envelope) { s.handleFileChunk(h, e, true) },
		protocol.EventTransferAck:        s.handleTransferAck,
	}
	return s
}

// Start begins serving on listener and, when configured, exposes metrics.
func (s *Server) Start(listener net.Listener) {
	s.log.Noticef("listening on %s", listener.Addr())
	s.transport.Start(listener)
	s.Go(s.reaper)

	if s.cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		s.metricsSrv = &http.Server{Addr: s.cfg.MetricsAddress, Handler: mux}
		s.Go(func() {
			s.log.Noticef("metrics on %s", s.cfg.MetricsAddress)
			if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.log.Errorf("metrics listener failed: %v", err)
			}
		})
	}
}

// Halt stops the server and waits for its goroutines.
func (s *Server) Halt() {
	if s.metricsSrv != nil {
		s.metricsSrv.Close()
	}
	s.transport.Halt()
	s.Group.Halt()
}

// Registry exposes the session registry, primarily for tests.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Tracker exposes the delivery tracker, primarily for tests.
func (s *Server) Tracker() *DeliveryTracker {
	return s.tracker
}

// Transfers exposes the transfer table, primarily for tests.
func (s *Server) Transfers() *TransferTable {
	return s.transfers
}

// OnConnect implements transport.Handler. New connections get the public
// history snapshot right away, before they register.
func (s *Server) OnConnect(handle string) {
	s.log.Infof("client connected: %s", handle)
	if history := s.registry.History(); len(history) > 0 {
		s.emit(handle, protocol.EventChatHistory, &protocol.ChatHistory{Messages: history})
	}
}

// OnDisconnect implements transport.Handler.
func (s *Server) OnDisconnect(handle string) {
	s.log.Infof("client disconnected: %s", handle)
	name, users, ok := s.registry.Unregister(handle)
	if !ok {
		return
	}
	s.metrics.sessions.Dec()
	s.log.Infof("user left: %s", name)
	s.broadcast(protocol.EventUserList, &protocol.UserList{Users: users})
}

// OnEvent implements transport.Handler.
func (s *Server) OnEvent(handle string, env *protocol.Envelope) {
	handler, ok := s.dispatch[env.Event]
	if !ok {
		s.log.Debugf("ignoring unknown event %q from %s", env.Event, handle)
		return
	}
	handler(handle, env)
}

func (s *Server) handleRegister(handle string, env *protocol.Envelope) {
	var req protocol.Register
	if err := env.Decode(&req); err != nil {
		s.sendError(handle, "A valid username is required.")
		return
	}

	users, err := s.registry.Register(handle, req.Username)
	switch err {
	case nil:
	case ErrInvalidUsername:
		s.log.Warningf("invalid registration attempt from %s", handle)
		s.sendError(handle, "A valid username is required.")
		return
	case ErrUsernameTaken:
		s.log.Warningf("registration failed for %s: username %q taken", handle, req.Username)
		s.sendError(handle, fmt.Sprintf("Username '%s' is already taken.", req.Username))
		return
	case ErrAlreadyRegistered:
		s.log.Warningf("registration failed for %s: already registered", handle)
		s.sendError(handle, "This connection is already registered.")
		return
	default:
		s.sendError(handle, err.Error())
		return
	}

	s.metrics.sessions.Inc()
	s.log.Infof("user registered: %s (%s)", req.Username, handle)
	s.broadcast(protocol.EventUserList, &protocol.UserList{Users: users})
	if history := s.registry.History(); len(history) > 0 {
		s.emit(handle, protocol.EventChatHistory, &protocol.ChatHistory{Messages: history})
	}
}

func (s *Server) handleMessage(handle string, env *protocol.Envelope) {
	var msg protocol.Message
	if err := env.Decode(&msg); err != nil {
		return
	}

	sender := s.senderName(handle)
	text := trimmed(msg.Message)
	file := protocol.SanitizeFilePayload(msg.File)

	if text == "" && file == nil {
		s.log.Warningf("empty message payload from %s (%s) ignored", sender, handle)
		return
	}

	out := protocol.Message{
		Username:  sender,
		Message:   text,
		File:      file,
		Timestamp: msg.Timestamp,
	}
	s.registry.AppendHistory(out)
	s.metrics.messages.Inc()
	// The sender receives its own broadcast too.
	s.broadcast(protocol.EventMessage, &out)
}

func (s *Server) handlePrivateMessage(handle string, env *protocol.Envelope) {
	var msg protocol.PrivateMessage
	if err := env.Decode(&msg); err != nil {
		s.sendError(handle, "Invalid private message format. Please specify recipient and message.")
		return
	}

	sender := s.senderName(handle)
	recipient := trimmed(msg.Recipient)
	text := trimmed(msg.Message)
	file := protocol.SanitizeFilePayload(msg.File)

	if recipient == "" {
		s.sendError(handle, "A valid recipient is required.")
		return
	}
	if text == "" && file == nil {
		s.sendError(handle, "Cannot send an empty message. Attach a file or include text.")
		return
	}
	if sender == recipient {
		s.log.Warningf("private message failed: %s tried to message themselves", sender)
		s.sendError(handle, "You cannot send a private message to yourself.")
		return
	}

	recipientHandle, ok := s.registry.Lookup(recipient)
	if !ok {
		s.log.Warningf("private message failed: %s not found for sender %s", recipient, sender)
		s.sendError(handle, fmt.Sprintf("User '%s' not found or offline.", recipient))
		return
	}

	id := s.tracker.Track(handle, recipientHandle)
	out := protocol.PrivateMessageEvent{
		Sender:    sender,
		Recipient: recipient,
		Message:   text,
		MessageID: id,
		File:      file,
		Timestamp: msg.Timestamp,
	}

	toRecipient := out
	toRecipient.Status = protocol.StatusDelivered
	s.emit(recipientHandle, protocol.EventPrivateMessageReceived, &toRecipient)

	toSender := out
	toSender.Status = protocol.StatusSent
	s.emit(handle, protocol.EventPrivateMessageSent, &toSender)

	s.metrics.privateMessages.Inc()
	s.log.Infof("private message %d delivered from %s to %s", id, sender, recipient)
}

func (s *Server) handleReadReceipt(handle string, env *protocol.Envelope) {
	var req protocol.ReadReceiptRequest
	if err := env.Decode(&req); err != nil || len(req.MessageIDs) == 0 {
		return
	}

	for _, receipt := range s.tracker.AcknowledgeRead(handle, req.MessageIDs) {
		// If the original sender has disconnected, the receipt is
		// silently dropped, never queued.
		s.emit(receipt.SenderHandle, protocol.EventPrivateMessageRead,
			&protocol.ReadReceipt{MessageID: receipt.MessageID})
	}
}

func (s *Server) handleTyping(handle string, env *protocol.Envelope) {
	var req protocol.Typing
	if err := env.Decode(&req); err != nil {
		return
	}

	username, ok := s.registry.Username(handle)
	if !ok {
		s.log.Warningf("typing event from unknown connection %s", handle)
		return
	}

	out := protocol.TypingEvent{Username: username, IsTyping: req.IsTyping}
	switch req.Context {
	case protocol.ContextPublic:
		s.broadcastExcept(handle, protocol.EventPublicTyping, &out)
	case protocol.ContextPrivate:
		if req.Recipient == "" {
			return
		}
		// Typing is best effort: unresolved recipients are dropped
		// without an error.
		if recipientHandle, ok := s.registry.Lookup(req.Recipient); ok {
			s.emit(recipientHandle, protocol.EventPrivateTyping, &out)
		}
	default:
		s.log.Debugf("ignoring typing event with invalid context %q from %s", req.Context, username)
	}
}

func (s *Server) handleRequestHistory(handle string, env *protocol.Envelope) {
	s.emit(handle, protocol.EventChatHistory, &protocol.ChatHistory{Messages: s.registry.History()})
}

func (s *Server) handleKeyExchange(handle string, env *protocol.Envelope) {
	var req protocol.KeyExchangeRequest
	if err := env.Decode(&req); err != nil || req.TargetUsername == "" || req.PublicKey == "" {
		s.sendError(handle, "Invalid key exchange data")
		return
	}

	sender := s.senderName(handle)
	targetHandle, ok := s.registry.Lookup(req.TargetUsername)
	if !ok {
		s.sendError(handle, fmt.Sprintf("User '%s' not found for key exchange", req.TargetUsername))
		return
	}

	s.emit(targetHandle, protocol.EventKeyExchange,
		&protocol.KeyExchange{Username: sender, PublicKey: req.PublicKey})
	s.log.Infof("public key exchange: %s -> %s", sender, req.TargetUsername)
}

func (s *Server) handleFileChunk(handle string, env *protocol.Envelope, isPrivate bool) {
	var chunk protocol.FileChunk
	if err := env.Decode(&chunk); err != nil {
		s.sendError(handle, "Invalid file chunk")
		return
	}
	if chunk.TransferID == "" || chunk.ChunkIndex < 0 || chunk.ChunkData == "" {
		s.sendError(handle, "Invalid file chunk")
		return
	}

	sender := s.senderName(handle)
	forward := s.transfers.Observe(&chunk, handle, sender, isPrivate)
	s.metrics.chunksRelayed.Inc()

	if isPrivate && chunk.Recipient != "" {
		recipientHandle, ok := s.registry.Lookup(chunk.Recipient)
		if !ok {
			s.sendError(handle, fmt.Sprintf("Recipient '%s' not found", chunk.Recipient))
			return
		}
		s.emit(recipientHandle, protocol.EventFileChunk, &forward)
		s.log.Debugf("private file chunk %d forwarded: %s -> %s", chunk.ChunkIndex, sender, chunk.Recipient)
	} else {
		s.broadcastExcept(handle, protocol.EventFileChunk, &forward)
		s.log.Debugf("public file chunk %d broadcast from %s", chunk.ChunkIndex, sender)
	}

	if s.transfers.Complete(chunk.TransferID) {
		// The record itself is released by the downstream ack.
		s.log.Infof("file transfer complete: %s", chunk.TransferID)
	}
}

func (s *Server) handleTransferAck(handle string, env *protocol.Envelope) {
	var ack protocol.TransferAck
	if err := env.Decode(&ack); err != nil || ack.TransferID == "" {
		return
	}

	senderHandle, ok := s.transfers.Acknowledge(ack.TransferID)
	if !ok {
		return
	}
	s.emit(senderHandle, protocol.EventTransferAck, &ack)
}

// reaper reclaims transfer records that never received an ack.
func (s *Server) reaper() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.HaltCh():
			return
		case <-ticker.C:
			for _, id := range s.transfers.ReapIdle(s.cfg.Limits.TransferIdle()) {
				s.metrics.transfersReaped.Inc()
				s.log.Infof("reclaimed idle transfer %s", id)
			}
		}
	}
}

func (s *Server) senderName(handle string) string {
	if name, ok := s.registry.Username(handle); ok {
		return name
	}
	return "Unknown"
}

func (s *Server) sendError(handle, message string) {
	s.metrics.errorsEmitted.Inc()
	s.emit(handle, protocol.EventError, &protocol.ErrorEvent{Message: message})
}

func (s *Server) emit(handle, event string, payload interface{}) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		s.log.Errorf("failed to encode %s: %v", event, err)
		return
	}
	if err := s.transport.Emit(handle, env); err != nil {
		s.log.Debugf("emit %s to %s: %v", event, handle, err)
	}
}

func (s *Server) broadcast(event string, payload interface{}) {
	s.broadcastExcept("", event, payload)
}

func (s *Server) broadcastExcept(handle, event string, payload interface{}) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		s.log.Errorf("failed to encode %s: %v", event, err)
		return
	}
	s.transport.BroadcastExcept(handle, env)
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
