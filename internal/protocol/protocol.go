// Package protocol defines the chat relay event catalogue: the event
// names, their payload records, and the envelope that carries them on the
// wire.
package protocol

import "github.com/fxamacker/cbor/v2"

// --- Protocol Definition ---

// Events sent by clients.
const (
	EventRegister         = "register"
	EventMessage          = "message"
	EventPrivateMessage   = "private_message"
	EventTyping           = "typing"
	EventRequestHistory   = "request_history"
	EventKeyExchange      = "public_key_exchange"
	EventPublicFileChunk  = "public_file_chunk"
	EventPrivateFileChunk = "private_file_chunk"
)

// Events sent by the server. EventPrivateMessageRead, EventKeyExchange and
// EventTransferAck travel in both directions.
const (
	EventUserList               = "update_user_list"
	EventPrivateMessageReceived = "private_message_received"
	EventPrivateMessageSent     = "private_message_sent"
	EventPrivateMessageRead     = "private_message_read"
	EventPublicTyping           = "public_typing"
	EventPrivateTyping          = "private_typing"
	EventChatHistory            = "chat_history"
	EventFileChunk              = "file_chunk"
	EventTransferAck            = "file_transfer_ack"
	EventError                  = "error"
)

// Delivery status of a private message. Transitions are forward-only:
// sent -> delivered -> seen.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusSeen      = "seen"
)

// Typing contexts.
const (
	ContextPublic  = "public"
	ContextPrivate = "private"
)

// Envelope is the framed unit on the wire: an event name plus its
// still-encoded payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload cbor.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope encodes payload and wraps it with the event name.
func NewEnvelope(event string, payload interface{}) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Event: event}, nil
	}
	raw, err := cbor.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Payload: raw}, nil
}

// Decode unmarshals the envelope's payload into v.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return cbor.Unmarshal(e.Payload, v)
}

// Register asks the server to bind a username to the connection.
type Register struct {
	Username string `json:"username"`
}

// UserList is the full set of registered usernames, broadcast on every
// membership change.
type UserList struct {
	Users []string `json:"users"`
}

// Message is a public broadcast. Clients send it without Username; the
// server stamps the sender before rebroadcasting. Timestamp is an opaque
// client clock reading forwarded for latency measurement.
type Message struct {
	Username  string       `json:"username,omitempty"`
	Message   string       `json:"message"`
	File      *FilePayload `json:"file,omitempty"`
	Timestamp float64      `json:"timestamp,omitempty"`
}

// PrivateMessage is the client's request to route a message to one user.
type PrivateMessage struct {
	Recipient string       `json:"recipient"`
	Message   string       `json:"message"`
	File      *FilePayload `json:"file,omitempty"`
	Timestamp float64      `json:"timestamp,omitempty"`
}

// PrivateMessageEvent is emitted twice per routed private message: to the
// recipient with status "delivered" and to the sender with status "sent",
// both carrying the same server-assigned id.
type PrivateMessageEvent struct {
	Sender    string       `json:"sender"`
	Recipient string       `json:"recipient"`
	Message   string       `json:"message"`
	MessageID int64        `json:"message_id"`
	Status    string       `json:"status"`
	File      *FilePayload `json:"file,omitempty"`
	Timestamp float64      `json:"timestamp,omitempty"`
}

// ReadReceiptRequest acknowledges that the caller has seen the listed
// private messages.
type ReadReceiptRequest struct {
	Recipient  string  `json:"recipient,omitempty"`
	MessageIDs []int64 `json:"message_ids"`
}

// ReadReceipt notifies the original sender that one message was seen.
type ReadReceipt struct {
	MessageID int64 `json:"message_id"`
}

// Typing signals the caller's typing state. Recipient is required for the
// private context.
type Typing struct {
	Context   string `json:"context"`
	IsTyping  bool   `json:"is_typing"`
	Recipient string `json:"recipient,omitempty"`
}

// TypingEvent is the relayed form of Typing.
type TypingEvent struct {
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// ChatHistory carries the bounded public history snapshot.
type ChatHistory struct {
	Messages []Message `json:"messages"`
}

// KeyExchangeRequest routes the caller's PEM public key to one user.
type KeyExchangeRequest struct {
	TargetUsername string `json:"target_username"`
	PublicKey      string `json:"public_key"`
}

// KeyExchange is the routed form delivered to the target.
type KeyExchange struct {
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
}

// TransferMetadata describes one chunked transfer. It rides on chunk 0
// only.
type TransferMetadata struct {
	Filename    string `json:"filename"`
	TotalSize   int64  `json:"total_size"`
	TotalChunks int    `json:"total_chunks"`
	FileHash    string `json:"file_hash"`
	ChunkSize   int    `json:"chunk_size"`
}

// FileChunk is one bounded slice of a transfer. Metadata, EncryptedAESKey
// and IV are set on chunk 0 only; Recipient only on private chunks.
type FileChunk struct {
	TransferID      string            `json:"transfer_id"`
	ChunkIndex      int               `json:"chunk_index"`
	ChunkData       string            `json:"chunk_data"`
	IsLastChunk     bool              `json:"is_last_chunk"`
	Metadata        *TransferMetadata `json:"metadata,omitempty"`
	EncryptedAESKey string            `json:"encrypted_aes_key,omitempty"`
	IV              string            `json:"iv,omitempty"`
	Recipient       string            `json:"recipient,omitempty"`
}

// TransferAck reports the outcome of a transfer back through the relay to
// the sender.
type TransferAck struct {
	TransferID string `json:"transfer_id"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// ErrorEvent carries a user-facing error message.
type ErrorEvent struct {
	Message string `json:"message"`
}
