package ui

import (
	"github.com/dothash/huddle/internal/protocol"
)

// --- Bubbletea Messages ---

type (
	ConnectedMsg    struct{}
	DisconnectedMsg struct{}
	InfoMsg         struct{ Info string }
	ErrorMsg        struct{ Err error }
	UserListMsg     struct{ Users []string }
	UsernameMsg     struct{ Name string }
	ChatMsg         struct{ Message protocol.Message }
	PrivateMsg      struct{ Message protocol.PrivateMessageEvent }
	PrivateSentMsg  struct{ Message protocol.PrivateMessageEvent }
	ReadReceiptMsg  struct{ MessageID int64 }
	HistoryMsg      struct{ Messages []protocol.Message }
)

type TypingMsg struct {
	Username string
	IsTyping bool
	Private  bool
}

type PeerKeyMsg struct {
	Username    string
	Fingerprint string
}

type TransferProgressMsg struct {
	TransferID string
	Received   int
	Expected   int
}

type FileReceivedMsg struct {
	TransferID string
	Filename   string
	Data       []byte
}

type TransferResultMsg struct{ Ack protocol.TransferAck }
