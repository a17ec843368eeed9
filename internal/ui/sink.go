package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dothash/huddle/internal/protocol"
)

// programEventSink forwards client events into the Bubble Tea program.
type programEventSink struct {
	program *tea.Program
}

func (s *programEventSink) SendError(err error) {
	s.program.Send(ErrorMsg{Err: err})
}

func (s *programEventSink) SendInfo(info string) {
	s.program.Send(InfoMsg{Info: info})
}

func (s *programEventSink) SendConnected() {
	s.program.Send(ConnectedMsg{})
}

func (s *programEventSink) SendDisconnected() {
	s.program.Send(DisconnectedMsg{})
}

func (s *programEventSink) SendUserList(users []string) {
	s.program.Send(UserListMsg{Users: users})
}

func (s *programEventSink) SendUsernameChanged(username string) {
	s.program.Send(UsernameMsg{Name: username})
}

func (s *programEventSink) SendMessage(msg protocol.Message) {
	s.program.Send(ChatMsg{Message: msg})
}

func (s *programEventSink) SendPrivateMessage(msg protocol.PrivateMessageEvent) {
	s.program.Send(PrivateMsg{Message: msg})
}

func (s *programEventSink) SendPrivateMessageSent(msg protocol.PrivateMessageEvent) {
	s.program.Send(PrivateSentMsg{Message: msg})
}

func (s *programEventSink) SendReadReceipt(messageID int64) {
	s.program.Send(ReadReceiptMsg{MessageID: messageID})
}

func (s *programEventSink) SendPublicTyping(username string, isTyping bool) {
	s.program.Send(TypingMsg{Username: username, IsTyping: isTyping})
}

func (s *programEventSink) SendPrivateTyping(username string, isTyping bool) {
	s.program.Send(TypingMsg{Username: username, IsTyping: isTyping, Private: true})
}

func (s *programEventSink) SendHistory(messages []protocol.Message) {
	s.program.Send(HistoryMsg{Messages: messages})
}

func (s *programEventSink) SendPeerKey(username, fingerprint string) {
	s.program.Send(PeerKeyMsg{Username: username, Fingerprint: fingerprint})
}

func (s *programEventSink) SendTransferProgress(transferID string, received, expected int) {
	s.program.Send(TransferProgressMsg{TransferID: transferID, Received: received, Expected: expected})
}

func (s *programEventSink) SendFileReceived(transferID, filename string, data []byte) {
	s.program.Send(FileReceivedMsg{TransferID: transferID, Filename: filename, Data: data})
}

func (s *programEventSink) SendTransferResult(ack protocol.TransferAck) {
	s.program.Send(TransferResultMsg{Ack: ack})
}
