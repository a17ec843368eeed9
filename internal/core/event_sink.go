package core

import "github.com/dothash/huddle/internal/protocol"

// EventSink defines an interface for surfacing client events to the UI.
type EventSink interface {
	SendError(err error)
	SendInfo(info string)
	SendConnected()
	SendDisconnected()
	SendUserList(users []string)
	SendUsernameChanged(username string)
	SendMessage(msg protocol.Message)
	SendPrivateMessage(msg protocol.PrivateMessageEvent)
	SendPrivateMessageSent(msg protocol.PrivateMessageEvent)
	SendReadReceipt(messageID int64)
	SendPublicTyping(username string, isTyping bool)
	SendPrivateTyping(username string, isTyping bool)
	SendHistory(messages []protocol.Message)
	SendPeerKey(username, fingerprint string)
	SendTransferProgress(transferID string, received, expected int)
	SendFileReceived(transferID, filename string, data []byte)
	SendTransferResult(ack protocol.TransferAck)
}
