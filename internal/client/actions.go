package client

import (
	"errors"
	"strings"

	"github.com/dothash/huddle/internal/crypto"
	"github.com/dothash/huddle/internal/protocol"
)

// Register requests the given display name. The actual registration is
// confirmed asynchronously via the user list.
func (c *Client) Register(username string) {
	desired := strings.TrimSpace(username)
	if desired == "" {
		c.sink.SendError(errors.New("username cannot be empty"))
		return
	}

	c.mu.Lock()
	c.desiredUsername = desired
	c.mu.Unlock()

	c.emit(protocol.EventRegister, &protocol.Register{Username: desired})
}

// SendMessage broadcasts a public text message.
func (c *Client) SendMessage(text string) {
	c.SendMessageWithAttachment(text, "")
}

// SendMessageWithAttachment broadcasts a public message with an optional
// file attached from path.
func (c *Client) SendMessageWithAttachment(text, path string) {
	text = strings.TrimSpace(text)

	var file *protocol.FilePayload
	if path != "" {
		var err error
		file, err = prepareFilePayload(path)
		if err != nil {
			c.sink.SendError(err)
			return
		}
	}
	if text == "" && file == nil {
		c.sink.SendError(errors.New("cannot send an empty message"))
		return
	}

	c.emit(protocol.EventMessage, &protocol.Message{Message: text, File: file})
}

// SendPublicFile broadcasts a file to everyone. Public files travel as
// plain attachments.
func (c *Client) SendPublicFile(path string) {
	c.SendMessageWithAttachment("", path)
}

// SendPrivateMessage sends a private text message to recipient.
func (c *Client) SendPrivateMessage(recipient, text string) {
	c.SendPrivateMessageWithAttachment(recipient, text, "")
}

// SendPrivateMessageWithAttachment sends a private message with an
// optional plain file attachment.
func (c *Client) SendPrivateMessageWithAttachment(recipient, text, path string) {
	recipient = strings.TrimSpace(recipient)
	text = strings.TrimSpace(text)

	if recipient == "" {
		c.sink.SendError(errors.New("recipient is required for private messages"))
		return
	}

	var file *protocol.FilePayload
	if path != "" {
		var err error
		file, err = prepareFilePayload(path)
		if err != nil {
			c.sink.SendError(err)
			return
		}
	}
	if text == "" && file == nil {
		c.sink.SendError(errors.New("cannot send an empty private message, attach a file or include text"))
		return
	}

	c.emit(protocol.EventPrivateMessage, &protocol.PrivateMessage{
		Recipient: recipient,
		Message:   text,
		File:      file,
	})
}

// SendPrivateFile sends a file to one user: end-to-end encrypted in
// chunks when the recipient's public key is cached, or as a plain
// attachment when it is not.
func (c *Client) SendPrivateFile(recipient, path string) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		c.sink.SendError(errors.New("recipient is required for private messages"))
		return
	}

	c.mu.Lock()
	peerKey := c.peerKeys[recipient]
	c.mu.Unlock()

	if peerKey == nil {
		c.sink.SendInfo("No public key for " + recipient + "; sending unencrypted.")
		c.SendPrivateMessageWithAttachment(recipient, "", path)
		return
	}
	c.sendEncryptedFile(recipient, path, peerKey)
}

// IndicatePublicTyping reports the local typing state for the public
// room. Unchanged states are suppressed.
func (c *Client) IndicatePublicTyping(isTyping bool) {
	c.mu.Lock()
	if c.publicTyping == isTyping {
		c.mu.Unlock()
		return
	}
	c.publicTyping = isTyping
	c.mu.Unlock()

	c.emit(protocol.EventTyping, &protocol.Typing{
		Context:  protocol.ContextPublic,
		IsTyping: isTyping,
	})
}

// IndicatePrivateTyping reports the local typing state towards one
// recipient. Unchanged states are suppressed per recipient.
func (c *Client) IndicatePrivateTyping(recipient string, isTyping bool) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return
	}

	c.mu.Lock()
	previous, tracked := c.privateTyping[recipient]
	if tracked && previous == isTyping {
		c.mu.Unlock()
		return
	}
	if !tracked && !isTyping {
		c.mu.Unlock()
		return
	}
	if isTyping {
		c.privateTyping[recipient] = true
	} else {
		delete(c.privateTyping, recipient)
	}
	c.mu.Unlock()

	c.emit(protocol.EventTyping, &protocol.Typing{
		Context:   protocol.ContextPrivate,
		IsTyping:  isTyping,
		Recipient: recipient,
	})
}

// MarkPrivateMessagesRead acknowledges the given private messages as
// seen.
func (c *Client) MarkPrivateMessagesRead(messageIDs []int64) {
	if len(messageIDs) == 0 {
		return
	}
	c.emit(protocol.EventPrivateMessageRead, &protocol.ReadReceiptRequest{MessageIDs: messageIDs})
}

// SharePublicKey sends this client's public key to one user, enabling
// them to send us encrypted files.
func (c *Client) SharePublicKey(target string) {
	target = strings.TrimSpace(target)
	if target == "" {
		c.sink.SendError(errors.New("key exchange target is required"))
		return
	}

	pemKey, err := crypto.PublicKeyPEM(&c.key.PublicKey)
	if err != nil {
		c.sink.SendError(err)
		return
	}
	c.emit(protocol.EventKeyExchange, &protocol.KeyExchangeRequest{
		TargetUsername: target,
		PublicKey:      pemKey,
	})
}
