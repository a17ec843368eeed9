package client

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/dothash/huddle/internal/filetransfer"
	"github.com/dothash/huddle/internal/protocol"
)

// readFileChecked reads a file destined for transmission, enforcing the
// same bounds the server does: regular, non-empty, at most 5 MiB.
func readFileChecked(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New("selected file could not be accessed")
	}
	if !info.Mode().IsRegular() {
		return nil, errors.New("selected file is not a regular file")
	}
	if info.Size() <= 0 {
		return nil, errors.New("cannot send empty files")
	}
	if info.Size() > protocol.MaxFileBytes {
		return nil, errors.New("file exceeds the 5 MB limit")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("failed to read the selected file")
	}
	return raw, nil
}

// prepareFilePayload reads and validates a file for inline transmission.
func prepareFilePayload(path string) (*protocol.FilePayload, error) {
	raw, err := readFileChecked(path)
	if err != nil {
		return nil, err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return &protocol.FilePayload{
		Name: filepath.Base(path),
		Mime: mimeType,
		Size: int64(len(raw)),
		Data: base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// sendEncryptedFile runs the encrypted chunked path: prepare the
// transfer and emit its chunks in index order, reporting progress as it
// goes.
func (c *Client) sendEncryptedFile(recipient, path string, peerKey *rsa.PublicKey) {
	data, err := readFileChecked(path)
	if err != nil {
		c.sink.SendError(err)
		return
	}

	outgoing, err := filetransfer.Prepare(data, filepath.Base(path), peerKey, filetransfer.DefaultChunkSize)
	if err != nil {
		c.sink.SendError(fmt.Errorf("failed to prepare transfer: %w", err))
		return
	}

	c.log.Infof("sending %s to %s in %d chunks (transfer %s)",
		outgoing.Metadata.Filename, recipient, outgoing.ChunkCount(), outgoing.ID)

	total := outgoing.ChunkCount()
	for i := 0; i < total; i++ {
		chunk := outgoing.Chunk(i)
		chunk.Recipient = recipient
		c.emit(protocol.EventPrivateFileChunk, &chunk)
		c.sink.SendTransferProgress(outgoing.ID, i+1, total)
	}
}

// onFileChunk feeds an inbound chunk to its transfer's assembler and
// finishes the transfer once every chunk has arrived. Both outcomes are
// acknowledged through the relay so it can release its record.
func (c *Client) onFileChunk(env *protocol.Envelope) {
	var chunk protocol.FileChunk
	if err := env.Decode(&chunk); err != nil || chunk.TransferID == "" {
		return
	}

	c.transferMu.Lock()
	assembler, ok := c.assemblers[chunk.TransferID]
	if !ok {
		assembler = filetransfer.NewAssembler(chunk.TransferID)
		c.assemblers[chunk.TransferID] = assembler
	}

	if err := assembler.Add(&chunk); err != nil {
		delete(c.assemblers, chunk.TransferID)
		c.transferMu.Unlock()
		c.failTransfer(chunk.TransferID, err)
		return
	}

	received, expected := assembler.Progress()
	complete := assembler.Complete()
	if complete {
		delete(c.assemblers, chunk.TransferID)
	}
	c.transferMu.Unlock()

	c.sink.SendTransferProgress(chunk.TransferID, received, expected)
	if !complete {
		return
	}

	plaintext, err := assembler.Assemble(c.key)
	if err != nil {
		c.failTransfer(chunk.TransferID, err)
		return
	}

	c.sink.SendFileReceived(chunk.TransferID, assembler.Metadata().Filename, plaintext)
	c.emit(protocol.EventTransferAck, &protocol.TransferAck{
		TransferID: chunk.TransferID,
		Success:    true,
	})
}

func (c *Client) failTransfer(transferID string, err error) {
	c.log.Warningf("transfer %s failed: %v", transferID, err)
	c.sink.SendError(fmt.Errorf("file transfer failed: %w", err))
	c.emit(protocol.EventTransferAck, &protocol.TransferAck{
		TransferID: transferID,
		Success:    false,
		Error:      err.Error(),
	})
}
