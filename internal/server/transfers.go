package server

import (
	"sync"
	"time"

	"github.com/dothash/huddle/internal/protocol"
)

// TransferTable tracks in-flight relayed transfers. The relay never
// inspects chunk content; it only remembers who is sending, re-attaches
// the chunk 0 metadata when forwarding, and counts progress so abandoned
// records can be reclaimed.
type TransferTable struct {
	mu sync.Mutex

	records map[string]*transferRecord
	now     func() time.Time
}

type transferRecord struct {
	senderHandle   string
	senderUsername string
	recipient      string
	isPrivate      bool

	totalChunks    int
	receivedChunks int

	metadata     *protocol.TransferMetadata
	encryptedKey string
	iv           string

	lastActivity time.Time
}

// NewTransferTable creates an empty table.
func NewTransferTable() *TransferTable {
	return &TransferTable{
		records: make(map[string]*transferRecord),
		now:     time.Now,
	}
}

// Observe records one relayed chunk, creating the transfer on first
// sight, and returns the payload to forward. Chunk 0's metadata, wrapped
// key and IV are captured and re-attached to the forwarded copy.
func (t *TransferTable) Observe(chunk *protocol.FileChunk, senderHandle, senderUsername string, isPrivate bool) protocol.FileChunk {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[chunk.TransferID]
	if !ok {
		rec = &transferRecord{
			senderHandle:   senderHandle,
			senderUsername: senderUsername,
			recipient:      chunk.Recipient,
			isPrivate:      isPrivate,
		}
		t.records[chunk.TransferID] = rec
	}

	if chunk.ChunkIndex == 0 && chunk.Metadata != nil {
		meta := *chunk.Metadata
		rec.metadata = &meta
		rec.totalChunks = meta.TotalChunks
		rec.encryptedKey = chunk.EncryptedAESKey
		rec.iv = chunk.IV
	}
	rec.receivedChunks++
	rec.lastActivity = t.now()

	forward := protocol.FileChunk{
		TransferID:  chunk.TransferID,
		ChunkIndex:  chunk.ChunkIndex,
		ChunkData:   chunk.ChunkData,
		IsLastChunk: chunk.IsLastChunk,
	}
	if chunk.ChunkIndex == 0 {
		forward.Metadata = rec.metadata
		forward.EncryptedAESKey = rec.encryptedKey
		forward.IV = rec.iv
	}
	return forward
}

// Complete reports whether every announced chunk has passed through.
func (t *TransferTable) Complete(transferID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[transferID]
	return ok && rec.totalChunks > 0 && rec.receivedChunks >= rec.totalChunks
}

// Acknowledge releases the transfer record and returns the sender handle
// the ack should be forwarded to.
func (t *TransferTable) Acknowledge(transferID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[transferID]
	if !ok {
		return "", false
	}
	delete(t.records, transferID)
	return rec.senderHandle, true
}

// ReapIdle removes records whose last activity is older than maxIdle and
// returns their ids. Transfers that never receive an acknowledgement
// would otherwise accumulate forever.
func (t *TransferTable) ReapIdle(maxIdle time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-maxIdle)
	var reaped []string
	for id, rec := range t.records {
		if rec.lastActivity.Before(cutoff) {
			delete(t.records, id)
			reaped = append(reaped, id)
		}
	}
	return reaped
}

// Len reports the number of live transfer records.
func (t *TransferTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
