// Package filetransfer implements the chunked, encrypted file transfer
// codec: preparing a plaintext for transmission and reassembling it from
// chunks arriving in any order.
package filetransfer

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dothash/huddle/internal/crypto"
	"github.com/dothash/huddle/internal/protocol"
)

// DefaultChunkSize is the ciphertext slice size: 64 KiB, last chunk may be
// shorter.
const DefaultChunkSize = 64 * 1024

var (
	// ErrIntegrity means the reassembled plaintext digest did not match
	// the sender's. The plaintext is discarded.
	ErrIntegrity = errors.New("filetransfer: digest verification failed")

	// ErrMissingChunk means reassembly was attempted with a gap in the
	// chunk sequence.
	ErrMissingChunk = errors.New("filetransfer: missing chunk")

	// ErrNoMetadata means chunk 0, which carries the transfer metadata,
	// never arrived.
	ErrNoMetadata = errors.New("filetransfer: transfer metadata not received")
)

// Split slices data into chunkSize pieces, preserving order. The last
// chunk may be shorter. chunkSize must be positive.
func Split(data []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		panic("filetransfer: chunk size must be positive")
	}
	chunks := make([][]byte, 0, (len(data)+chunkSize-1)/chunkSize)
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}

// Outgoing is a fully prepared encrypted transfer: ciphertext chunks plus
// the metadata, wrapped session key and IV that ride on chunk 0.
type Outgoing struct {
	ID           string
	Metadata     protocol.TransferMetadata
	EncryptedKey string
	IV           string

	chunks [][]byte
}

// Prepare encrypts plaintext for the peer and slices it for transmission:
// digest of the plaintext, fresh AES-256 session key and IV, AES-CBC
// encryption, chunking, and OAEP wrapping of the key.
func Prepare(plaintext []byte, filename string, peer *rsa.PublicKey, chunkSize int) (*Outgoing, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	digest := crypto.Digest(plaintext)

	key, err := crypto.NewSessionKey()
	if err != nil {
		return nil, err
	}
	ciphertext, iv, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt file: %w", err)
	}
	wrapped, err := crypto.WrapKey(peer, key)
	if err != nil {
		return nil, err
	}

	chunks := Split(ciphertext, chunkSize)
	return &Outgoing{
		ID: uuid.New().String(),
		Metadata: protocol.TransferMetadata{
			Filename:    filename,
			TotalSize:   int64(len(plaintext)),
			TotalChunks: len(chunks),
			FileHash:    digest,
			ChunkSize:   chunkSize,
		},
		EncryptedKey: wrapped,
		IV:           base64.StdEncoding.EncodeToString(iv),
		chunks:       chunks,
	}, nil
}

// ChunkCount returns the number of chunks to emit.
func (o *Outgoing) ChunkCount() int {
	return len(o.chunks)
}

// Chunk builds the wire payload for chunk i. Metadata, the wrapped key
// and the IV are attached to chunk 0 only.
func (o *Outgoing) Chunk(i int) protocol.FileChunk {
	c := protocol.FileChunk{
		TransferID:  o.ID,
		ChunkIndex:  i,
		ChunkData:   base64.StdEncoding.EncodeToString(o.chunks[i]),
		IsLastChunk: i == len(o.chunks)-1,
	}
	if i == 0 {
		meta := o.Metadata
		c.Metadata = &meta
		c.EncryptedAESKey = o.EncryptedKey
		c.IV = o.IV
	}
	return c
}

// Assembler collects the chunks of one inbound transfer, tolerating any
// arrival order, and reproduces the verified plaintext.
type Assembler struct {
	id     string
	chunks map[int][]byte

	meta         *protocol.TransferMetadata
	encryptedKey string
	iv           string
}

// NewAssembler creates an assembler for one transfer id.
func NewAssembler(id string) *Assembler {
	return &Assembler{
		id:     id,
		chunks: make(map[int][]byte),
	}
}

// Add records one chunk. Re-delivered indexes overwrite in place and do
// not advance progress.
func (a *Assembler) Add(chunk *protocol.FileChunk) error {
	if chunk.ChunkIndex < 0 {
		return fmt.Errorf("filetransfer: negative chunk index %d", chunk.ChunkIndex)
	}
	data, err := base64.StdEncoding.DecodeString(chunk.ChunkData)
	if err != nil {
		return fmt.Errorf("failed to decode chunk %d: %w", chunk.ChunkIndex, err)
	}
	a.chunks[chunk.ChunkIndex] = data

	if chunk.ChunkIndex == 0 && chunk.Metadata != nil {
		meta := *chunk.Metadata
		a.meta = &meta
		a.encryptedKey = chunk.EncryptedAESKey
		a.iv = chunk.IV
	}
	return nil
}

// Progress reports (received, expected). Expected is zero until chunk 0,
// which carries the metadata, has arrived.
func (a *Assembler) Progress() (int, int) {
	expected := 0
	if a.meta != nil {
		expected = a.meta.TotalChunks
	}
	return len(a.chunks), expected
}

// Complete reports whether every expected chunk has been received.
func (a *Assembler) Complete() bool {
	received, expected := a.Progress()
	return expected > 0 && received >= expected
}

// Metadata returns the transfer metadata, or nil before chunk 0 arrives.
func (a *Assembler) Metadata() *protocol.TransferMetadata {
	return a.meta
}

// Assemble concatenates the chunks in index order, unwraps the session
// key with priv, decrypts, and verifies the plaintext digest. A digest
// mismatch returns ErrIntegrity and no plaintext.
func (a *Assembler) Assemble(priv *rsa.PrivateKey) ([]byte, error) {
	if a.meta == nil {
		return nil, ErrNoMetadata
	}

	ciphertext := make([]byte, 0)
	for i := 0; i < a.meta.TotalChunks; i++ {
		chunk, ok := a.chunks[i]
		if !ok {
			return nil, fmt.Errorf("%w: index %d", ErrMissingChunk, i)
		}
		ciphertext = append(ciphertext, chunk...)
	}

	key, err := crypto.UnwrapKey(priv, a.encryptedKey)
	if err != nil {
		return nil, err
	}
	iv, err := base64.StdEncoding.DecodeString(a.iv)
	if err != nil {
		return nil, fmt.Errorf("failed to decode IV: %w", err)
	}
	plaintext, err := crypto.Decrypt(ciphertext, key, iv)
	if err != nil {
		// Tampered ciphertext usually surfaces as a padding error;
		// report it as an integrity failure either way.
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	if crypto.Digest(plaintext) != a.meta.FileHash {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
