// Package transport carries protocol envelopes over TCP: a 4-byte
// big-endian length prefix followed by the CBOR-encoded envelope. It
// provides the server's connection registry with per-connection handles
// and the client's dialer.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/dothash/huddle/internal/protocol"
)

// MaxFrameBytes bounds a single frame. A 5 MiB file payload arrives
// base64-encoded inside one envelope, so the bound leaves generous room
// above that.
const MaxFrameBytes = 16 * 1024 * 1024

// ErrFrameTooLarge is returned when a peer announces a frame above
// MaxFrameBytes. The connection is unusable afterwards.
var ErrFrameTooLarge = errors.New("transport: frame exceeds size bound")

// WriteEnvelope frames and writes a single envelope.
func WriteEnvelope(w io.Writer, env *protocol.Envelope) error {
	body, err := cbor.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if len(body) > MaxFrameBytes {
		return ErrFrameTooLarge
	}

	frame := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(body)), uint32(len(body)))
	frame = append(frame, body...)
	_, err = w.Write(frame)
	return err
}

// ReadEnvelope reads and decodes a single framed envelope.
func ReadEnvelope(r io.Reader) (*protocol.Envelope, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	env := new(protocol.Envelope)
	if err := cbor.Unmarshal(body, env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return env, nil
}
