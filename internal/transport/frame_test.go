package transport

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dothash/huddle/internal/protocol"
)

func TestFrameRoundTrip(t *testing.T) {
	env, err := protocol.NewEnvelope("register", &protocol.Register{Username: "alice"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteEnvelope(&buf, env))

	decoded, err := ReadEnvelope(&buf)
	require.NoError(t, err)
	require.Equal(t, "register", decoded.Event)

	var payload protocol.Register
	require.NoError(t, decoded.Decode(&payload))
	require.Equal(t, "alice", payload.Username)
}

func TestFrameRoundTripNilPayload(t *testing.T) {
	env, err := protocol.NewEnvelope("request_history", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteEnvelope(&buf, env))

	decoded, err := ReadEnvelope(&buf)
	require.NoError(t, err)
	require.Equal(t, "request_history", decoded.Event)
}

func TestFrameSequencing(t *testing.T) {
	var buf bytes.Buffer
	for _, name := range []string{"a", "b", "c"} {
		env, err := protocol.NewEnvelope(name, nil)
		require.NoError(t, err)
		require.NoError(t, WriteEnvelope(&buf, env))
	}

	for _, name := range []string{"a", "b", "c"} {
		env, err := ReadEnvelope(&buf)
		require.NoError(t, err)
		require.Equal(t, name, env.Event)
	}

	_, err := ReadEnvelope(&buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadEnvelopeRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(MaxFrameBytes+1)))

	_, err := ReadEnvelope(&buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadEnvelopeTruncatedBody(t *testing.T) {
	env, err := protocol.NewEnvelope("register", &protocol.Register{Username: "alice"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteEnvelope(&buf, env))

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-3])
	_, err = ReadEnvelope(truncated)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadEnvelopeGarbageBody(t *testing.T) {
	var buf bytes.Buffer
	body := []byte{0xff, 0xfe, 0xfd}
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(len(body))))
	buf.Write(body)

	_, err := ReadEnvelope(&buf)
	require.Error(t, err)
}
