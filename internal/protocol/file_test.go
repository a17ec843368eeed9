package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFilePayload(t *testing.T) {
	out := SanitizeFilePayload(&FilePayload{
		Name: "notes.txt",
		Mime: "text/plain",
		Size: 4,
		Data: "QUFBQQ==",
	})
	require.NotNil(t, out)
	require.Equal(t, "notes.txt", out.Name)
	require.Equal(t, "text/plain", out.Mime)
}

func TestSanitizeFilePayloadRejects(t *testing.T) {
	require.Nil(t, SanitizeFilePayload(nil))
	require.Nil(t, SanitizeFilePayload(&FilePayload{Name: "empty.txt"}))
	require.Nil(t, SanitizeFilePayload(&FilePayload{
		Name: "big.bin",
		Size: MaxFileBytes + 1,
		Data: "QUFBQQ==",
	}))

	// Encoded data above the bound is rejected even when the declared
	// size lies.
	require.Nil(t, SanitizeFilePayload(&FilePayload{
		Name: "liar.bin",
		Size: 4,
		Data: strings.Repeat("A", maxEncodedLen+1),
	}))
}

func TestSanitizeFilePayloadClamps(t *testing.T) {
	out := SanitizeFilePayload(&FilePayload{
		Name: strings.Repeat("n", 300),
		Mime: strings.Repeat("m", 300),
		Size: 4,
		Data: "QUFBQQ==",
	})
	require.NotNil(t, out)
	require.Len(t, out.Name, 255)
	require.Len(t, out.Mime, 255)
}

func TestSanitizeFilePayloadDefaultsMime(t *testing.T) {
	out := SanitizeFilePayload(&FilePayload{
		Name: "blob",
		Size: 4,
		Data: "QUFBQQ==",
	})
	require.NotNil(t, out)
	require.Equal(t, "application/octet-stream", out.Mime)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(EventPrivateMessage, &PrivateMessage{
		Recipient: "bob",
		Message:   "hi",
	})
	require.NoError(t, err)
	require.Equal(t, EventPrivateMessage, env.Event)

	var out PrivateMessage
	require.NoError(t, env.Decode(&out))
	require.Equal(t, "bob", out.Recipient)
	require.Equal(t, "hi", out.Message)
}

func TestEnvelopeDecodeNilPayload(t *testing.T) {
	env, err := NewEnvelope(EventRequestHistory, nil)
	require.NoError(t, err)

	var out Register
	require.NoError(t, env.Decode(&out))
	require.Empty(t, out.Username)
}
