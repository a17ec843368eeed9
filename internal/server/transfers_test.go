package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dothash/huddle/internal/protocol"
)

func testChunk(id string, index int, data string) *protocol.FileChunk {
	return &protocol.FileChunk{
		TransferID: id,
		ChunkIndex: index,
		ChunkData:  data,
	}
}

func TestTransferTableForwardsMetadataOnFirstChunk(t *testing.T) {
	table := NewTransferTable()

	first := testChunk("t1", 0, "AAAA")
	first.Metadata = &protocol.TransferMetadata{
		Filename:    "report.pdf",
		TotalSize:   100,
		TotalChunks: 2,
		FileHash:    "abc",
		ChunkSize:   64,
	}
	first.EncryptedAESKey = "wrapped-key"
	first.IV = "iv"
	first.Recipient = "bob"

	forward := table.Observe(first, "h1", "alice", true)
	require.NotNil(t, forward.Metadata)
	require.Equal(t, "report.pdf", forward.Metadata.Filename)
	require.Equal(t, "wrapped-key", forward.EncryptedAESKey)
	require.Equal(t, "iv", forward.IV)
	require.Equal(t, "AAAA", forward.ChunkData)

	// Later chunks carry data only.
	second := testChunk("t1", 1, "BBBB")
	second.IsLastChunk = true
	forward = table.Observe(second, "h1", "alice", true)
	require.Nil(t, forward.Metadata)
	require.Empty(t, forward.EncryptedAESKey)
	require.True(t, forward.IsLastChunk)
}

func TestTransferTableComplete(t *testing.T) {
	table := NewTransferTable()

	first := testChunk("t1", 0, "AAAA")
	first.Metadata = &protocol.TransferMetadata{TotalChunks: 2}
	table.Observe(first, "h1", "alice", true)
	require.False(t, table.Complete("t1"))

	table.Observe(testChunk("t1", 1, "BBBB"), "h1", "alice", true)
	require.True(t, table.Complete("t1"))

	// Unknown and metadata-less transfers are never complete.
	require.False(t, table.Complete("missing"))
	table.Observe(testChunk("t2", 1, "CCCC"), "h1", "alice", true)
	require.False(t, table.Complete("t2"))
}

func TestTransferTableAcknowledge(t *testing.T) {
	table := NewTransferTable()

	table.Observe(testChunk("t1", 0, "AAAA"), "h1", "alice", true)
	require.Equal(t, 1, table.Len())

	sender, ok := table.Acknowledge("t1")
	require.True(t, ok)
	require.Equal(t, "h1", sender)
	require.Equal(t, 0, table.Len())

	_, ok = table.Acknowledge("t1")
	require.False(t, ok)
}

func TestTransferTableReapIdle(t *testing.T) {
	table := NewTransferTable()

	clock := time.Now()
	table.now = func() time.Time { return clock }

	table.Observe(testChunk("stale", 0, "AAAA"), "h1", "alice", true)

	clock = clock.Add(4 * time.Minute)
	table.Observe(testChunk("fresh", 0, "BBBB"), "h2", "bob", false)

	clock = clock.Add(2 * time.Minute)
	reaped := table.ReapIdle(5 * time.Minute)
	require.Equal(t, []string{"stale"}, reaped)
	require.Equal(t, 1, table.Len())

	// The surviving transfer is still acknowledgeable.
	_, ok := table.Acknowledge("fresh")
	require.True(t, ok)
}
