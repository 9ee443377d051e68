package ui

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yaftp/internal/catalog"
	"yaftp/internal/transport"
)

func TestConsoleUI_CompletedDownload(t *testing.T) {
	var out bytes.Buffer
	c := NewConsoleUI(&out)

	for _, e := range []transport.Event{
		{Direction: transport.Download, Name: "a.bin", ReceiverState: transport.ReceiverAwaitingSize},
		{Direction: transport.Download, Name: "a.bin", ReceiverState: transport.ReceiverReceivingChunk, Size: 2000},
		{Direction: transport.Download, Name: "a.bin", ReceiverState: transport.ReceiverReceivingChunk, Size: 2000, Bytes: 1000},
		{Direction: transport.Download, Name: "a.bin", ReceiverState: transport.ReceiverComplete, Size: 2000, Bytes: 2000},
	} {
		c.OnEvent(e)
	}

	assert.Contains(t, out.String(), "Receiving a.bin completed successfully!")
	assert.Contains(t, out.String(), "+ Total bytes: 2.0 KB")
	assert.Nil(t, c.bar)
}

func TestConsoleUI_FailedUpload(t *testing.T) {
	var out bytes.Buffer
	c := NewConsoleUI(&out)

	c.OnEvent(transport.Event{Direction: transport.Upload, Name: "b.bin", SenderState: transport.SenderSending, Size: 5000})
	c.OnEvent(transport.Event{Direction: transport.Upload, Name: "b.bin", SenderState: transport.SenderFailed, Size: 5000, Bytes: 1024, Err: errors.New("no ack")})

	assert.Contains(t, out.String(), "Sending b.bin failed after 1.0 KB: no ack")
	assert.NotContains(t, out.String(), "completed successfully")
}

func TestConsoleUI_RefusedDownloadHasNoBar(t *testing.T) {
	var out bytes.Buffer
	c := NewConsoleUI(&out)

	c.OnEvent(transport.Event{Direction: transport.Download, Name: "ghost", ReceiverState: transport.ReceiverAwaitingSize})
	c.OnEvent(transport.Event{
		Direction:     transport.Download,
		Name:          "ghost",
		ReceiverState: transport.ReceiverAborted,
		Err:           &transport.RemoteError{Message: "ghost not found"},
	})

	assert.Equal(t, "Receiving ghost failed: server error: ghost not found\n", out.String())
	assert.Nil(t, c.bar)
}

func TestConsoleUI_EmptyFile(t *testing.T) {
	var out bytes.Buffer
	c := NewConsoleUI(&out)

	c.OnEvent(transport.Event{Direction: transport.Download, Name: "empty", ReceiverState: transport.ReceiverReceivingChunk})
	c.OnEvent(transport.Event{Direction: transport.Download, Name: "empty", ReceiverState: transport.ReceiverComplete})

	assert.Contains(t, out.String(), "Receiving empty completed successfully!")
}

func TestConsoleUI_ByteProgress(t *testing.T) {
	var out bytes.Buffer
	c := NewConsoleUI(&out)

	w := c.ByteProgress("big.bin", 10)
	n, err := io.WriteString(w, "0123456789")
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Contains(t, out.String(), "Receiving big.bin")
}

func TestConsoleUI_ShowListing(t *testing.T) {
	var out bytes.Buffer
	c := NewConsoleUI(&out)

	c.ShowListing(catalog.Empty())
	assert.Equal(t, "No files available.\n", out.String())

	out.Reset()
	listing, err := catalog.New([]catalog.Entry{{Name: "a.txt", Size: 12}, {Name: "b.bin", Size: 2048}})
	require.NoError(t, err)
	c.ShowListing(listing)
	assert.Contains(t, out.String(), "Available files:")
	assert.Contains(t, out.String(), "a.txt")
	assert.Contains(t, out.String(), "2.0 KB")
}
