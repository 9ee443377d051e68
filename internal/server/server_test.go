package server

import (
	"context"
	"io"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yaftp/internal/catalog"
	"yaftp/internal/client"
	"yaftp/internal/transport"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testOptions() transport.Options {
	return transport.Options{
		ChunkSize:  1000,
		Timeout:    200 * time.Millisecond,
		MaxRetries: 10,
		Linger:     100 * time.Millisecond,
	}
}

// serveDir creates a directory holding the given files and a scanner for it
func serveDir(t *testing.T, files map[string][]byte) (string, *catalog.Scanner) {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir, catalog.NewScanner(dir, filepath.Join(dir, "files.txt"), nil, quietLog())
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func startUDP(t *testing.T, scanner *catalog.Scanner, options ...UDPOption) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := NewUDPServer(conn, scanner, testOptions(), quietLog(), options...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		conn.Close()
	})
	return conn.LocalAddr().String()
}

func newClient(t *testing.T, addr string) *client.Client {
	t.Helper()
	c, err := client.New(addr, testOptions(), nil, quietLog())
	require.NoError(t, err)
	return c
}

func TestUDPServer_ListAndDownload(t *testing.T) {
	data := randomBytes(2500)
	_, scanner := serveDir(t, map[string][]byte{
		"b.bin":     data,
		"empty.txt": {},
	})
	c := newClient(t, startUDP(t, scanner))
	ctx := context.Background()

	listing, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []catalog.Entry{
		{Name: "b.bin", Size: 2500},
		{Name: "empty.txt", Size: 0},
	}, listing.Entries())

	dest := t.TempDir()
	res, err := c.Download(ctx, "b.bin", dest)
	require.NoError(t, err)
	assert.Equal(t, transport.ReceiverComplete, res.State)

	got, err := os.ReadFile(filepath.Join(dest, "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	res, err = c.Download(ctx, "empty.txt", dest)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.BytesReceived)
	assert.FileExists(t, filepath.Join(dest, "empty.txt"))
}

func TestUDPServer_UnknownFileCreatesNothing(t *testing.T) {
	_, scanner := serveDir(t, map[string][]byte{"a.txt": []byte("hello")})
	c := newClient(t, startUDP(t, scanner))

	dest := t.TempDir()
	res, err := c.Download(context.Background(), "ghost.bin", dest)

	var remote *transport.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "ghost.bin not found", remote.Message)
	assert.Equal(t, transport.ReceiverAborted, res.State)
	assert.NoFileExists(t, filepath.Join(dest, "ghost.bin"))
}

func TestUDPServer_ListRefreshesCatalog(t *testing.T) {
	dir, scanner := serveDir(t, map[string][]byte{"a.txt": []byte("hello")})
	c := newClient(t, startUDP(t, scanner))
	ctx := context.Background()

	// not in the snapshot taken at startup
	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.txt"), []byte("late"), 0o644))
	_, err := c.Download(ctx, "late.txt", t.TempDir())
	require.Error(t, err)

	listing, err := c.List(ctx)
	require.NoError(t, err)
	entry, ok := listing.Lookup("late.txt")
	require.True(t, ok)
	assert.Equal(t, uint64(4), entry.Size)

	_, err = c.Download(ctx, "late.txt", t.TempDir())
	require.NoError(t, err)

	written, err := catalog.ReadFile(filepath.Join(dir, "files.txt"))
	require.NoError(t, err)
	assert.Equal(t, 2, written.Len())
}

func TestUDPServer_ReplyUsesSizeOnDisk(t *testing.T) {
	dir, scanner := serveDir(t, map[string][]byte{"b.bin": randomBytes(2500)})
	c := newClient(t, startUDP(t, scanner))
	ctx := context.Background()

	listing, err := c.List(ctx)
	require.NoError(t, err)
	entry, _ := listing.Lookup("b.bin")
	require.Equal(t, uint64(2500), entry.Size)

	// rewritten after the listing was taken
	shorter := randomBytes(1000)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), shorter, 0o644))

	dest := t.TempDir()
	res, err := c.Download(ctx, "b.bin", dest)
	require.NoError(t, err)
	assert.Equal(t, transport.ReceiverComplete, res.State)
	assert.Equal(t, uint64(1000), res.Size)

	got, err := os.ReadFile(filepath.Join(dest, "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, shorter, got)
}

func TestUDPServer_RemovedFileIsRefused(t *testing.T) {
	dir, scanner := serveDir(t, map[string][]byte{"gone.bin": randomBytes(300)})
	c := newClient(t, startUDP(t, scanner))

	require.NoError(t, os.Remove(filepath.Join(dir, "gone.bin")))

	dest := t.TempDir()
	res, err := c.Download(context.Background(), "gone.bin", dest)

	var remote *transport.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "gone.bin not found", remote.Message)
	assert.Equal(t, transport.ReceiverAborted, res.State)
	assert.NoFileExists(t, filepath.Join(dest, "gone.bin"))
}

func TestUDPServer_ConcurrentTransfers(t *testing.T) {
	files := map[string][]byte{
		"one.bin":   randomBytes(5000),
		"two.bin":   randomBytes(7000),
		"three.bin": randomBytes(3001),
	}
	_, scanner := serveDir(t, files)
	events := &eventCounter{}
	c := newClient(t, startUDP(t, scanner, WithConcurrentTransfers(true), WithObserver(events)))

	dest := t.TempDir()
	var wg sync.WaitGroup
	for name := range files {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Download(context.Background(), name, dest)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for name, data := range files {
		got, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err)
		assert.Equal(t, data, got, name)
	}

	// each sender reports its start before the first chunk goes out
	assert.GreaterOrEqual(t, events.count(), len(files))
}

type eventCounter struct {
	mu sync.Mutex
	n  int
}

func (c *eventCounter) OnEvent(transport.Event) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *eventCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestUDPServer_IgnoresStrayAck(t *testing.T) {
	_, scanner := serveDir(t, map[string][]byte{"a.txt": []byte("hello")})
	addr := startUDP(t, scanner)

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	server, err := net.ResolveUDPAddr("udp", addr)
	require.NoError(t, err)

	_, err = conn.WriteTo([]byte{0, 0, 0, 7, 0}, server)
	require.NoError(t, err)
	_, err = conn.WriteTo([]byte("HELLO"+"!"), server)
	require.NoError(t, err)

	buf := make([]byte, 256)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	// the only reply is for the garbage, not the ack
	assert.Equal(t, "ERROR: invalid request", string(buf[:n]))
}

func TestUDPServer_StopsOnCancel(t *testing.T) {
	_, scanner := serveDir(t, nil)
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	srv, err := NewUDPServer(conn, scanner, testOptions(), quietLog())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewUDPServerRejectsBadOptions(t *testing.T) {
	_, scanner := serveDir(t, nil)
	_, err := NewUDPServer(nil, scanner, transport.Options{}, quietLog())
	assert.ErrorIs(t, err, transport.ErrInvalidOptions)
}
