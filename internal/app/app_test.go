package app

import (
	"context"
	"errors"
	"io"
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
	"yaftp/internal/config"
	"yaftp/internal/transport"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeFetcher struct {
	listing *catalog.Catalog
	fail    map[string]error

	mu    sync.Mutex
	got   []string
	lists int
}

func (f *fakeFetcher) List(context.Context) (*catalog.Catalog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return f.listing, nil
}

func (f *fakeFetcher) Download(_ context.Context, name, _ string) (*transport.ReceiveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, name)
	if err := f.fail[name]; err != nil {
		return &transport.ReceiveResult{State: transport.ReceiverAborted}, err
	}
	return &transport.ReceiveResult{State: transport.ReceiverComplete}, nil
}

func (f *fakeFetcher) downloaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

type fakeRanges struct {
	listing *catalog.Catalog
	sizes   map[string]int64
	lists   int
}

func (f *fakeRanges) List(context.Context) (*catalog.Catalog, error) {
	f.lists++
	return f.listing, nil
}

func (f *fakeRanges) Download(_ context.Context, name string, size int64, destDir string) (string, error) {
	f.sizes[name] = size
	return filepath.Join(destDir, name), nil
}

type fakeNames chan string

func (f fakeNames) Subscribe(context.Context) (<-chan string, error) {
	return f, nil
}

type fakeDisplay struct {
	mu       sync.Mutex
	messages []string
	listings int
}

func (d *fakeDisplay) ShowMessage(m string) {
	d.mu.Lock()
	d.messages = append(d.messages, m)
	d.mu.Unlock()
}

func (d *fakeDisplay) ShowListing(*catalog.Catalog) {
	d.mu.Lock()
	d.listings++
	d.mu.Unlock()
}

func mustCatalog(t *testing.T, entries ...catalog.Entry) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(entries)
	require.NoError(t, err)
	return c
}

func TestClientApp_DownloadsEachNameOnce(t *testing.T) {
	udp := &fakeFetcher{listing: catalog.Empty()}
	display := &fakeDisplay{}
	a := NewClientApp(udp, nil, nil, display, quietLog())

	err := a.Run(context.Background(), &ClientOptions{Names: []string{"a", "b", "a"}, DestDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, udp.downloaded())
	assert.Equal(t, 1, display.listings)
}

func TestClientApp_ReportsFailures(t *testing.T) {
	udp := &fakeFetcher{
		listing: catalog.Empty(),
		fail:    map[string]error{"bad": &transport.RemoteError{Message: "bad not found"}},
	}
	display := &fakeDisplay{}
	a := NewClientApp(udp, nil, nil, display, quietLog())

	err := a.Run(context.Background(), &ClientOptions{Names: []string{"good", "bad"}})
	assert.ErrorIs(t, err, ErrDownloadsFailed)
	assert.Equal(t, []string{"good", "bad"}, udp.downloaded())
	assert.Contains(t, display.messages, "Failed to download bad: server error: bad not found")
}

func TestClientApp_RequiresWork(t *testing.T) {
	a := NewClientApp(&fakeFetcher{listing: catalog.Empty()}, nil, nil, &fakeDisplay{}, quietLog())
	assert.ErrorIs(t, a.Run(context.Background(), &ClientOptions{}), ErrNothingToDownload)
	assert.ErrorIs(t, a.Run(context.Background(), &ClientOptions{Watch: true}), ErrNotConfigured)
	assert.ErrorIs(t, a.Run(context.Background(), &ClientOptions{Names: []string{"a"}, TCP: true}), ErrNotConfigured)
}

func TestClientApp_RangeDownloadUsesListedSize(t *testing.T) {
	ranges := &fakeRanges{
		listing: mustCatalog(t, catalog.Entry{Name: "big.bin", Size: 4096}),
		sizes:   map[string]int64{},
	}
	display := &fakeDisplay{}
	a := NewClientApp(&fakeFetcher{}, ranges, nil, display, quietLog())

	err := a.Run(context.Background(), &ClientOptions{Names: []string{"big.bin", "ghost"}, TCP: true, DestDir: "out"})
	assert.ErrorIs(t, err, ErrDownloadsFailed)
	assert.Equal(t, map[string]int64{"big.bin": 4096}, ranges.sizes)
	// initial listing plus one refresh for the unknown name
	assert.Equal(t, 2, ranges.lists)
	assert.Contains(t, display.messages, "Saved "+filepath.Join("out", "big.bin"))
}

func TestClientApp_WatchUntilSourceCloses(t *testing.T) {
	udp := &fakeFetcher{listing: catalog.Empty()}
	names := make(fakeNames, 4)
	names <- "x"
	names <- "y"
	names <- "x"
	close(names)

	a := NewClientApp(udp, nil, names, &fakeDisplay{}, quietLog())
	err := a.Run(context.Background(), &ClientOptions{Names: []string{"y"}, Watch: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, udp.downloaded())
}

func TestServerApp_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	data := []byte("served over both transports")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), data, 0o644))

	cfg := config.NewDefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.TCPAddr = "127.0.0.1:0"
	cfg.Server.Dir = dir
	cfg.Protocol.Timeout = 200 * time.Millisecond
	cfg.Protocol.Linger = 0
	require.NoError(t, cfg.Validate())

	srv := NewServerApp(cfg, nil, quietLog())
	require.NoError(t, srv.Listen(&ServerOptions{TCP: true}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	udp, err := client.New(srv.UDPAddr().String(), cfg.ReceiverOptions(), nil, quietLog())
	require.NoError(t, err)
	ranges := client.NewRangeDownloader(srv.TCPAddr().String(), 2, nil, quietLog())

	display := &fakeDisplay{}
	a := NewClientApp(udp, ranges, nil, display, quietLog())

	udpDir, tcpDir := t.TempDir(), t.TempDir()
	require.NoError(t, a.Run(ctx, &ClientOptions{Names: []string{"doc.txt"}, DestDir: udpDir}))
	require.NoError(t, a.Run(ctx, &ClientOptions{Names: []string{"doc.txt"}, DestDir: tcpDir, TCP: true}))

	for _, d := range []string{udpDir, tcpDir} {
		got, err := os.ReadFile(filepath.Join(d, "doc.txt"))
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}

	// the catalog file lives in the served directory but is never offered
	assert.FileExists(t, filepath.Join(dir, "files.txt"))
	err = a.Run(ctx, &ClientOptions{Names: []string{"files.txt"}, DestDir: udpDir})
	assert.True(t, errors.Is(err, ErrDownloadsFailed))
}
