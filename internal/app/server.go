package app

import (
	"context"
	"fmt"
	"net"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"yaftp/internal/catalog"
	"yaftp/internal/config"
	"yaftp/internal/server"
	"yaftp/internal/transport"
)

// ServerOptions configures the server application behavior
type ServerOptions struct {
	// TCP also starts the range server next to the UDP server
	TCP bool
}

// ServerApp runs the UDP server and, optionally, the TCP range server over
// one served directory.
type ServerApp struct {
	config   *config.Config
	observer transport.Observer
	log      *logrus.Entry

	conn     net.PacketConn
	listener net.Listener
}

// NewServerApp creates a new server application
func NewServerApp(cfg *config.Config, observer transport.Observer, log *logrus.Entry) *ServerApp {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ServerApp{
		config:   cfg,
		observer: observer,
		log:      log,
	}
}

// Listen binds the sockets named in the configuration
func (a *ServerApp) Listen(opts *ServerOptions) error {
	conn, err := net.ListenPacket("udp", a.config.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.Server.Addr, err)
	}
	a.conn = conn

	if opts.TCP {
		l, err := net.Listen("tcp", a.config.Server.TCPAddr)
		if err != nil {
			a.conn.Close()
			return fmt.Errorf("failed to listen on %s: %w", a.config.Server.TCPAddr, err)
		}
		a.listener = l
	}
	return nil
}

// UDPAddr is the bound UDP address, valid after Listen
func (a *ServerApp) UDPAddr() net.Addr {
	return a.conn.LocalAddr()
}

// TCPAddr is the bound TCP address, or nil when TCP is off
func (a *ServerApp) TCPAddr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Serve runs the servers until ctx is cancelled or one of them fails
func (a *ServerApp) Serve(ctx context.Context) error {
	defer a.conn.Close()

	scanner := catalog.NewScanner(a.config.Server.Dir, a.catalogPath(), nil, a.log)
	udp, err := server.NewUDPServer(a.conn, scanner, a.config.SenderOptions(), a.log,
		server.WithConcurrentTransfers(a.config.Server.Concurrent),
		server.WithObserver(a.observer),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return udp.Serve(gctx) })
	if a.listener != nil {
		tcp := server.NewTCPServer(a.listener, scanner, a.log)
		g.Go(func() error { return tcp.Serve(gctx) })
	}

	err = g.Wait()
	a.log.WithField("function", "Serve").Info("Server stopped")
	return err
}

// Run listens and serves
func (a *ServerApp) Run(ctx context.Context, opts *ServerOptions) error {
	if err := a.Listen(opts); err != nil {
		return err
	}
	return a.Serve(ctx)
}

// catalogPath places a relative catalog file inside the served directory
func (a *ServerApp) catalogPath() string {
	if filepath.IsAbs(a.config.Server.CatalogFile) {
		return a.config.Server.CatalogFile
	}
	return filepath.Join(a.config.Server.Dir, a.config.Server.CatalogFile)
}
