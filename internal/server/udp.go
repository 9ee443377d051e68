package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"yaftp/internal/catalog"
	"yaftp/internal/protocol"
	"yaftp/internal/transport"
)

// pollInterval bounds each blocking read so cancellation is noticed promptly
const pollInterval = 500 * time.Millisecond

// UDPServer answers LIST and REQUEST datagrams and pushes requested files to
// clients with the reliable transport.
//
// The OK reply to a REQUEST carries the size of the file as it is opened for
// sending, which may differ from the size in the last listing.
//
// In sequential mode every transfer runs on the listening socket and blocks
// the receive loop until it ends. In concurrent mode each REQUEST gets its
// own ephemeral socket and goroutine; the OK reply is sent from that socket
// so the client talks to it for the rest of the transfer.
type UDPServer struct {
	conn       net.PacketConn
	scanner    *catalog.Scanner
	dispatcher Dispatcher
	opts       transport.Options
	concurrent bool
	observer   transport.Observer
	log        *logrus.Entry

	// listen opens transfer sockets in concurrent mode
	listen func() (net.PacketConn, error)

	snapshot *catalog.Catalog
	wg       sync.WaitGroup
}

// UDPOption configures a UDPServer
type UDPOption func(*UDPServer)

// WithConcurrentTransfers serves every request from its own socket
func WithConcurrentTransfers(enabled bool) UDPOption {
	return func(s *UDPServer) { s.concurrent = enabled }
}

// WithObserver reports outbound transfer events to o
func WithObserver(o transport.Observer) UDPOption {
	return func(s *UDPServer) { s.observer = o }
}

// NewUDPServer creates a server reading control datagrams from conn
func NewUDPServer(conn net.PacketConn, scanner *catalog.Scanner, opts transport.Options, log *logrus.Entry, options ...UDPOption) (*UDPServer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &UDPServer{
		conn:    conn,
		scanner: scanner,
		opts:    opts,
		log:     log.WithField("component", "udp-server"),
	}
	s.listen = s.listenEphemeral
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// Serve runs the receive loop until ctx is cancelled or the socket fails.
// It waits for concurrent transfers to stop before returning.
func (s *UDPServer) Serve(ctx context.Context) error {
	defer s.wg.Wait()

	if err := s.refresh(); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"function":   "Serve",
		"addr":       s.conn.LocalAddr().String(),
		"files":      s.snapshot.Len(),
		"concurrent": s.concurrent,
	}).Info("Listening")

	buf := make([]byte, protocol.HeaderSize+protocol.MaxChunkSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to read request: %w", err)
		}

		s.handle(ctx, buf[:n], from)
	}
}

func (s *UDPServer) handle(ctx context.Context, datagram []byte, from net.Addr) {
	switch protocol.ParseCommand(datagram).Kind {
	case protocol.CommandList:
		if err := s.refresh(); err != nil {
			s.log.WithFields(logrus.Fields{
				"function": "handle",
				"error":    err,
			}).Warn("Catalog refresh failed, answering from previous snapshot")
		}
	case protocol.CommandInvalid:
		// late ack from a finished transfer; an error reply could be taken
		// as the answer to that client's next request
		if _, err := protocol.DecodeAck(datagram); err == nil {
			s.log.WithFields(logrus.Fields{
				"function": "handle",
				"addr":     from.String(),
			}).Debug("Ignoring stray ack")
			return
		}
	}

	resp := s.dispatcher.Dispatch(s.snapshot, datagram)
	logger := s.log.WithFields(logrus.Fields{
		"function": "handle",
		"addr":     from.String(),
		"command":  resp.Command.Kind.String(),
	})

	if !resp.Transfer {
		if _, err := s.conn.WriteTo(resp.Reply, from); err != nil {
			logger.WithField("error", err).Warn("Failed to send reply")
			return
		}
		logger.WithField("name", resp.Command.Name).Info("Replied")
		return
	}

	if !s.concurrent {
		s.transfer(ctx, s.conn, resp, from, logger)
		return
	}

	conn, err := s.listen()
	if err != nil {
		logger.WithField("error", err).Error("Failed to open transfer socket")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Close()
		s.transfer(ctx, conn, resp, from, logger.WithField("transfer_addr", conn.LocalAddr().String()))
	}()
}

// transfer answers the request from conn and sends the file. The reply is
// built from the file as opened, not from the snapshot, which may be stale.
func (s *UDPServer) transfer(ctx context.Context, conn net.PacketConn, resp Response, to net.Addr, logger *logrus.Entry) {
	logger = logger.WithField("name", resp.Entry.Name)

	sender, err := transport.NewSender(conn, s.opts, s.observer, s.log)
	if err != nil {
		logger.WithField("error", err).Error("Failed to create sender")
		return
	}

	res, err := sender.Respond(ctx, s.scanner.Path(resp.Entry), resp.Entry.Name, to)
	if err != nil {
		logger.WithField("error", err).Warn("Transfer did not complete")
		return
	}
	logger.WithFields(logrus.Fields{
		"bytes":       res.Bytes,
		"retransmits": res.Retransmits,
	}).Info("Sent file")
}

func (s *UDPServer) refresh() error {
	snapshot, err := s.scanner.Scan()
	if err != nil {
		return fmt.Errorf("failed to build catalog: %w", err)
	}
	s.snapshot = snapshot
	return nil
}

func (s *UDPServer) listenEphemeral() (net.PacketConn, error) {
	host := ""
	if addr, ok := s.conn.LocalAddr().(*net.UDPAddr); ok && addr.IP != nil && !addr.IP.IsUnspecified() {
		host = addr.IP.String()
	}
	return net.ListenPacket("udp", net.JoinHostPort(host, "0"))
}
