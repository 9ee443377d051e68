// Package client talks to a yaftp server: catalog listings and reliable
// downloads over UDP, and parallel range downloads over TCP.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"yaftp/internal/catalog"
	"yaftp/internal/protocol"
	"yaftp/internal/transport"
)

var ErrNoListing = errors.New("no listing received from server")

// Client issues LIST and REQUEST datagrams to one server. Every call uses a
// fresh socket so stray packets of an earlier transfer never reach a later
// one.
type Client struct {
	server   net.Addr
	opts     transport.Options
	observer transport.Observer
	log      *logrus.Entry

	// listen opens the socket for one call
	listen func() (net.PacketConn, error)
}

// New creates a client for the UDP server at addr (host:port)
func New(addr string, opts transport.Options, observer transport.Observer, log *logrus.Entry) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	server, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve server address: %w", err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Client{
		server:   server,
		opts:     opts,
		observer: observer,
		log:      log.WithField("component", "udp-client"),
		listen: func() (net.PacketConn, error) {
			return net.ListenPacket("udp", ":0")
		},
	}, nil
}

// List asks the server for its catalog, retrying on timeout
func (c *Client) List(ctx context.Context) (*catalog.Catalog, error) {
	conn, err := c.listen()
	if err != nil {
		return nil, fmt.Errorf("failed to open socket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, protocol.HeaderSize+protocol.MaxChunkSize)
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		if _, err := conn.WriteTo(protocol.EncodeList(), c.server); err != nil {
			return nil, fmt.Errorf("failed to send list request: %w", err)
		}
		if err := conn.SetReadDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.log.WithFields(logrus.Fields{
					"function": "List",
					"addr":     c.server.String(),
					"attempt":  attempt,
				}).Warn("No listing yet")
				continue
			}
			return nil, fmt.Errorf("failed to read listing: %w", err)
		}

		return parseListingReply(buf[:n])
	}

	return nil, ErrNoListing
}

// parseListingReply accepts a listing or turns an ERROR reply into a
// transport.RemoteError
func parseListingReply(data []byte) (*catalog.Catalog, error) {
	if reply, err := protocol.ParseReply(data); err == nil && !reply.OK {
		return nil, &transport.RemoteError{Message: reply.Message}
	}
	return catalog.ParseListing(string(data))
}

// Download fetches name into destDir with the reliable receiver
func (c *Client) Download(ctx context.Context, name, destDir string) (*transport.ReceiveResult, error) {
	if err := catalog.ValidateName(name); err != nil {
		return &transport.ReceiveResult{State: transport.ReceiverAborted}, err
	}

	conn, err := c.listen()
	if err != nil {
		return &transport.ReceiveResult{State: transport.ReceiverAborted}, fmt.Errorf("failed to open socket: %w", err)
	}
	defer conn.Close()

	receiver, err := transport.NewReceiver(conn, c.opts, c.observer, c.log)
	if err != nil {
		return &transport.ReceiveResult{State: transport.ReceiverAborted}, err
	}
	return receiver.Fetch(ctx, name, c.server, destDir)
}
