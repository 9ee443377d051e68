// Package transport implements stop-and-wait reliable file delivery over an
// unreliable datagram socket.
//
// A Sender pushes one file chunk at a time and waits for its ack before
// moving on; a Receiver validates each chunk, writes it and acks it. At most
// one unacknowledged packet is in flight per transfer, so ordering comes from
// the protocol and never from the socket.
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	ErrSenderRetriesExhausted   = errors.New("sender retry budget exhausted waiting for ack")
	ErrReceiverRetriesExhausted = errors.New("receiver retry budget exhausted waiting for chunk")
	ErrNoResponse               = errors.New("no response from server")
	ErrFileTooLarge             = errors.New("file has more chunks than sequence numbers")
	ErrInvalidOptions           = errors.New("invalid transfer options")
)

// RemoteError carries the message of an ERROR reply.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "server error: " + e.Message
}

// Options tunes a transfer. ChunkSize only matters to the sender; every
// packet carries its own length and receivers accept any size up to
// protocol.MaxChunkSize.
type Options struct {
	ChunkSize int
	// Timeout bounds each wait for an ack, a chunk or a size reply
	Timeout time.Duration
	// MaxRetries is the attempt budget per chunk (and for the size reply)
	MaxRetries int
	// Linger keeps a completed receiver answering duplicate final chunks
	Linger time.Duration
}

// Validate reports whether the options describe a usable transfer
func (o Options) Validate() error {
	switch {
	case o.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size %d", ErrInvalidOptions, o.ChunkSize)
	case o.Timeout <= 0:
		return fmt.Errorf("%w: timeout %s", ErrInvalidOptions, o.Timeout)
	case o.MaxRetries <= 0:
		return fmt.Errorf("%w: max retries %d", ErrInvalidOptions, o.MaxRetries)
	case o.Linger < 0:
		return fmt.Errorf("%w: linger %s", ErrInvalidOptions, o.Linger)
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Network() == b.Network() && a.String() == b.String()
}

// readFrom waits until deadline for a datagram from peer. Datagrams from any
// other address are dropped without extending the deadline. A nil peer
// accepts every sender.
func readFrom(conn net.PacketConn, buf []byte, peer net.Addr, deadline time.Time) (int, net.Addr, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, nil, err
		}
		if peer == nil || sameAddr(from, peer) {
			return n, from, nil
		}
	}
}
