package transport

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type datagram struct {
	data []byte
	from net.Addr
}

// memConn is an in-memory net.PacketConn. Outgoing datagrams pass through
// filter, which may rewrite them or return nil to drop them.
type memConn struct {
	addr   memAddr
	inbox  chan datagram
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	deadline time.Time
	peers    map[string]*memConn
	filter   func(to net.Addr, b []byte) []byte
}

func newMemConn(addr string) *memConn {
	return &memConn{
		addr:   memAddr(addr),
		inbox:  make(chan datagram, 256),
		closed: make(chan struct{}),
		peers:  map[string]*memConn{},
	}
}

// connect makes a and b reachable from each other.
func connect(a, b *memConn) {
	a.mu.Lock()
	a.peers[string(b.addr)] = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peers[string(a.addr)] = a
	b.mu.Unlock()
}

func (c *memConn) setFilter(f func(to net.Addr, b []byte) []byte) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

func (c *memConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case dg := <-c.inbox:
		return copy(p, dg.data), dg.from, nil
	case <-timeout:
		return 0, nil, timeoutError{}
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *memConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}

	c.mu.Lock()
	peer := c.peers[addr.String()]
	filter := c.filter
	c.mu.Unlock()

	data := make([]byte, len(p))
	copy(data, p)
	if filter != nil {
		data = filter(addr, data)
	}
	if peer == nil || data == nil {
		return len(p), nil
	}

	select {
	case peer.inbox <- datagram{data: data, from: c.addr}:
	default:
	}
	return len(p), nil
}

func (c *memConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *memConn) LocalAddr() net.Addr { return c.addr }

func (c *memConn) SetDeadline(t time.Time) error { return c.SetReadDeadline(t) }

func (c *memConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return nil
}

func (c *memConn) SetWriteDeadline(time.Time) error { return nil }

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// recorder collects observer events
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
