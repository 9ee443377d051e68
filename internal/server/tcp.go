package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"yaftp/internal/catalog"
	"yaftp/internal/processor"
	"yaftp/internal/protocol"
)

type connResult struct {
	addr     string
	requests int
	bytes    int64
	err      error
}

// TCPServer serves catalog listings and raw byte ranges, one goroutine per
// connection. Connections share nothing but the current catalog snapshot.
type TCPServer struct {
	listener net.Listener
	scanner  *catalog.Scanner
	files    *processor.FileService
	log      *logrus.Entry

	snapshot atomic.Pointer[catalog.Catalog]
}

// NewTCPServer creates a range server accepting on l
func NewTCPServer(l net.Listener, scanner *catalog.Scanner, log *logrus.Entry) *TCPServer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TCPServer{
		listener: l,
		scanner:  scanner,
		files:    processor.NewFileService(),
		log:      log.WithField("component", "tcp-server"),
	}
}

// Serve accepts connections until ctx is cancelled. Open connections are
// closed on the way out.
func (s *TCPServer) Serve(ctx context.Context) error {
	if err := s.refresh(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	results := make(chan connResult)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for res := range results {
			s.logResult(res)
		}
	}()

	s.log.WithFields(logrus.Fields{
		"function": "Serve",
		"addr":     s.listener.Addr().String(),
	}).Info("Listening")

	var wg sync.WaitGroup
	var serveErr error
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				serveErr = fmt.Errorf("failed to accept connection: %w", err)
			}
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.serveConn(ctx, conn)
		}()
	}

	cancel()
	wg.Wait()
	close(results)
	<-drained
	return serveErr
}

func (s *TCPServer) serveConn(ctx context.Context, conn net.Conn) connResult {
	res := connResult{addr: conn.RemoteAddr().String()}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				res.err = fmt.Errorf("failed to read request: %w", err)
			}
			return res
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		res.requests++

		keepOpen, n, err := s.serveRequest(conn, line)
		res.bytes += n
		if err != nil {
			res.err = err
			return res
		}
		if !keepOpen {
			return res
		}
	}
}

// serveRequest answers one request line. It reports whether the connection
// should stay open for another request.
func (s *TCPServer) serveRequest(w io.Writer, line string) (bool, int64, error) {
	if line == protocol.ListCommand {
		if err := s.refresh(); err != nil {
			s.log.WithField("error", err).Warn("Catalog refresh failed, answering from previous snapshot")
		}
		n, err := w.Write(protocol.EncodeStreamListing(s.snapshot.Load().Format()))
		if err != nil {
			return false, int64(n), fmt.Errorf("failed to send listing: %w", err)
		}
		return true, 0, nil
	}

	var entry catalog.Entry
	req, err := protocol.ParseRangeRequest(line)
	if err == nil {
		entry, err = s.checkRange(req)
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"function": "serveRequest",
			"request":  line,
			"error":    err,
		}).Debug("Rejected request")
		if _, werr := io.WriteString(w, protocol.FileNotFoundReply+"\n"); werr != nil {
			return false, 0, fmt.Errorf("failed to send error: %w", werr)
		}
		return false, 0, nil
	}

	n, err := s.files.CopyRange(w, s.scanner.Path(entry), req.Offset, req.Length)
	if err != nil {
		return false, n, err
	}
	return !req.ToEOF(), n, nil
}

// checkRange resolves req against the current snapshot
func (s *TCPServer) checkRange(req protocol.RangeRequest) (catalog.Entry, error) {
	entry, ok := s.snapshot.Load().Lookup(req.Name)
	if !ok {
		return entry, fmt.Errorf("%w: %s", catalog.ErrInvalidName, req.Name)
	}
	size := int64(entry.Size)
	if req.Offset > size || (!req.ToEOF() && req.Offset+req.Length > size) {
		return entry, fmt.Errorf("%w: range %d+%d outside %d bytes", protocol.ErrBadRangeRequest, req.Offset, req.Length, size)
	}
	return entry, nil
}

func (s *TCPServer) refresh() error {
	snapshot, err := s.scanner.Scan()
	if err != nil {
		return fmt.Errorf("failed to build catalog: %w", err)
	}
	s.snapshot.Store(snapshot)
	return nil
}

func (s *TCPServer) logResult(res connResult) {
	entry := s.log.WithFields(logrus.Fields{
		"function": "Serve",
		"addr":     res.addr,
		"requests": res.requests,
		"bytes":    res.bytes,
	})
	if res.err != nil {
		entry.WithField("error", res.err).Warn("Connection failed")
		return
	}
	entry.Debug("Connection closed")
}
