package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"yaftp/internal/catalog"
	"yaftp/internal/processor"
	"yaftp/internal/protocol"
)

var (
	ErrFileNotFound = errors.New("server does not have the file")
	ErrShortRange   = errors.New("connection closed before the range was complete")
)

// DefaultParts is how many concurrent connections a range download uses
const DefaultParts = 4

// ProgressFunc returns a writer that is fed every byte downloaded for name.
// It is shared by all parts of the download and must be safe for concurrent
// use.
type ProgressFunc func(name string, size int64) io.Writer

// RangeDownloader fetches files from the TCP server by splitting them into
// byte ranges and downloading the ranges in parallel.
type RangeDownloader struct {
	addr     string
	parts    int
	dialer   net.Dialer
	files    *processor.FileService
	progress ProgressFunc
	log      *logrus.Entry
}

// NewRangeDownloader creates a downloader for the TCP server at addr
func NewRangeDownloader(addr string, parts int, progress ProgressFunc, log *logrus.Entry) *RangeDownloader {
	if parts < 1 {
		parts = DefaultParts
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RangeDownloader{
		addr:     addr,
		parts:    parts,
		files:    processor.NewFileService(),
		progress: progress,
		log:      log.WithField("component", "range-client"),
	}
}

// List fetches the catalog over TCP
func (d *RangeDownloader) List(ctx context.Context) (*catalog.Catalog, error) {
	conn, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(protocol.ListCommand + "\n")); err != nil {
		return nil, fmt.Errorf("failed to send list request: %w", err)
	}

	var listing strings.Builder
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read listing: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		listing.WriteString(line)
	}
	return catalog.ParseListing(listing.String())
}

// Download fetches size bytes of name into destDir/name. Parts are staged in
// destDir as <name>.partN and merged once every part has arrived. A failed
// download leaves its part files behind.
func (d *RangeDownloader) Download(ctx context.Context, name string, size int64, destDir string) (string, error) {
	if err := catalog.ValidateName(name); err != nil {
		return "", err
	}
	if err := d.files.EnsureDir(destDir); err != nil {
		return "", err
	}

	var sink io.Writer = io.Discard
	if d.progress != nil {
		sink = d.progress(name, size)
	}

	ranges := processor.SplitRanges(size, d.parts)
	logger := d.log.WithFields(logrus.Fields{
		"name":  name,
		"addr":  d.addr,
		"size":  size,
		"parts": len(ranges),
	})
	logger.WithField("function", "Download").Info("Downloading")

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		r := r
		part := i + 1
		g.Go(func() error {
			return d.fetchPart(gctx, name, part, r, destDir, sink)
		})
	}
	if err := g.Wait(); err != nil {
		logger.WithFields(logrus.Fields{
			"function": "Download",
			"error":    err,
		}).Error("Range download failed")
		return "", err
	}

	path, err := d.files.MergeParts(destDir, name, len(ranges))
	if err != nil {
		return "", err
	}
	logger.WithFields(logrus.Fields{
		"function": "Download",
		"path":     path,
	}).Info("Download complete")
	return path, nil
}

func (d *RangeDownloader) fetchPart(ctx context.Context, name string, part int, r processor.Range, destDir string, sink io.Writer) error {
	conn, err := d.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	req := protocol.RangeRequest{Name: name, Offset: r.Offset, Length: r.Length}
	if _, err := conn.Write(req.Encode()); err != nil {
		return fmt.Errorf("failed to send range request: %w", err)
	}

	out, err := d.files.CreatePartWriter(destDir, name, part)
	if err != nil {
		return err
	}
	n, copyErr := io.CopyN(io.MultiWriter(out, sink), conn, r.Length)
	if err := out.Close(); err != nil && copyErr == nil {
		copyErr = fmt.Errorf("failed to close part file: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"function": "fetchPart",
		"name":     name,
		"part":     part,
		"offset":   r.Offset,
		"bytes":    n,
	}).Debug("Part finished")

	switch {
	case copyErr == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(copyErr, io.EOF):
		if refused(processor.PartPath(destDir, name, part)) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return fmt.Errorf("%w: part %d got %d of %d bytes", ErrShortRange, part, n, r.Length)
	default:
		return fmt.Errorf("failed to download part %d: %w", part, copyErr)
	}
}

func (d *RangeDownloader) dial(ctx context.Context) (net.Conn, error) {
	conn, err := d.dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.addr, err)
	}
	return conn, nil
}

// refused reports whether a short part holds the server's error reply
// instead of file data
func refused(partPath string) bool {
	f, err := os.Open(partPath)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, len(protocol.FileNotFoundReply))
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}
	return string(head) == protocol.FileNotFoundReply
}
