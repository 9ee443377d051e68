package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"yaftp/internal/processor"
	"yaftp/internal/protocol"
)

// ReceiveResult reports how an inbound transfer ended
type ReceiveResult struct {
	State         ReceiverState
	Path          string
	Size          uint64
	BytesReceived uint64
}

// Receiver drives inbound transfers over conn, one at a time.
type Receiver struct {
	conn     net.PacketConn
	opts     Options
	files    *processor.FileService
	observer Observer
	log      *logrus.Entry
}

// NewReceiver creates a receiver reading from conn
func NewReceiver(conn net.PacketConn, opts Options, observer Observer, log *logrus.Entry) (*Receiver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Receiver{
		conn:     conn,
		opts:     opts,
		files:    processor.NewFileService(),
		observer: observer,
		log:      log.WithField("component", "receiver"),
	}, nil
}

// Fetch requests name from server and stores it as destDir/name.
//
// The returned result is never nil. Its State is ReceiverComplete on success
// and ReceiverAborted otherwise, in which case the error says why. An aborted
// transfer leaves exactly BytesReceived bytes on disk; when the server
// answers with an error no file is created at all.
func (r *Receiver) Fetch(ctx context.Context, name string, server net.Addr, destDir string) (*ReceiveResult, error) {
	sess := &ReceiverSession{
		Name:  name,
		State: ReceiverAwaitingSize,
	}
	logger := r.log.WithFields(logrus.Fields{
		"name": name,
		"addr": server.String(),
	})

	err := r.fetch(ctx, sess, server, destDir, logger)

	if sess.writer != nil {
		if cerr := sess.writer.Close(); cerr != nil && err == nil {
			err = cerr
			sess.State = ReceiverAborted
		}
	}

	result := &ReceiveResult{
		State:         sess.State,
		Path:          sess.path(),
		Size:          sess.Size,
		BytesReceived: sess.BytesReceived(),
	}
	return result, err
}

func (r *Receiver) fetch(ctx context.Context, sess *ReceiverSession, server net.Addr, destDir string, logger *logrus.Entry) error {
	r.observer.OnEvent(sess.event(nil))

	buf := make([]byte, protocol.HeaderSize+protocol.MaxChunkSize)

	reply, from, err := r.awaitSize(ctx, sess, server, buf, logger)
	if err != nil {
		return r.abort(sess, logger, err)
	}
	if !reply.OK {
		return r.abort(sess, logger, &RemoteError{Message: reply.Message})
	}

	writer, err := r.files.CreateChunkWriter(destDir, sess.Name)
	if err != nil {
		return r.abort(sess, logger, err)
	}
	sess.writer = writer
	sess.Peer = from
	sess.Size = reply.Size
	sess.Retries = 0
	sess.State = ReceiverReceivingChunk

	logger.WithFields(logrus.Fields{
		"function": "Fetch",
		"size":     sess.Size,
		"peer":     from.String(),
	}).Info("Downloading")
	r.observer.OnEvent(sess.event(nil))

	for sess.BytesReceived() < sess.Size {
		if err := ctx.Err(); err != nil {
			return r.abort(sess, logger, err)
		}
		if sess.Retries >= r.opts.MaxRetries {
			return r.abort(sess, logger, fmt.Errorf("%w: chunk %d", ErrReceiverRetriesExhausted, sess.ExpectedSeq))
		}

		n, _, err := readFrom(r.conn, buf, sess.Peer, time.Now().Add(r.opts.Timeout))
		if err != nil {
			if isTimeout(err) {
				sess.Retries++
				logger.WithFields(logrus.Fields{
					"function": "Fetch",
					"seq":      sess.ExpectedSeq,
					"attempt":  sess.Retries,
				}).Warn("Timeout waiting for packet")
				continue
			}
			return r.abort(sess, logger, fmt.Errorf("failed to read packet: %w", err))
		}

		advanced, err := r.handleData(sess, buf[:n], logger)
		if err != nil {
			return r.abort(sess, logger, err)
		}
		if !advanced {
			sess.Retries++
			continue
		}

		sess.Retries = 0
		r.observer.OnEvent(sess.event(nil))
	}

	sess.State = ReceiverComplete
	r.observer.OnEvent(sess.event(nil))
	logger.WithFields(logrus.Fields{
		"function": "Fetch",
		"bytes":    sess.BytesReceived(),
		"path":     sess.path(),
	}).Info("Download complete")

	r.linger(ctx, sess, buf)
	return nil
}

// awaitSize sends the request and waits for OK or ERROR, re-sending the
// request on every timeout until the retry budget runs out. The reply may
// come from an address other than server; the caller pins to it.
func (r *Receiver) awaitSize(ctx context.Context, sess *ReceiverSession, server net.Addr, buf []byte, logger *logrus.Entry) (protocol.Reply, net.Addr, error) {
	request := protocol.EncodeRequest(sess.Name)

	for sess.Retries < r.opts.MaxRetries {
		if err := ctx.Err(); err != nil {
			return protocol.Reply{}, nil, err
		}
		if _, err := r.conn.WriteTo(request, server); err != nil {
			return protocol.Reply{}, nil, fmt.Errorf("failed to send request: %w", err)
		}

		deadline := time.Now().Add(r.opts.Timeout)
		for {
			n, from, err := readFrom(r.conn, buf, nil, deadline)
			if err != nil {
				if isTimeout(err) {
					break
				}
				return protocol.Reply{}, nil, fmt.Errorf("failed to read reply: %w", err)
			}

			reply, err := protocol.ParseReply(buf[:n])
			if err != nil {
				// stray data packet or noise
				continue
			}
			return reply, from, nil
		}

		sess.Retries++
		logger.WithFields(logrus.Fields{
			"function": "awaitSize",
			"attempt":  sess.Retries,
		}).Warn("No reply to request")
	}

	return protocol.Reply{}, nil, ErrNoResponse
}

// handleData applies one datagram to the session. It returns true when the
// expected chunk was accepted, written and acked. Anything else is answered
// with a repeat ack for the last good chunk and leaves the file untouched.
func (r *Receiver) handleData(sess *ReceiverSession, datagram []byte, logger *logrus.Entry) (bool, error) {
	packet, err := protocol.DecodePacket(datagram)
	if err != nil || !packet.Valid() || packet.Seq != sess.ExpectedSeq {
		fields := logrus.Fields{
			"function": "handleData",
			"expected": sess.ExpectedSeq,
		}
		if err == nil {
			fields["seq"] = packet.Seq
			fields["checksum_ok"] = packet.Valid()
		} else {
			fields["error"] = err
		}
		logger.WithFields(fields).Debug("Rejected packet, repeating last ack")

		// for chunk 0 this wraps to MaxUint32, which no sender accepts
		if err := r.sendAck(sess, sess.ExpectedSeq-1); err != nil {
			return false, err
		}
		return false, nil
	}

	if remaining := sess.Size - sess.BytesReceived(); uint64(len(packet.Payload)) > remaining {
		packet.Payload = packet.Payload[:remaining]
	}
	if err := sess.writer.WriteChunk(packet.Payload); err != nil {
		return false, err
	}
	if err := r.sendAck(sess, packet.Seq); err != nil {
		return false, err
	}

	sess.ExpectedSeq++
	return true, nil
}

// linger answers retransmissions of the final chunk whose ack was lost, so
// the sender can finish instead of exhausting its retries.
func (r *Receiver) linger(ctx context.Context, sess *ReceiverSession, buf []byte) {
	if r.opts.Linger <= 0 || sess.ExpectedSeq == 0 {
		return
	}

	deadline := time.Now().Add(r.opts.Linger)
	for ctx.Err() == nil && time.Now().Before(deadline) {
		n, _, err := readFrom(r.conn, buf, sess.Peer, deadline)
		if err != nil {
			return
		}
		packet, err := protocol.DecodePacket(buf[:n])
		if err != nil || !packet.Valid() || packet.Seq != sess.ExpectedSeq-1 {
			continue
		}
		if err := r.sendAck(sess, packet.Seq); err != nil {
			return
		}
	}
}

func (r *Receiver) sendAck(sess *ReceiverSession, seq uint32) error {
	ack := protocol.Ack{Seq: seq, Status: protocol.AckAccepted}
	if _, err := r.conn.WriteTo(ack.Encode(), sess.Peer); err != nil {
		return fmt.Errorf("failed to send ack %d: %w", seq, err)
	}
	return nil
}

func (r *Receiver) abort(sess *ReceiverSession, logger *logrus.Entry, err error) error {
	sess.State = ReceiverAborted
	r.observer.OnEvent(sess.event(err))

	var remote *RemoteError
	entry := logger.WithFields(logrus.Fields{
		"function": "Fetch",
		"seq":      sess.ExpectedSeq,
		"bytes":    sess.BytesReceived(),
		"error":    err,
	})
	if errors.As(err, &remote) {
		entry.Warn("Server refused request")
	} else {
		entry.Error("Download aborted")
	}
	return err
}
