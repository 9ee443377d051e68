package transport

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"yaftp/internal/processor"
	"yaftp/internal/protocol"
)

// SendResult summarises a finished outbound transfer
type SendResult struct {
	Chunks      uint64
	Bytes       uint64
	Retransmits int
}

// Sender drives outbound transfers over conn. A Sender may be reused for
// consecutive transfers but runs one at a time per socket.
type Sender struct {
	conn     net.PacketConn
	opts     Options
	files    *processor.FileService
	observer Observer
	log      *logrus.Entry
}

// NewSender creates a sender writing to conn
func NewSender(conn net.PacketConn, opts Options, observer Observer, log *logrus.Entry) (*Sender, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Sender{
		conn:     conn,
		opts:     opts,
		files:    processor.NewFileService(),
		observer: observer,
		log:      log.WithField("component", "sender"),
	}, nil
}

// Send transmits the file at path to dest chunk by chunk. Chunk i+1 is not
// read until dest has acked chunk i. The transfer fails with
// ErrSenderRetriesExhausted once a chunk goes unacknowledged for MaxRetries
// attempts, and is abandoned as soon as ctx is cancelled.
func (s *Sender) Send(ctx context.Context, path, name string, dest net.Addr) (*SendResult, error) {
	reader, err := s.files.OpenChunkReader(path, s.opts.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare file for sending: %w", err)
	}
	defer reader.Close()

	return s.run(ctx, reader, name, dest, nil)
}

// Respond answers a REQUEST for name and then sends the file. The file is
// opened first so the OK reply carries the size of what is actually sent; a
// file that cannot be opened is refused with a not-found ERROR instead.
// Until the first chunk is acked, a repeated REQUEST from dest means the OK
// was lost, and the reply is sent again.
func (s *Sender) Respond(ctx context.Context, path, name string, dest net.Addr) (*SendResult, error) {
	reader, err := s.files.OpenChunkReader(path, s.opts.ChunkSize)
	if err != nil {
		if _, werr := s.conn.WriteTo(protocol.EncodeError(protocol.NotFoundMessage(name)), dest); werr != nil {
			s.log.WithFields(logrus.Fields{
				"function": "Respond",
				"name":     name,
				"error":    werr,
			}).Warn("Failed to send error reply")
		}
		return nil, fmt.Errorf("failed to prepare file for sending: %w", err)
	}
	defer reader.Close()

	reply := protocol.EncodeOK(reader.Size())
	if _, err := s.conn.WriteTo(reply, dest); err != nil {
		return nil, fmt.Errorf("failed to send size reply: %w", err)
	}
	return s.run(ctx, reader, name, dest, reply)
}

func (s *Sender) run(ctx context.Context, reader *processor.ChunkReader, name string, dest net.Addr, reply []byte) (*SendResult, error) {
	if reader.Count() > math.MaxUint32+1 {
		return nil, fmt.Errorf("%w: %d chunks", ErrFileTooLarge, reader.Count())
	}

	sess := &SenderSession{
		Name:   name,
		Dest:   dest,
		State:  SenderSending,
		reader: reader,
		reply:  reply,
	}

	logger := s.log.WithFields(logrus.Fields{
		"name": name,
		"addr": dest.String(),
	})
	logger.WithFields(logrus.Fields{
		"function": "Send",
		"size":     reader.Size(),
		"chunks":   reader.Count(),
	}).Info("Starting transfer")
	s.observer.OnEvent(sess.event(nil))

	buf := make([]byte, protocol.HeaderSize+protocol.MaxChunkSize)
	for i := uint64(0); i < reader.Count(); i++ {
		sess.Seq = uint32(i)

		payload, err := reader.ReadChunk(i)
		if err != nil {
			return s.fail(sess, logger, err)
		}
		packet, err := protocol.NewPacket(sess.Seq, payload)
		if err != nil {
			return s.fail(sess, logger, err)
		}

		if err := s.deliver(ctx, sess, packet.Encode(), buf, logger); err != nil {
			return s.fail(sess, logger, err)
		}

		// the receiver has the size once anything is acked
		sess.reply = nil
		sess.Acked += uint64(len(payload))
		s.observer.OnEvent(sess.event(nil))
	}

	sess.State = SenderCompleted
	s.observer.OnEvent(sess.event(nil))
	logger.WithFields(logrus.Fields{
		"function":    "Send",
		"bytes":       sess.Acked,
		"retransmits": sess.Retransmits,
	}).Info("Transfer completed")

	return &SendResult{
		Chunks:      reader.Count(),
		Bytes:       sess.Acked,
		Retransmits: sess.Retransmits,
	}, nil
}

// deliver sends wire until the ack for sess.Seq arrives. Every send,
// including the first, spends one attempt of the budget.
func (s *Sender) deliver(ctx context.Context, sess *SenderSession, wire, buf []byte, logger *logrus.Entry) error {
	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 {
			sess.Retransmits++
			logger.WithFields(logrus.Fields{
				"function": "deliver",
				"seq":      sess.Seq,
				"attempt":  attempt + 1,
			}).Debug("Resending packet")
		}

		if _, err := s.conn.WriteTo(wire, sess.Dest); err != nil {
			return fmt.Errorf("failed to send packet %d: %w", sess.Seq, err)
		}

		acked, err := s.awaitAck(sess, buf)
		if err != nil {
			return err
		}
		if acked {
			return nil
		}
	}

	logger.WithFields(logrus.Fields{
		"function": "deliver",
		"seq":      sess.Seq,
		"attempts": s.opts.MaxRetries,
	}).Warn("Giving up on unacknowledged packet")
	return fmt.Errorf("%w: chunk %d", ErrSenderRetriesExhausted, sess.Seq)
}

// awaitAck waits one Timeout for the ack of sess.Seq. A decodable ack for
// any other sequence ends the wait early so the packet is resent at once;
// datagrams that are not acks are skipped.
func (s *Sender) awaitAck(sess *SenderSession, buf []byte) (bool, error) {
	deadline := time.Now().Add(s.opts.Timeout)

	for {
		n, _, err := readFrom(s.conn, buf, sess.Dest, deadline)
		if err != nil {
			if isTimeout(err) {
				return false, nil
			}
			return false, fmt.Errorf("failed to read ack: %w", err)
		}

		if sess.reply != nil && repeatedRequest(sess, buf[:n]) {
			if _, err := s.conn.WriteTo(sess.reply, sess.Dest); err != nil {
				return false, fmt.Errorf("failed to resend size reply: %w", err)
			}
			continue
		}

		ack, err := protocol.DecodeAck(buf[:n])
		if err != nil {
			continue
		}
		return ack.Accepts(sess.Seq), nil
	}
}

// repeatedRequest reports whether datagram asks again for the file being sent
func repeatedRequest(sess *SenderSession, datagram []byte) bool {
	cmd := protocol.ParseCommand(datagram)
	return cmd.Kind == protocol.CommandRequest && cmd.Name == sess.Name
}

func (s *Sender) fail(sess *SenderSession, logger *logrus.Entry, err error) (*SendResult, error) {
	sess.State = SenderFailed
	s.observer.OnEvent(sess.event(err))
	logger.WithFields(logrus.Fields{
		"function": "Send",
		"seq":      sess.Seq,
		"bytes":    sess.Acked,
		"error":    err,
	}).Error("Transfer failed")

	return &SendResult{
		Chunks:      uint64(sess.Seq),
		Bytes:       sess.Acked,
		Retransmits: sess.Retransmits,
	}, err
}
