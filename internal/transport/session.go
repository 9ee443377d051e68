package transport

import (
	"net"

	"yaftp/internal/processor"
)

// SenderSession is the per-transfer state of an outbound file. It is owned
// by the goroutine running Sender.Send and dropped when Send returns.
type SenderSession struct {
	Name        string
	Dest        net.Addr
	Seq         uint32
	Acked       uint64
	Retransmits int
	State       SenderState

	reader *processor.ChunkReader
	// reply is the OK to repeat while the first chunk is unacked
	reply []byte
}

func (s *SenderSession) event(err error) Event {
	return Event{
		Direction:   Upload,
		Name:        s.Name,
		Peer:        s.Dest,
		SenderState: s.State,
		Seq:         s.Seq,
		Bytes:       s.Acked,
		Size:        s.reader.Size(),
		Err:         err,
	}
}

// ReceiverSession is the per-transfer state of an inbound file, owned by the
// goroutine running Receiver.Fetch.
type ReceiverSession struct {
	Name        string
	Peer        net.Addr
	Size        uint64
	ExpectedSeq uint32
	Retries     int
	State       ReceiverState

	writer *processor.ChunkWriter
}

// BytesReceived is the number of bytes accepted and written so far
func (s *ReceiverSession) BytesReceived() uint64 {
	if s.writer == nil {
		return 0
	}
	return s.writer.Written()
}

func (s *ReceiverSession) path() string {
	if s.writer == nil {
		return ""
	}
	return s.writer.Path()
}

func (s *ReceiverSession) event(err error) Event {
	return Event{
		Direction:     Download,
		Name:          s.Name,
		Peer:          s.Peer,
		ReceiverState: s.State,
		Seq:           s.ExpectedSeq,
		Bytes:         s.BytesReceived(),
		Size:          s.Size,
		Err:           err,
	}
}
