package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is seq (4) + length (2) + checksum (1)
	HeaderSize = 7
	// AckSize is seq (4) + status (1)
	AckSize = 5

	// DefaultChunkSize keeps a full data datagram close to the 1 KB buffers used by clients
	DefaultChunkSize = 1024
	// MaxChunkSize is bounded by the largest UDP payload over IPv4
	MaxChunkSize = 65507 - HeaderSize

	// AckAccepted is the only defined ack status
	AckAccepted uint8 = 0
)

var (
	ErrShortPacket      = errors.New("packet shorter than header")
	ErrTruncatedPayload = errors.New("packet payload shorter than declared length")
	ErrInvalidAck       = errors.New("datagram is not an ack")
	ErrPayloadTooLarge  = errors.New("payload exceeds maximum chunk size")
)

// Packet carries one chunk of a file. Only Payload[:Length] is data.
type Packet struct {
	Seq      uint32
	Length   uint16
	Checksum uint8
	Payload  []byte
}

// NewPacket builds a packet for payload and stamps its checksum.
func NewPacket(seq uint32, payload []byte) (Packet, error) {
	if len(payload) > MaxChunkSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	return Packet{
		Seq:      seq,
		Length:   uint16(len(payload)),
		Checksum: Checksum(payload),
		Payload:  payload,
	}, nil
}

// Valid reports whether the payload matches the carried checksum.
func (p Packet) Valid() bool {
	return int(p.Length) == len(p.Payload) && Checksum(p.Payload) == p.Checksum
}

// Encode writes the packet as header followed by exactly Length payload bytes.
func (p Packet) Encode() []byte {
	buf := make([]byte, HeaderSize+int(p.Length))
	binary.BigEndian.PutUint32(buf[0:4], p.Seq)
	binary.BigEndian.PutUint16(buf[4:6], p.Length)
	buf[6] = p.Checksum
	copy(buf[HeaderSize:], p.Payload[:p.Length])
	return buf
}

// DecodePacket parses a data datagram. Bytes past the declared length are
// ignored; the returned payload does not alias buf.
func DecodePacket(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: got %d bytes", ErrShortPacket, len(buf))
	}

	p := Packet{
		Seq:      binary.BigEndian.Uint32(buf[0:4]),
		Length:   binary.BigEndian.Uint16(buf[4:6]),
		Checksum: buf[6],
	}

	end := HeaderSize + int(p.Length)
	if end > len(buf) {
		return Packet{}, fmt.Errorf("%w: declared %d, got %d", ErrTruncatedPayload, p.Length, len(buf)-HeaderSize)
	}

	p.Payload = make([]byte, p.Length)
	copy(p.Payload, buf[HeaderSize:end])
	return p, nil
}

// Ack acknowledges a single sequence number.
type Ack struct {
	Seq    uint32
	Status uint8
}

// Accepts reports whether a is a positive acknowledgment of seq.
func (a Ack) Accepts(seq uint32) bool {
	return a.Seq == seq && a.Status == AckAccepted
}

func (a Ack) Encode() []byte {
	buf := make([]byte, AckSize)
	binary.BigEndian.PutUint32(buf[0:4], a.Seq)
	buf[4] = a.Status
	return buf
}

// DecodeAck parses an ack datagram. Anything that is not exactly AckSize
// bytes long is rejected so stray control text is never mistaken for an ack.
func DecodeAck(buf []byte) (Ack, error) {
	if len(buf) != AckSize {
		return Ack{}, fmt.Errorf("%w: got %d bytes", ErrInvalidAck, len(buf))
	}
	return Ack{
		Seq:    binary.BigEndian.Uint32(buf[0:4]),
		Status: buf[4],
	}, nil
}
