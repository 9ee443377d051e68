package transport

import (
	"net"
)

// SenderState represents the current state of an outbound transfer
type SenderState int

const (
	SenderIdle SenderState = iota
	SenderSending
	SenderCompleted
	SenderFailed
)

// String returns the string representation of SenderState
func (s SenderState) String() string {
	switch s {
	case SenderIdle:
		return "Idle"
	case SenderSending:
		return "Sending"
	case SenderCompleted:
		return "Completed"
	case SenderFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ReceiverState represents the current state of an inbound transfer
type ReceiverState int

const (
	ReceiverAwaitingSize ReceiverState = iota
	ReceiverReceivingChunk
	ReceiverComplete
	ReceiverAborted
)

// String returns the string representation of ReceiverState
func (s ReceiverState) String() string {
	switch s {
	case ReceiverAwaitingSize:
		return "AwaitingSize"
	case ReceiverReceivingChunk:
		return "ReceivingChunk"
	case ReceiverComplete:
		return "Complete"
	case ReceiverAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions can happen
func (s ReceiverState) Terminal() bool {
	return s == ReceiverComplete || s == ReceiverAborted
}

// Direction tells observers which side produced an event
type Direction int

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

// Event describes a transfer state transition or chunk advance.
// Exactly one of SenderState/ReceiverState is meaningful, picked by Direction.
type Event struct {
	Direction     Direction
	Name          string
	Peer          net.Addr
	SenderState   SenderState
	ReceiverState ReceiverState
	// Seq is the chunk the transfer is currently working on
	Seq uint32
	// Bytes is the number of bytes acknowledged (upload) or written (download)
	Bytes uint64
	Size  uint64
	Err   error
}

// Done reports whether the event ends its transfer
func (e Event) Done() bool {
	if e.Direction == Upload {
		return e.SenderState == SenderCompleted || e.SenderState == SenderFailed
	}
	return e.ReceiverState.Terminal()
}

// Failed reports whether the transfer ended unsuccessfully
func (e Event) Failed() bool {
	if e.Direction == Upload {
		return e.SenderState == SenderFailed
	}
	return e.ReceiverState == ReceiverAborted
}

// Observer is notified of transfer progress. OnEvent runs on the protocol
// goroutine between datagrams and must not block for long.
type Observer interface {
	OnEvent(Event)
}

// MultiObserver fans an event out to several observers in order
type MultiObserver []Observer

func (m MultiObserver) OnEvent(e Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}
