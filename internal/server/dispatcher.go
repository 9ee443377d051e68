// Package server answers catalog and download requests over UDP and serves
// byte ranges over TCP.
package server

import (
	"yaftp/internal/catalog"
	"yaftp/internal/protocol"
)

// Response is what the server does with one control datagram: send Reply
// back, and when Transfer is set, follow it with a reliable transfer of
// Entry.
type Response struct {
	Command  protocol.Command
	Reply    []byte
	Transfer bool
	Entry    catalog.Entry
}

// Dispatcher maps control datagrams to responses. It holds no state; the
// catalog snapshot to answer from is passed on every call.
type Dispatcher struct{}

// Dispatch decides the response to datagram against snapshot
func (Dispatcher) Dispatch(snapshot *catalog.Catalog, datagram []byte) Response {
	cmd := protocol.ParseCommand(datagram)
	resp := Response{Command: cmd}

	switch cmd.Kind {
	case protocol.CommandList:
		resp.Reply = []byte(snapshot.Format())
	case protocol.CommandRequest:
		entry, ok := snapshot.Lookup(cmd.Name)
		if !ok {
			resp.Reply = protocol.EncodeError(protocol.NotFoundMessage(cmd.Name))
			break
		}
		resp.Reply = protocol.EncodeOK(entry.Size)
		resp.Transfer = true
		resp.Entry = entry
	default:
		resp.Reply = protocol.EncodeError(protocol.MsgInvalidRequest)
	}

	return resp
}
