package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	ListCommand   = "LIST"
	RequestPrefix = "REQUEST:"
	okPrefix      = "OK:"
	errorPrefix   = "ERROR"

	// MsgInvalidRequest is the reply body for anything the dispatcher cannot parse
	MsgInvalidRequest = "invalid request"
)

var ErrUnrecognizedReply = errors.New("unrecognized control reply")

// CommandKind identifies a parsed control message.
type CommandKind int

const (
	CommandInvalid CommandKind = iota
	CommandList
	CommandRequest
)

func (k CommandKind) String() string {
	switch k {
	case CommandList:
		return "LIST"
	case CommandRequest:
		return "REQUEST"
	default:
		return "INVALID"
	}
}

// Command is a control message sent by a client.
type Command struct {
	Kind CommandKind
	Name string
}

// ParseCommand interprets a control datagram. Unknown text, and REQUEST with
// an empty name, come back as CommandInvalid.
func ParseCommand(data []byte) Command {
	text := strings.TrimSpace(string(data))

	switch {
	case text == ListCommand:
		return Command{Kind: CommandList}
	case strings.HasPrefix(text, RequestPrefix):
		name := strings.TrimSpace(strings.TrimPrefix(text, RequestPrefix))
		if name == "" {
			return Command{Kind: CommandInvalid}
		}
		return Command{Kind: CommandRequest, Name: name}
	default:
		return Command{Kind: CommandInvalid}
	}
}

func EncodeList() []byte {
	return []byte(ListCommand)
}

func EncodeRequest(name string) []byte {
	return []byte(RequestPrefix + name)
}

// Reply is the server's answer to a REQUEST.
type Reply struct {
	OK      bool
	Size    uint64
	Message string
}

func EncodeOK(size uint64) []byte {
	return []byte(okPrefix + strconv.FormatUint(size, 10))
}

func EncodeError(message string) []byte {
	return []byte(errorPrefix + ": " + message)
}

// NotFoundMessage is the error body for a name missing from the catalog.
func NotFoundMessage(name string) string {
	return name + " not found"
}

// ParseReply decodes an OK:<size> or ERROR: <message> reply.
func ParseReply(data []byte) (Reply, error) {
	text := strings.TrimSpace(string(data))

	switch {
	case strings.HasPrefix(text, okPrefix):
		size, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(text, okPrefix)), 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad size in %q", ErrUnrecognizedReply, text)
		}
		return Reply{OK: true, Size: size}, nil
	case strings.HasPrefix(text, errorPrefix):
		msg := strings.TrimPrefix(text, errorPrefix)
		msg = strings.TrimSpace(strings.TrimPrefix(msg, ":"))
		return Reply{Message: msg}, nil
	default:
		return Reply{}, fmt.Errorf("%w: %q", ErrUnrecognizedReply, text)
	}
}
