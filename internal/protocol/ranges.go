package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FileNotFoundReply is the literal TCP answer to unknown names and malformed
// range requests.
const FileNotFoundReply = "ERROR: File not found."

var ErrBadRangeRequest = errors.New("bad range request")

// RangeRequest is one TCP request line. Length is negative when the client
// asked for everything from Offset to end of file.
type RangeRequest struct {
	Name   string
	Offset int64
	Length int64
}

// ToEOF reports whether the request runs to end of file
func (r RangeRequest) ToEOF() bool {
	return r.Length < 0
}

// Encode renders the request line, newline included
func (r RangeRequest) Encode() []byte {
	if r.ToEOF() {
		return []byte(fmt.Sprintf("%s %d\n", r.Name, r.Offset))
	}
	return []byte(fmt.Sprintf("%s %d %d\n", r.Name, r.Offset, r.Length))
}

// ParseRangeRequest parses "<name> <offset>" or "<name> <offset> <length>"
func ParseRangeRequest(line string) (RangeRequest, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 && len(fields) != 3 {
		return RangeRequest{}, fmt.Errorf("%w: %q", ErrBadRangeRequest, line)
	}

	req := RangeRequest{Name: fields[0], Length: -1}
	offset, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || offset < 0 {
		return RangeRequest{}, fmt.Errorf("%w: offset %q", ErrBadRangeRequest, fields[1])
	}
	req.Offset = offset

	if len(fields) == 3 {
		length, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil || length < 0 {
			return RangeRequest{}, fmt.Errorf("%w: length %q", ErrBadRangeRequest, fields[2])
		}
		req.Length = length
	}
	return req, nil
}

// EncodeStreamListing frames a catalog listing for a byte stream: one
// "name size" line per entry followed by an empty line.
func EncodeStreamListing(listing string) []byte {
	if listing != "" {
		listing += "\n"
	}
	return []byte(listing + "\n")
}
