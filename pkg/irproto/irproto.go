// Package irproto implements the line-oriented text protocol spoken on the
// daemon's control sockets: request lines, framed replies and broadcast
// event lines.
package irproto

import (
	"fmt"
	"strconv"
	"strings"
)

// Recognized request directives.
const (
	DirectiveList            = "LIST"
	DirectiveSendOnce        = "SEND_ONCE"
	DirectiveSendStart       = "SEND_START"
	DirectiveSendStop        = "SEND_STOP"
	DirectiveSetTransmitters = "SET_TRANSMITTERS"
	DirectiveSimulate        = "SIMULATE"
	DirectiveVersion         = "VERSION"
)

// MaxLineLen is the framing limit for a single request line. A connection
// that accumulates more than this without a terminating newline is dropped.
const MaxLineLen = 256

// DefaultReleaseMarker is the token appended to broadcast lines for
// synthesized release events when no suffix is configured.
const DefaultReleaseMarker = "release"

// Request is one parsed client request line.
type Request struct {
	// Line is the raw request line as received, without the newline. It is
	// echoed back as the first line of the reply.
	Line      string
	Directive string
	Args      []string
}

// ParseRequest splits a request line into a directive word and arguments.
// The empty line parses to an empty directive; the caller decides how to
// answer it.
func ParseRequest(line string) Request {
	fields := strings.Fields(line)
	req := Request{Line: line}
	if len(fields) > 0 {
		req.Directive = fields[0]
		req.Args = fields[1:]
	}
	return req
}

// Reply is one framed response. The wire form is the echoed request line,
// a SUCCESS or ERROR line, and, when Data is non-empty, a DATA block
// declaring the exact number of payload lines that follow. There is no
// trailing sentinel: the declared count is the frame boundary.
type Reply struct {
	Echo    string
	Success bool
	Data    []string
}

// Encode renders the reply as a single byte slice so it can be written to a
// connection as one atomic message.
func (r Reply) Encode() []byte {
	var b strings.Builder
	b.WriteString(r.Echo)
	b.WriteByte('\n')
	if r.Success {
		b.WriteString("SUCCESS\n")
	} else {
		b.WriteString("ERROR\n")
	}
	if len(r.Data) > 0 {
		b.WriteString("DATA\n")
		b.WriteString(strconv.Itoa(len(r.Data)))
		b.WriteByte('\n')
		for _, line := range r.Data {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return []byte(b.String())
}

// SuccessReply builds a SUCCESS reply echoing the given request.
func SuccessReply(req Request, data ...string) Reply {
	return Reply{Echo: req.Line, Success: true, Data: data}
}

// ErrorReply builds an ERROR reply with a single explanatory data line.
func ErrorReply(req Request, format string, args ...interface{}) Reply {
	return Reply{
		Echo: req.Line,
		Data: []string{fmt.Sprintf(format, args...)},
	}
}

// Event is one decoded button event as carried on the broadcast stream:
// hex code, hex repeat counter, button name and remote name, with an
// optional trailing marker token on release events.
type Event struct {
	Code    uint64
	Repeat  uint32
	Button  string
	Remote  string
	Release bool
}

// Format renders the event as a broadcast line without the newline. The
// marker token is appended only on release events; an empty marker falls
// back to DefaultReleaseMarker.
func (e Event) Format(marker string) string {
	line := fmt.Sprintf("%016x %02x %s %s", e.Code, e.Repeat, e.Button, e.Remote)
	if e.Release {
		if marker == "" {
			marker = DefaultReleaseMarker
		}
		line += " " + marker
	}
	return line
}

// ParseEvent parses a broadcast line received from a peer daemon. Any hex
// width up to 16 digits is accepted for the code field. A fifth token marks
// the event as a release.
func ParseEvent(line string) (Event, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 || len(fields) > 5 {
		return Event{}, fmt.Errorf("event line has %d fields, want 4 or 5", len(fields))
	}
	if len(fields[0]) > 16 {
		return Event{}, fmt.Errorf("event code %q longer than 16 hex digits", fields[0])
	}
	code, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return Event{}, fmt.Errorf("bad event code %q: %w", fields[0], err)
	}
	repeat, err := strconv.ParseUint(fields[1], 16, 32)
	if err != nil {
		return Event{}, fmt.Errorf("bad repeat count %q: %w", fields[1], err)
	}
	return Event{
		Code:    code,
		Repeat:  uint32(repeat),
		Button:  fields[2],
		Remote:  fields[3],
		Release: len(fields) == 5,
	}, nil
}
