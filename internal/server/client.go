package server

import (
	"bufio"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ir-server/ir-server/pkg/irproto"
)

// clientQueueDepth bounds how many undelivered messages a connection may
// hold beyond its socket buffer before it counts as stalled.
const clientQueueDepth = 64

// errClientStalled marks a client whose output queue overflowed because it
// stopped reading.
var errClientStalled = errors.New("client stopped reading, output queue full")

// client is one accepted control-socket connection. The read loop and the
// write loop each run in their own goroutine; protocol handling happens on
// the server's core goroutine, which only ever enqueues output and must
// never block on a socket.
type client struct {
	id   uuid.UUID
	conn net.Conn
	out  chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(conn net.Conn) *client {
	return &client{
		id:   uuid.New(),
		conn: conn,
		out:  make(chan []byte, clientQueueDepth),
	}
}

// readLoop splits the byte stream into newline-terminated request lines.
// Partial lines stay buffered until their terminator arrives; a line
// exceeding the framing limit drops the connection immediately.
func (c *client) readLoop(requests chan<- clientRequest, disconnects chan<- *client) {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, irproto.MaxLineLen), irproto.MaxLineLen)

	for scanner.Scan() {
		requests <- clientRequest{client: c, req: irproto.ParseRequest(scanner.Text())}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		if errors.Is(err, bufio.ErrTooLong) {
			log.Warn().
				Str("client", c.id.String()).
				Msg("request line exceeds framing limit, dropping connection")
		} else {
			log.Debug().Err(err).Str("client", c.id.String()).Msg("client read failed")
		}
	}
	disconnects <- c
}

// writeLoop drains queued messages onto the socket. A write failure is
// reported as a disconnect; the core loop drops the client in response.
func (c *client) writeLoop(disconnects chan<- *client) {
	for msg := range c.out {
		if _, err := c.conn.Write(msg); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Debug().Err(err).Str("client", c.id.String()).Msg("client write failed")
			}
			disconnects <- c
			return
		}
	}
}

// write enqueues one complete logical message. Each message is a single
// buffer, so a reply's DATA block never interleaves with a broadcast
// line. A full queue means the client stopped reading; the caller drops
// the connection rather than wait on it.
func (c *client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return errClientStalled
	}
}

// reply encodes and enqueues a framed reply as one atomic message.
func (c *client) reply(r irproto.Reply) error {
	return c.write(r.Encode())
}

// close stops both loops and releases the socket. Messages still queued
// are discarded. Safe to call more than once.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
		c.conn.Close()
	}
}
