package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientQueueOverflowWhenPeerStopsReading(t *testing.T) {
	// net.Pipe has no buffering: with nobody reading, the first message
	// wedges the writer goroutine and the rest queue up behind it.
	us, them := net.Pipe()
	defer them.Close()

	c := newClient(us)
	disconnects := make(chan *client, 1)
	go c.writeLoop(disconnects)

	var err error
	for i := 0; i < clientQueueDepth+2; i++ {
		if err = c.write([]byte("0000000000000a90 00 KEY_POWER sony-tv\n")); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, errClientStalled)

	c.close()
	assert.ErrorIs(t, c.write([]byte("x\n")), net.ErrClosed)
}
