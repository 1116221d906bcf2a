package server

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ir-server/ir-server/pkg/irproto"
)

// peerQueueDepth bounds the broadcast lines queued for one peer.
const peerQueueDepth = 64

// peer maintains one outbound connection to another daemon. It is retried
// forever with a fixed backoff; a peer is configured, never destroyed.
// Decoded events read from the peer are merged into the local broadcast
// stream, and local broadcasts are mirrored to the peer.
type peer struct {
	addr    string
	backoff time.Duration
	events  chan<- irproto.Event
	out     chan []byte
}

func newPeer(addr string, backoff time.Duration, events chan<- irproto.Event) *peer {
	return &peer{
		addr:    addr,
		backoff: backoff,
		events:  events,
		out:     make(chan []byte, peerQueueDepth),
	}
}

// run dials, consumes and redials until ctx is done. Mid-stream connection
// loss follows the same retry policy as an initial failure.
func (p *peer) run(ctx context.Context) {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	for {
		conn, err := dialer.DialContext(ctx, "tcp", p.addr)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().
				Err(err).
				Str("peer", p.addr).
				Dur("retry_in", p.backoff).
				Msg("peer connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.backoff):
				continue
			}
		}

		log.Info().Str("peer", p.addr).Msg("peer connected")
		p.drainStale()
		wctx, stopWriter := context.WithCancel(ctx)
		go p.writeLoop(wctx, conn)
		p.consume(ctx, conn)
		stopWriter()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().
			Str("peer", p.addr).
			Dur("retry_in", p.backoff).
			Msg("peer connection lost")
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.backoff):
		}
	}
}

// consume reads event lines until the connection fails. Lines that do not
// parse as events are ignored; peers may echo protocol replies we did not
// ask for.
func (p *peer) consume(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, irproto.MaxLineLen), irproto.MaxLineLen)
	for scanner.Scan() {
		ev, err := irproto.ParseEvent(scanner.Text())
		if err != nil {
			log.Debug().
				Err(err).
				Str("peer", p.addr).
				Msg("ignoring unparseable peer line")
			continue
		}
		select {
		case p.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop forwards queued broadcast lines to the live connection. A
// write failure closes the connection, which ends the read side too and
// triggers the reconnect cycle.
func (p *peer) writeLoop(ctx context.Context, conn net.Conn) {
	for {
		select {
		case line := <-p.out:
			if _, err := conn.Write(line); err != nil {
				log.Debug().Err(err).Str("peer", p.addr).Msg("peer write failed")
				conn.Close()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// write enqueues a local broadcast line for the peer. It never blocks;
// lines are dropped when the peer is unreachable or not keeping up.
func (p *peer) write(line []byte) {
	select {
	case p.out <- line:
	default:
	}
}

// drainStale discards lines queued while the peer was unreachable. A peer
// gets live events only, never a backlog.
func (p *peer) drainStale() {
	for {
		select {
		case <-p.out:
		default:
			return
		}
	}
}
