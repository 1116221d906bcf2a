// Package server implements the daemon core: the control-socket protocol
// engine, the broadcast stream, peer connections and the event loop tying
// them to the hardware driver and decoder.
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ir-server/ir-server/internal/config"
	"github.com/ir-server/ir-server/internal/decoder"
	"github.com/ir-server/ir-server/internal/driver"
	"github.com/ir-server/ir-server/internal/remotes"
	"github.com/ir-server/ir-server/pkg/irproto"
)

// Version is reported by the VERSION directive and the status API.
const Version = "1.0.0"

// EventSink receives every broadcast event in addition to the connected
// clients. The integration forwarder implements this.
type EventSink interface {
	Publish(ev irproto.Event)
}

// driverInput is one unit of data from the driver pump: either a raw
// timing sequence or a button name from self-decoding hardware.
type driverInput struct {
	seq    driver.RawSequence
	button string
}

// clientRequest pairs a parsed request with the connection it arrived on.
type clientRequest struct {
	client *client
	req    irproto.Request
}

// Server is the decoding daemon core. All mutable state (client registry,
// tracker, send-repeat state) is owned by the Run goroutine; other
// goroutines communicate with it over channels only.
type Server struct {
	cfg     *config.Config
	db      *remotes.Database
	drv     driver.Driver
	tracker *decoder.Tracker
	sinks   []EventSink

	unixLn net.Listener
	tcpLn  net.Listener

	clients     map[uuid.UUID]*client
	clientCount atomic.Int64
	peers       []*peer

	accepted    chan net.Conn
	requests    chan clientRequest
	disconnects chan *client
	inputs      chan driverInput
	peerEvents  chan irproto.Event
	reload      chan struct{}

	// Active SEND_START state; nil when not repeating.
	sendRemote *remotes.Remote
	sendCode   *remotes.Code
	sendCount  uint32
	sendNext   time.Time
}

// New builds the server and binds its listeners. Listener bind failures
// are fatal startup errors, reported here before the loop ever starts.
func New(cfg *config.Config, db *remotes.Database, drv driver.Driver, sinks ...EventSink) (*Server, error) {
	s := &Server{
		cfg:         cfg,
		db:          db,
		drv:         drv,
		tracker:     decoder.NewTracker(cfg.Events.Release, cfg.Events.RepeatMax),
		sinks:       sinks,
		clients:     make(map[uuid.UUID]*client),
		accepted:    make(chan net.Conn, 8),
		requests:    make(chan clientRequest, 32),
		disconnects: make(chan *client, 32),
		inputs:      make(chan driverInput, 16),
		peerEvents:  make(chan irproto.Event, 32),
		reload:      make(chan struct{}, 1),
	}
	if cfg.Events.Timeout > 0 {
		s.tracker.SetWindow(cfg.Events.Timeout)
	}

	// A stale socket from a previous run would make the bind fail.
	if err := removeStaleSocket(cfg.Listen.Output); err != nil {
		return nil, err
	}
	unixLn, err := net.Listen("unix", cfg.Listen.Output)
	if err != nil {
		return nil, fmt.Errorf("listen on output socket: %w", err)
	}
	if err := os.Chmod(cfg.Listen.Output, cfg.Listen.SocketMode); err != nil {
		unixLn.Close()
		return nil, fmt.Errorf("chmod output socket: %w", err)
	}
	s.unixLn = unixLn

	if cfg.Listen.TCP != "" {
		tcpLn, err := net.Listen("tcp", cfg.Listen.TCP)
		if err != nil {
			unixLn.Close()
			return nil, fmt.Errorf("listen on tcp socket: %w", err)
		}
		s.tcpLn = tcpLn
	}

	for _, addr := range cfg.Peers.Connect {
		s.peers = append(s.peers, newPeer(addr, cfg.Peers.ReconnectInterval, s.peerEvents))
	}
	return s, nil
}

// TriggerReload requests a remote-database reload. It is consumed only at
// the top of the event loop, never in the middle of a decode or a command.
func (s *Server) TriggerReload() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// Run drives the daemon until ctx is done. It owns all mutable state; no
// handler blocks beyond channel sends to per-connection writers.
func (s *Server) Run(ctx context.Context) error {
	log.Info().
		Str("driver", s.drv.Name()).
		Str("output", s.cfg.Listen.Output).
		Msg("daemon ready")

	go s.acceptLoop(ctx, s.unixLn)
	if s.tcpLn != nil {
		go s.acceptLoop(ctx, s.tcpLn)
	}
	go s.drivePump(ctx)
	for _, p := range s.peers {
		go p.run(ctx)
	}

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.armTimer(timer)
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()

		case <-s.reload:
			if err := s.db.Reload(); err == nil {
				// Tracker state points into the old snapshot; drop it.
				s.tracker.Reset()
			}

		case conn := <-s.accepted:
			s.addClient(conn)

		case req := <-s.requests:
			s.handleRequest(req.client, req.req)

		case c := <-s.disconnects:
			s.removeClient(c, nil)

		case in := <-s.inputs:
			s.handleInput(in, time.Now())

		case ev := <-s.peerEvents:
			// Peer events arrive already decoded and tracked; merge them
			// into the local broadcast stream as-is.
			s.broadcast(ev)

		case now := <-timer.C:
			s.handleTimers(now)
		}
	}
}

// armTimer sizes the wait from the shortest pending deadline: the tracker's
// release timeout and the next hardware send repeat.
func (s *Server) armTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	wait := time.Hour
	if deadline, ok := s.tracker.NextDeadline(); ok {
		if d := time.Until(deadline); d < wait {
			wait = d
		}
	}
	if s.sendCode != nil {
		if d := time.Until(s.sendNext); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	timer.Reset(wait)
}

// handleTimers runs one tracker-timeout pass and advances an active
// SEND_START repeat.
func (s *Server) handleTimers(now time.Time) {
	for _, ev := range s.tracker.Timeout(now) {
		s.emit(ev)
	}
	if s.sendCode != nil && !now.Before(s.sendNext) {
		if s.cfg.Events.RepeatMax > 0 && s.sendCount >= s.cfg.Events.RepeatMax {
			log.Warn().
				Str("remote", s.sendRemote.Name).
				Str("code", s.sendCode.Name).
				Msg("send repeat limit reached, stopping")
			s.stopSendRepeat()
			return
		}
		if err := s.drv.Send(s.sendRemote, s.sendCode, 0); err != nil {
			log.Error().Err(err).Msg("hardware send failed, stopping repeat")
			s.stopSendRepeat()
			return
		}
		s.sendCount++
		s.sendNext = now.Add(sendRepeatInterval(s.sendRemote))
	}
}

// handleInput services the decode path: raw timing or a driver-decoded
// button name, resolved against the current database snapshot.
func (s *Server) handleInput(in driverInput, now time.Time) {
	snap := s.db.Snapshot()

	var press decoder.Press
	var ok bool
	if in.button != "" {
		press, ok = decoder.DecodeButton(snap, in.button)
	} else {
		press, ok = decoder.Decode(snap, in.seq)
	}
	if !ok {
		// Unparseable timing is noise, not an error.
		return
	}
	if err := s.drv.Ioctl(driver.IoctlNotifyDecode, nil); err != nil && err != driver.ErrUnsupported {
		log.Debug().Err(err).Msg("notify-decode ioctl failed")
	}
	for _, ev := range s.tracker.Observe(press, now) {
		s.emit(ev)
	}
}

// emit converts a tracker event to the wire form and broadcasts it.
func (s *Server) emit(ev decoder.Event) {
	s.broadcast(irproto.Event{
		Code:    ev.Code.Value,
		Repeat:  ev.Repeat,
		Button:  ev.Code.Name,
		Remote:  ev.Remote.Name,
		Release: ev.Release,
	})
}

// broadcast enqueues one event line for every connected client and peer
// and hands it to the sinks. Enqueueing never blocks; a client whose queue
// overflowed stopped reading and is dropped instead.
func (s *Server) broadcast(ev irproto.Event) {
	line := []byte(ev.Format(s.cfg.Events.ReleaseSuffix) + "\n")
	for _, c := range s.clients {
		if err := c.write(line); err != nil {
			s.removeClient(c, err)
		}
	}
	for _, p := range s.peers {
		p.write(line)
	}
	for _, sink := range s.sinks {
		sink.Publish(ev)
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				log.Error().Err(err).Str("addr", ln.Addr().String()).Msg("accept failed")
			}
			return
		}
		select {
		case s.accepted <- conn:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// drivePump pulls from the active driver and feeds the decode path. The
// driver is treated strictly as a blocking, cancellable read source.
func (s *Server) drivePump(ctx context.Context) {
	selfDecoding := s.drv.Features().Has(driver.SelfDecoding)
	for {
		seq, err := s.drv.ReadRaw(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("driver read failed")
			return
		}
		in := driverInput{seq: seq}
		if selfDecoding {
			if button, ok := s.drv.Decode(seq); ok {
				in = driverInput{button: button}
			}
		}
		select {
		case s.inputs <- in:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) addClient(conn net.Conn) {
	c := newClient(conn)
	s.clients[c.id] = c
	s.clientCount.Store(int64(len(s.clients)))
	go c.readLoop(s.requests, s.disconnects)
	go c.writeLoop(s.disconnects)
	log.Info().
		Str("client", c.id.String()).
		Str("addr", conn.RemoteAddr().String()).
		Int("clients", len(s.clients)).
		Msg("client connected")
}

func (s *Server) removeClient(c *client, cause error) {
	if _, ok := s.clients[c.id]; !ok {
		return
	}
	delete(s.clients, c.id)
	s.clientCount.Store(int64(len(s.clients)))
	c.close()
	evt := log.Info().Str("client", c.id.String()).Int("clients", len(s.clients))
	if cause != nil {
		evt = evt.Err(cause)
	}
	evt.Msg("client disconnected")
}

func (s *Server) stopSendRepeat() {
	s.sendRemote = nil
	s.sendCode = nil
	s.sendCount = 0
}

// shutdown flushes and closes every connection and releases the sockets.
func (s *Server) shutdown() {
	for _, c := range s.clients {
		c.close()
	}
	s.clients = map[uuid.UUID]*client{}
	s.clientCount.Store(0)
	s.unixLn.Close()
	if s.tcpLn != nil {
		s.tcpLn.Close()
	}
	os.Remove(s.cfg.Listen.Output)
	if err := s.drv.Deinit(); err != nil && err != driver.ErrNotInitialized {
		log.Warn().Err(err).Msg("driver deinit failed")
	}
	log.Info().Msg("daemon stopped")
}

// Stats is a point-in-time view of the daemon for the status API.
type Stats struct {
	Clients int      `json:"clients"`
	Peers   []string `json:"peers"`
	Driver  string   `json:"driver"`
	Device  string   `json:"device"`
}

// StatsSnapshot is safe to call from other goroutines; it only touches
// immutable configuration and atomically maintained counters.
func (s *Server) StatsSnapshot() Stats {
	peers := make([]string, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p.addr)
	}
	return Stats{
		Clients: int(s.clientCount.Load()),
		Peers:   peers,
		Driver:  s.drv.Name(),
		Device:  s.drv.Device(),
	}
}

// sendRepeatInterval is the pacing for SEND_START: the remote's gap, with a
// floor to avoid hammering slow transmitters.
func sendRepeatInterval(r *remotes.Remote) time.Duration {
	d := time.Duration(r.Gap) * time.Microsecond
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat output socket: %w", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("output path %s exists and is not a socket", path)
	}
	return os.Remove(path)
}
